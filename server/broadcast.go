package server

import (
	"github.com/teranos/qbridge/jobs"
	"github.com/teranos/qbridge/logger"
)

// broadcastMessage sends a message to all connected clients.
// Returns the number of clients that accepted the message (channel not full).
func (s *Server) broadcastMessage(msg interface{}) int {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		select {
		case client.send <- msg:
			sent++
		default:
			s.broadcastDrops.Add(1)
		}
	}
	return sent
}

// startJobUpdateBroadcaster relays every queue change to websocket clients
func (s *Server) startJobUpdateBroadcaster() {
	updates := s.queue.Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.queue.Unsubscribe(updates)

		for {
			select {
			case <-s.ctx.Done():
				s.logger.Debugw("Job update broadcaster stopping")
				return
			case job, ok := <-updates:
				if !ok {
					return
				}
				s.broadcastJobUpdate(job)
			}
		}
	}()
}

func (s *Server) broadcastJobUpdate(job *jobs.Job) {
	sent := s.broadcastMessage(JobUpdateMessage{Type: "job_update", Job: job})
	s.logger.Debugw("Broadcast job update",
		logger.FieldJobID, job.ID,
		logger.FieldJobStatus, job.Status,
		"clients", sent,
	)
}
