package server

import (
	"html/template"
	"net/http"
	"time"

	"github.com/teranos/qbridge/jobs"
	"github.com/teranos/qbridge/logger"
	"github.com/teranos/qbridge/qbwc"
	"github.com/teranos/qbridge/version"
)

// HandleGenerateQWC downloads a QWC descriptor for the current settings
func (s *Server) HandleGenerateQWC(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	cfg := s.config()
	doc, err := qbwc.NewQWC(qbwc.QWCOptions{
		AppName:         cfg.QBWC.AppName,
		AppDescription:  cfg.QBWC.AppDescription,
		AppSupport:      cfg.QBWC.AppSupport,
		ServerURL:       cfg.QBWC.ServerURL,
		Username:        cfg.QBWC.Username,
		RunEveryMinutes: cfg.QBWC.RunEveryMinutes,
	}).Encode()
	if err != nil {
		handleError(w, s.logger, err, "failed to generate QWC")
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", `attachment; filename="`+qbwc.QWCFileName+`"`)
	w.Write(doc)

	s.logger.Infow("QWC file generated", logger.FieldRemote, r.RemoteAddr)
}

// HandleHealth reports queue depth and whether a connector round is open
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.queue.Counts()
	if err != nil {
		s.logger.Warnw("Health check could not read the queue", logger.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "degraded",
			Version: version.Get().Version,
		})
		return
	}

	resp := HealthResponse{
		Status:        "ok",
		Version:       version.Get().Version,
		Pending:       counts[jobs.StatusPending],
		Processing:    counts[jobs.StatusProcessing],
		SessionActive: s.service.Session().Active(),
	}

	if resp.Processing > 0 {
		stuck, err := s.queue.InFlight()
		if err != nil {
			s.logger.Warnw("Health check could not read the in-flight job", logger.FieldError, err)
		} else if stuck != nil {
			resp.InFlight = &InFlightJob{ID: stuck.ID, Type: stuck.Type, StartedAt: stuck.StartedAt}
			if !resp.SessionActive {
				resp.Status = "stalled"
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

var statusPage = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>{{.AppName}}</title>
  <style>
    body { font-family: Arial, sans-serif; max-width: 640px; margin: 50px auto; padding: 20px; }
    .status { background: #d4edda; padding: 16px; border-radius: 5px; margin: 20px 0; }
    .info { background: #f8f9fa; padding: 12px 16px; margin: 16px 0; border-left: 4px solid #007bff; }
    .button { display: inline-block; background: #007bff; color: white; padding: 12px 24px;
              text-decoration: none; border-radius: 5px; font-weight: bold; }
    code { background: #e9ecef; padding: 2px 6px; border-radius: 3px; }
  </style>
</head>
<body>
  <h1>{{.AppName}}</h1>
  <div class="status">Server running &middot; {{.Version}} &middot; up {{.Uptime}}</div>

  <h3>Download QWC file</h3>
  <a href="/generate-qwc" class="button">Download QWC</a>

  <div class="info">
    <strong>Queue:</strong>
    {{.Pending}} pending, {{.Processing}} processing, {{.Done}} done, {{.Failed}} failed
    (<a href="/api/queue">/api/queue</a>)
  </div>
  <div class="info">
    <strong>Connector session:</strong>
    {{if .SessionActive}}open since {{.SessionOpened}}{{else}}idle{{end}}
    {{with .LastError}}<br><strong>Last error:</strong> <code>{{.}}</code>{{end}}
  </div>
  <div class="info">
    <strong>Username:</strong> <code>{{.Username}}</code><br>
    <strong>WSDL:</strong> <code>{{.ServerURL}}/wsdl?wsdl</code><br>
    <strong>SOAP endpoint:</strong> <code>{{.ServerURL}}/wsdl</code>
  </div>
</body>
</html>
`))

type statusView struct {
	AppName       string
	Version       string
	Uptime        string
	Pending       int
	Processing    int
	Done          int
	Failed        int
	SessionActive bool
	SessionOpened string
	LastError     string
	Username      string
	ServerURL     string
}

// HandleStatus renders the human-facing status page at /
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	counts, err := s.queue.Counts()
	if err != nil {
		s.logger.Warnw("Status page could not read the queue", logger.FieldError, err)
		counts = map[jobs.Status]int{}
	}

	cfg := s.config()
	session := s.service.Session()
	data := statusView{
		AppName:       cfg.QBWC.AppName,
		Version:       version.Get().Version,
		Uptime:        time.Since(s.startedAt).Round(time.Second).String(),
		Pending:       counts[jobs.StatusPending],
		Processing:    counts[jobs.StatusProcessing],
		Done:          counts[jobs.StatusDone],
		Failed:        counts[jobs.StatusError],
		SessionActive: session.Active(),
		LastError:     session.LastError(),
		Username:      cfg.QBWC.Username,
		ServerURL:     cfg.QBWC.ServerURL,
	}
	if data.SessionActive {
		data.SessionOpened = session.OpenedAt().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusPage.Execute(w, data); err != nil {
		s.logger.Warnw("Failed to render status page", logger.FieldError, err)
	}
}
