package qbwc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/qbridge/jobs"
)

const itemDuplicateResponse = `<?xml version="1.0" ?><QBXML><QBXMLMsgsRs>
<ItemServiceAddRs requestID="item-1" statusCode="3100" statusSeverity="Error" statusMessage="The name &quot;Consulting&quot; of the list element is already in use." />
</QBXMLMsgsRs></QBXML>`

func runOneJob(t *testing.T, f *fixture, response string) {
	t.Helper()
	ticket := f.login(t)
	require.NotEmpty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))
	f.svc.ReceiveResponseXML(ticket, response, "", "")
	f.svc.CloseConnection(ticket)
}

func pendingJobs(t *testing.T, f *fixture) []*jobs.Job {
	t.Helper()
	list, err := f.queue.List(jobs.Filter{Status: jobs.StatusPending})
	require.NoError(t, err)
	return list
}

func TestRequeueCustomerLookupOnDuplicate(t *testing.T) {
	f := newFixture(t)
	f.svc.AddObserver(NewAlreadyExistsRequeuer(f.queue, nil))

	original, err := f.queue.Enqueue(jobs.TypeCustomerAdd, json.RawMessage(`{"fullName":"Acme Corp"}`),
		jobs.Metadata{"invoiceId": "inv-7", "purpose": "create-customer"})
	require.NoError(t, err)

	runOneJob(t, f, duplicateResponse)

	pending := pendingJobs(t, f)
	require.Len(t, pending, 1)
	lookup := pending[0]
	assert.Equal(t, jobs.TypeCustomerQuery, lookup.Type)
	assert.JSONEq(t, `{"name":"Acme Corp","maxReturned":1}`, string(lookup.Payload))
	assert.Equal(t, "inv-7", lookup.Metadata.String("invoiceId"))
	assert.Equal(t, PurposeValidateCustomer, lookup.Metadata.String("purpose"))
	assert.Equal(t, original.ID, lookup.Metadata.String("requeuedFrom"))
}

func TestRequeueItemLookupOnDuplicate(t *testing.T) {
	f := newFixture(t)
	f.svc.AddObserver(NewAlreadyExistsRequeuer(f.queue, nil))
	f.enqueue(t, jobs.TypeItemAdd, `{"name":"Consulting"}`)

	runOneJob(t, f, itemDuplicateResponse)

	pending := pendingJobs(t, f)
	require.Len(t, pending, 1)
	assert.Equal(t, jobs.TypeItemQuery, pending[0].Type)
	assert.Equal(t, "Consulting", pending[0].Metadata.String("itemName"))
	assert.Equal(t, PurposeValidateItem, pending[0].Metadata.String("purpose"))
}

func TestRequeueIgnoresOtherFailures(t *testing.T) {
	f := newFixture(t)
	f.svc.AddObserver(NewAlreadyExistsRequeuer(f.queue, nil))

	// hresult failures never requeue, even if the code text matches
	f.enqueue(t, jobs.TypeCustomerAdd, `{"fullName":"Acme"}`)
	ticket := f.login(t)
	require.NotEmpty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))
	f.svc.ReceiveResponseXML(ticket, "", "3100", "odd")
	f.svc.CloseConnection(ticket)

	// duplicates on query jobs are not requeued
	f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	runOneJob(t, f, duplicateResponse)

	assert.Empty(t, pendingJobs(t, f))
}

func TestRequeueLogsUnreadablePayload(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	queue := jobs.NewQueue(jobs.NewMemoryStore(), nil)
	requeuer := NewAlreadyExistsRequeuer(queue, zap.New(core).Sugar())
	duplicate := Outcome{Source: SourceOperation, Code: DuplicateNameCode}

	requeuer.JobFailed(&jobs.Job{
		ID:      "customer-1",
		Type:    jobs.TypeCustomerAdd,
		Payload: json.RawMessage(`{"fullName":42}`),
	}, duplicate)

	unreadable := logs.FilterMessageSnippet("customer payload is unreadable").All()
	require.Len(t, unreadable, 1)
	assert.Equal(t, "customer-1", unreadable[0].ContextMap()["job_id"])
	assert.NotEmpty(t, unreadable[0].ContextMap()["error"])

	// An item can still be looked up by the name carried in metadata
	requeuer.JobFailed(&jobs.Job{
		ID:       "item-1",
		Type:     jobs.TypeItemAdd,
		Payload:  json.RawMessage(`{"name":["Consulting"]}`),
		Metadata: jobs.Metadata{"itemName": "Consulting"},
	}, duplicate)

	assert.Len(t, logs.FilterMessageSnippet("item payload is unreadable").All(), 1)

	pending, err := queue.List(jobs.Filter{Status: jobs.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, jobs.TypeItemQuery, pending[0].Type)
	assert.Equal(t, "item-1", pending[0].Metadata.String("requeuedFrom"))
}
