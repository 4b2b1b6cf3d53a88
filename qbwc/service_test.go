package qbwc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/qbridge/jobs"
	"github.com/teranos/qbridge/qbxml"
)

const (
	testUser = "qbwc_user"
	testPass = "password"
)

type fixture struct {
	queue   *jobs.Queue
	session *Session
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	queue := jobs.NewQueue(jobs.NewMemoryStore(), nil)
	session := NewSession()
	svc := NewService(queue, session, Config{
		Username: testUser,
		Password: testPass,
	}, nil)
	return &fixture{queue: queue, session: session, svc: svc}
}

func (f *fixture) enqueue(t *testing.T, jobType jobs.Type, payload string) *jobs.Job {
	t.Helper()
	job, err := f.queue.Enqueue(jobType, json.RawMessage(payload), nil)
	require.NoError(t, err)
	return job
}

func (f *fixture) status(t *testing.T, id string) *jobs.Job {
	t.Helper()
	job, err := f.queue.Get(id)
	require.NoError(t, err)
	return job
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	res := f.svc.Authenticate(testUser, testPass)
	require.True(t, strings.HasPrefix(res[0], "ticket_"), "expected a ticket, got %q", res[0])
	return res[0]
}

func TestAuthenticateInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, jobs.TypeCustomerQuery, `{}`)

	assert.Equal(t, [2]string{InvalidUser, ""}, f.svc.Authenticate(testUser, "wrong"))
	assert.Equal(t, [2]string{InvalidUser, ""}, f.svc.Authenticate("someone", testPass))
	assert.False(t, f.session.Active())
}

func TestAuthenticateNoWork(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, [2]string{NoWork, ""}, f.svc.Authenticate(testUser, testPass))
	assert.False(t, f.session.Active())
}

func TestAuthenticateReturnsCompanyFile(t *testing.T) {
	f := newFixture(t)
	f.svc.UpdateConfig(Config{Username: testUser, Password: testPass, CompanyFile: `C:\Company\books.qbw`})
	f.enqueue(t, jobs.TypeCustomerQuery, `{}`)

	res := f.svc.Authenticate(testUser, testPass)
	assert.True(t, f.session.Valid(res[0]))
	assert.Equal(t, `C:\Company\books.qbw`, res[1])
}

func TestUpdateConfigSwapsCredentials(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, jobs.TypeCustomerQuery, `{}`)

	f.svc.UpdateConfig(Config{Username: "new_user", Password: "new_pass"})

	assert.Equal(t, InvalidUser, f.svc.Authenticate(testUser, testPass)[0])
	assert.True(t, strings.HasPrefix(f.svc.Authenticate("new_user", "new_pass")[0], "ticket_"))
}

func TestSendRequestXMLWrongTicket(t *testing.T) {
	f := newFixture(t)
	job := f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	ticket := f.login(t)

	assert.Empty(t, f.svc.SendRequestXML("ticket_bogus", "", "", "US", 13, 0))

	assert.True(t, f.session.Valid(ticket), "session is preserved")
	assert.Equal(t, jobs.StatusPending, f.status(t, job.ID).Status, "queue is untouched")
}

func TestSendRequestXMLUnknownType(t *testing.T) {
	f := newFixture(t)
	job := f.enqueue(t, "VendorAdd", `{}`)
	ticket := f.login(t)

	assert.Empty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))

	got := f.status(t, job.ID)
	assert.Equal(t, jobs.StatusError, got.Status)
	assert.Equal(t, "Unknown job type: VendorAdd", got.Error)
	assert.Equal(t, "Unknown job type: VendorAdd", f.svc.GetLastError(ticket))
	assert.Empty(t, f.session.InFlight())
}

func TestSendRequestXMLBuilderError(t *testing.T) {
	f := newFixture(t)
	job := f.enqueue(t, jobs.TypeItemGroupProductsQuery, `{}`)
	ticket := f.login(t)

	assert.Empty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))

	got := f.status(t, job.ID)
	assert.Equal(t, jobs.StatusError, got.Status)
	assert.Equal(t, "Builder error: itemId is required", got.Error)
}

func TestSendRequestXMLClearsLastError(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	f.session.SetLastError("stale")
	ticket := f.login(t)

	doc := f.svc.SendRequestXML(ticket, "", "", "US", 13, 0)
	assert.NotEmpty(t, doc)
	assert.Empty(t, f.svc.GetLastError(ticket))
}

func TestSendRequestXMLHonoursQBXMLVersion(t *testing.T) {
	f := newFixture(t)
	f.svc.UpdateConfig(Config{Username: testUser, Password: testPass, QBXMLVersion: "16.0"})
	f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	ticket := f.login(t)

	doc := f.svc.SendRequestXML(ticket, "", "", "US", 16, 0)
	assert.Contains(t, doc, `<?qbxml version="16.0"?>`)
}

func TestSendRequestXMLEmptyQueue(t *testing.T) {
	f := newFixture(t)
	job := f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	ticket := f.login(t)

	// Drain behind the dispatcher's back
	_, err := f.queue.NextPending()
	require.NoError(t, err)
	require.NoError(t, f.queue.MarkDone(job.ID, jobs.Result{}))

	assert.Empty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))
}

func TestSendRequestXMLRefusesWhileJobInFlight(t *testing.T) {
	f := newFixture(t)
	first := f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	second := f.enqueue(t, jobs.TypeItemQuery, `{}`)
	ticket := f.login(t)

	require.NotEmpty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))
	assert.Empty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))
	assert.NotEmpty(t, f.svc.GetLastError(ticket))

	assert.Equal(t, jobs.StatusProcessing, f.status(t, first.ID).Status)
	assert.Equal(t, jobs.StatusPending, f.status(t, second.ID).Status)
}

func TestDroppedRoundStallIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixture(t)
	f.svc = NewService(f.queue, f.session, Config{Username: testUser, Password: testPass}, zap.New(core).Sugar())

	dropped := f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	waiting := f.enqueue(t, jobs.TypeItemQuery, `{}`)

	ticket := f.login(t)
	require.NotEmpty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))
	assert.Equal(t, CloseOK, f.svc.CloseConnection(ticket))

	ticket = f.login(t)
	assert.Empty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))
	assert.Equal(t, jobs.StatusPending, f.status(t, waiting.ID).Status)

	stalls := logs.FilterMessageSnippet("Dispatch stalled").All()
	require.Len(t, stalls, 1)
	fields := stalls[0].ContextMap()
	assert.Equal(t, dropped.ID, fields["job_id"])
	assert.Contains(t, fields["hint"], "/api/queue/"+dropped.ID+"/abandon")
	assert.Contains(t, fields, "stalled_for")
}

func TestScenarioSingleCustomerQuery(t *testing.T) {
	f := newFixture(t)
	job := f.enqueue(t, jobs.TypeCustomerQuery, `{"maxReturned":100}`)

	ticket := f.login(t)

	doc := f.svc.SendRequestXML(ticket, "", "", "US", 13, 0)
	require.NotEmpty(t, doc)
	assert.Contains(t, doc, "<CustomerQueryRq")
	assert.Equal(t, jobs.StatusProcessing, f.status(t, job.ID).Status)
	assert.Equal(t, job.ID, f.session.InFlight())

	progress := f.svc.ReceiveResponseXML(ticket, okResponse, "", "")
	assert.Equal(t, ProgressDone, progress)

	got := f.status(t, job.ID)
	assert.Equal(t, jobs.StatusDone, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, okResponse, got.Result.Raw)
	assert.Equal(t, "80000001-1", got.Result.ListID)

	assert.Equal(t, CloseOK, f.svc.CloseConnection(ticket))
	assert.False(t, f.session.Active())
}

func TestScenarioTwoJobs(t *testing.T) {
	f := newFixture(t)
	first := f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	second := f.enqueue(t, jobs.TypeItemQuery, `{}`)
	ticket := f.login(t)

	require.NotEmpty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))
	assert.Equal(t, ProgressMore, f.svc.ReceiveResponseXML(ticket, okResponse, "", ""))

	doc := f.svc.SendRequestXML(ticket, "", "", "US", 13, 0)
	assert.Contains(t, doc, "<ItemQueryRq")
	assert.Equal(t, ProgressDone, f.svc.ReceiveResponseXML(ticket, okResponse, "", ""))

	assert.Equal(t, jobs.StatusDone, f.status(t, first.ID).Status)
	assert.Equal(t, jobs.StatusDone, f.status(t, second.ID).Status)
}

func TestScenarioHResultError(t *testing.T) {
	f := newFixture(t)
	job := f.enqueue(t, jobs.TypeCustomerAdd, `{"fullName":"Acme"}`)
	ticket := f.login(t)

	require.NotEmpty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))
	progress := f.svc.ReceiveResponseXML(ticket, "", "0x80040400", "QuickBooks found an error")
	assert.Equal(t, ProgressDone, progress)

	got := f.status(t, job.ID)
	assert.Equal(t, jobs.StatusError, got.Status)
	assert.Contains(t, got.Error, "0x80040400")
	assert.Equal(t, "QB Error 0x80040400: QuickBooks found an error", got.Error)
	assert.Equal(t, got.Error, f.svc.GetLastError(ticket))
}

func TestScenarioOperationError(t *testing.T) {
	f := newFixture(t)
	job := f.enqueue(t, jobs.TypeCustomerAdd, `{"fullName":"Acme"}`)
	ticket := f.login(t)

	require.NotEmpty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))
	f.svc.ReceiveResponseXML(ticket, duplicateResponse, "", "")

	got := f.status(t, job.ID)
	assert.Equal(t, jobs.StatusError, got.Status)
	assert.Equal(t, "QB Operation Error 3100: The name is already in use.", got.Error)
}

func TestScenarioCloseInvalidatesTicket(t *testing.T) {
	f := newFixture(t)
	job := f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	ticket := f.login(t)

	assert.Equal(t, CloseOK, f.svc.CloseConnection("any-ticket-at-all"))

	assert.Empty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))
	assert.Equal(t, jobs.StatusPending, f.status(t, job.ID).Status)
}

func TestReauthenticateInvalidatesOldTicket(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	old := f.login(t)
	current := f.login(t)

	assert.Empty(t, f.svc.SendRequestXML(old, "", "", "US", 13, 0))
	assert.NotEmpty(t, f.svc.SendRequestXML(current, "", "", "US", 13, 0))
}

func TestReceiveResponseXMLWrongTicketSettlesNothing(t *testing.T) {
	f := newFixture(t)
	first := f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	f.enqueue(t, jobs.TypeItemQuery, `{}`)
	ticket := f.login(t)
	require.NotEmpty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))

	assert.Equal(t, ProgressMore, f.svc.ReceiveResponseXML("ticket_other", okResponse, "", ""))
	assert.Equal(t, jobs.StatusProcessing, f.status(t, first.ID).Status)
	assert.Equal(t, first.ID, f.session.InFlight())
}

func TestReceiveResponseXMLWithoutInFlightJob(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	ticket := f.login(t)

	assert.Equal(t, ProgressMore, f.svc.ReceiveResponseXML(ticket, okResponse, "", ""))
	counts, err := f.queue.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[jobs.StatusPending])
}

func TestAtMostOneProcessingThroughoutRound(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	}
	ticket := f.login(t)

	assertSingle := func() {
		counts, err := f.queue.Counts()
		require.NoError(t, err)
		assert.LessOrEqual(t, counts[jobs.StatusProcessing], 1)
	}

	for {
		doc := f.svc.SendRequestXML(ticket, "", "", "US", 13, 0)
		assertSingle()
		if doc == "" {
			break
		}
		f.svc.ReceiveResponseXML(ticket, okResponse, "", "")
		assertSingle()
	}

	counts, err := f.queue.Counts()
	require.NoError(t, err)
	assert.Equal(t, 5, counts[jobs.StatusDone])
}

func TestConnectionError(t *testing.T) {
	f := newFixture(t)
	job := f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	ticket := f.login(t)
	require.NotEmpty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))

	assert.Equal(t, ConnectionErrorDone, f.svc.ConnectionError(ticket, "0x80040420", "The QuickBooks user has denied access."))
	assert.Equal(t, "Connection error: 0x80040420 The QuickBooks user has denied access.", f.svc.GetLastError(ticket))
	assert.Equal(t, jobs.StatusError, f.status(t, job.ID).Status)

	assert.Equal(t, ConnectionErrorDone, f.svc.ConnectionError("", "", ""))
	assert.Equal(t, "Connection error:", f.svc.GetLastError(""))
}

func TestServerAndClientVersion(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "1.0.0", f.svc.ServerVersion())
	assert.Empty(t, f.svc.ClientVersion("2.3.0.215"))

	f.svc.UpdateConfig(Config{Username: testUser, Password: testPass, ServerVersion: "2.1.0", MinClientVersion: "2.2"})
	assert.Equal(t, "2.1.0", f.svc.ServerVersion())
	assert.Empty(t, f.svc.ClientVersion("2.3.0.215"))
	assert.Empty(t, f.svc.ClientVersion("2.2.0.1"))
	assert.True(t, strings.HasPrefix(f.svc.ClientVersion("2.1.0.30"), "E:"))
	assert.True(t, strings.HasPrefix(f.svc.ClientVersion("unknown"), "W:"))
}

func TestCoerceVersion(t *testing.T) {
	assert.Equal(t, "2.3.0", coerceVersion("2.3.0.215"))
	assert.Equal(t, "2.3", coerceVersion(" 2.3 "))
}

type panickyObserver struct{}

func (panickyObserver) JobSucceeded(*jobs.Job, jobs.Result) { panic("observer exploded") }
func (panickyObserver) JobFailed(*jobs.Job, Outcome)        { panic("observer exploded") }

type recordingObserver struct {
	succeeded []string
	failed    []Outcome
}

func (r *recordingObserver) JobSucceeded(job *jobs.Job, _ jobs.Result) {
	r.succeeded = append(r.succeeded, job.ID)
}

func (r *recordingObserver) JobFailed(_ *jobs.Job, outcome Outcome) {
	r.failed = append(r.failed, outcome)
}

func TestObserversAreNotified(t *testing.T) {
	f := newFixture(t)
	rec := &recordingObserver{}
	f.svc.AddObserver(panickyObserver{})
	f.svc.AddObserver(rec)

	ok := f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	f.enqueue(t, jobs.TypeCustomerAdd, `{"fullName":"Acme"}`)
	ticket := f.login(t)

	require.NotEmpty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))
	f.svc.ReceiveResponseXML(ticket, okResponse, "", "")
	require.NotEmpty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))
	f.svc.ReceiveResponseXML(ticket, duplicateResponse, "", "")

	assert.Equal(t, []string{ok.ID}, rec.succeeded)
	require.Len(t, rec.failed, 1)
	assert.Equal(t, DuplicateNameCode, rec.failed[0].Code)
}

func TestPanickingBuilderMarksJobError(t *testing.T) {
	f := newFixture(t)
	f.svc.builders = map[jobs.Type]qbxml.Builder{
		jobs.TypeCustomerQuery: func(json.RawMessage, qbxml.Options) (string, error) {
			panic("nil map")
		},
	}
	job := f.enqueue(t, jobs.TypeCustomerQuery, `{}`)
	ticket := f.login(t)

	assert.NotPanics(t, func() {
		assert.Empty(t, f.svc.SendRequestXML(ticket, "", "", "US", 13, 0))
	})

	got := f.status(t, job.ID)
	assert.Equal(t, jobs.StatusError, got.Status)
	assert.Contains(t, got.Error, "Builder error: panic: nil map")
}

func TestBuildersCoverKnownTypes(t *testing.T) {
	for _, jt := range jobs.KnownTypes {
		_, ok := Builders[jt]
		assert.True(t, ok, "no builder for %s", jt)
	}
	assert.Len(t, Builders, len(jobs.KnownTypes))
}
