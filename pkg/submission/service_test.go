package submission

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/moncoffretelec/coffret/pkg/audit"
	"github.com/moncoffretelec/coffret/pkg/config"
	"github.com/moncoffretelec/coffret/pkg/dedup"
	"github.com/moncoffretelec/coffret/pkg/intake"
	"github.com/moncoffretelec/coffret/pkg/mail"
	"github.com/moncoffretelec/coffret/pkg/metrics"
	"github.com/moncoffretelec/coffret/pkg/notify"
	"github.com/moncoffretelec/coffret/pkg/render"
)

// recordingSender captures every message together with the attachment
// content as it was at send time.
type recordingSender struct {
	mu       sync.Mutex
	fail     map[string]error
	sent     []mail.Message
	contents map[string][]byte
}

func newRecordingSender() *recordingSender {
	return &recordingSender{contents: map[string][]byte{}}
}

func (s *recordingSender) Send(msg mail.Message) error {
	var data []byte
	if len(msg.Attachments) > 0 {
		data, _ = os.ReadFile(msg.Attachments[0].Path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if msg.Tag == notify.RecipientClient {
		s.contents[msg.To[0]] = data
	}
	return s.fail[msg.Tag]
}

func (s *recordingSender) GetHost() string { return "fake" }
func (s *recordingSender) GetPort() int    { return 0 }

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fixture struct {
	svc       *Service
	sender    *recordingSender
	outputDir string
	spans     *tracetest.SpanRecorder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	dir := t.TempDir()
	renderer := render.NewRenderer(render.Options{OutputDir: dir, Uncompressed: true}, log)
	sender := newRecordingSender()
	dispatcher := notify.NewDispatcher(sender, "pro@moncoffretelec.fr", log)

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	if opts.Tracer == nil {
		opts.Tracer = tp.Tracer("test")
	}

	return &fixture{
		svc:       NewService(renderer, dispatcher, opts, log),
		sender:    sender,
		outputDir: dir,
		spans:     spans,
	}
}

func (f *fixture) assertNoDocumentsLeft(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.outputDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rendered documents must be removed after dispatch")
}

func record(email string) intake.Record {
	address := "8 rue Battant, Besançon"
	return intake.Record{Address: &address, Rooms: []string{"Cuisine"}, Email: email}
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture(t, Options{})

	res, err := f.svc.Submit(context.Background(), record("client@example.fr"))
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.True(t, res.Outcome.OK())
	assert.ElementsMatch(t, []string{render.AssetFont, render.AssetLogo}, res.Fallbacks)
	assert.Equal(t, 2, f.sender.count())
	f.assertNoDocumentsLeft(t)

	names := make([]string, 0)
	for _, s := range f.spans.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"submission.submit", "submission.render", "submission.dispatch"}, names)
}

func TestSubmit_InvalidRecordDoesNothing(t *testing.T) {
	tests := []struct {
		email   string
		wantErr error
	}{
		{email: "", wantErr: intake.ErrEmailRequired},
		{email: "   ", wantErr: intake.ErrEmailRequired},
		{email: "pas-un-email", wantErr: intake.ErrEmailInvalid},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.email), func(t *testing.T) {
			f := newFixture(t, Options{})

			_, err := f.svc.Submit(context.Background(), record(tt.email))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var vErr *intake.ValidationError
			assert.True(t, errors.As(err, &vErr))
			assert.Zero(t, f.sender.count(), "nothing is sent")
			f.assertNoDocumentsLeft(t)
		})
	}
}

func TestSubmit_PartialFailure(t *testing.T) {
	relayErr := errors.New("550 rejected")
	f := newFixture(t, Options{})
	f.sender.fail = map[string]error{notify.RecipientOperator: relayErr}

	res, err := f.svc.Submit(context.Background(), record("client@example.fr"))
	require.Error(t, err)
	assert.ErrorIs(t, err, relayErr)

	var nf *notify.NotificationFailure
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, notify.RecipientOperator, nf.Recipient)

	assert.True(t, res.Outcome.ClientSent(), "the client mail went out")
	assert.False(t, res.Outcome.OperatorSent())
	assert.NotEmpty(t, res.ID)
	f.assertNoDocumentsLeft(t)
}

type failingRenderer struct{ calls int }

func (r *failingRenderer) Render(context.Context, intake.Record) (*render.Document, error) {
	r.calls++
	return nil, &render.RenderFailure{Op: "open", Err: os.ErrPermission}
}

type countingDispatcher struct{ calls int }

func (d *countingDispatcher) Dispatch(context.Context, *render.Document, intake.Record) notify.Outcome {
	d.calls++
	return notify.Outcome{}
}

func TestSubmit_RenderFailureSkipsDispatch(t *testing.T) {
	renderer := &failingRenderer{}
	dispatcher := &countingDispatcher{}
	svc := NewService(renderer, dispatcher, Options{}, zaptest.NewLogger(t).Sugar())

	_, err := svc.Submit(context.Background(), record("client@example.fr"))

	var rf *render.RenderFailure
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, 1, renderer.calls)
	assert.Zero(t, dispatcher.calls)
}

func newRedisGuard(t *testing.T) dedup.Guard {
	t.Helper()
	mr := miniredis.RunT(t)
	g := dedup.NewRedisGuard(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestSubmit_Duplicate(t *testing.T) {
	f := newFixture(t, Options{Guard: newRedisGuard(t)})

	_, err := f.svc.Submit(context.Background(), record("client@example.fr"))
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), record(" CLIENT@example.fr"))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 2, f.sender.count(), "duplicate sends nothing")

	_, err = f.svc.Submit(context.Background(), record("other@example.fr"))
	assert.NoError(t, err)
}

func TestSubmit_FailedSubmissionCanBeRetried(t *testing.T) {
	f := newFixture(t, Options{Guard: newRedisGuard(t)})
	f.sender.fail = map[string]error{notify.RecipientClient: errors.New("timeout")}

	_, err := f.svc.Submit(context.Background(), record("client@example.fr"))
	require.Error(t, err)

	f.sender.fail = nil
	_, err = f.svc.Submit(context.Background(), record("client@example.fr"))
	assert.NoError(t, err, "a failed submission releases its claim")
}

type brokenGuard struct{}

func (brokenGuard) Claim(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}
func (brokenGuard) Release(context.Context, string) error { return nil }
func (brokenGuard) Close() error                          { return nil }

func TestSubmit_GuardFailureFailsOpen(t *testing.T) {
	f := newFixture(t, Options{Guard: brokenGuard{}})

	_, err := f.svc.Submit(context.Background(), record("client@example.fr"))
	assert.NoError(t, err)
}

// blockingRenderer holds every render until release is closed.
type blockingRenderer struct {
	started chan struct{}
	release chan struct{}
	inner   *render.Renderer
}

func (r *blockingRenderer) Render(ctx context.Context, rec intake.Record) (*render.Document, error) {
	r.started <- struct{}{}
	<-r.release
	return r.inner.Render(ctx, rec)
}

func TestSubmit_BusyWhenNoSlot(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	renderer := &blockingRenderer{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		inner:   render.NewRenderer(render.Options{OutputDir: t.TempDir()}, log),
	}
	sender := newRecordingSender()
	svc := NewService(renderer, notify.NewDispatcher(sender, "pro@moncoffretelec.fr", log),
		Options{MaxInFlight: 1, QueueTimeout: 50 * time.Millisecond}, log)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), record("first@example.fr"))
		done <- err
	}()
	<-renderer.started

	_, err := svc.Submit(context.Background(), record("second@example.fr"))
	assert.ErrorIs(t, err, ErrBusy)

	close(renderer.release)
	require.NoError(t, <-done)
	assert.Equal(t, 2, sender.count(), "only the first submission was sent")
}

func TestSubmit_CompletesAfterCallerCancels(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	dir := t.TempDir()
	renderer := &blockingRenderer{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		inner:   render.NewRenderer(render.Options{OutputDir: dir}, log),
	}
	sender := newRecordingSender()
	svc := NewService(renderer, notify.NewDispatcher(sender, "pro@moncoffretelec.fr", log), Options{}, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(ctx, record("client@example.fr"))
		done <- err
	}()
	<-renderer.started
	cancel()
	close(renderer.release)

	require.NoError(t, <-done)
	assert.Equal(t, 2, sender.count())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmit_ConcurrentSubmissionsDoNotInterfere(t *testing.T) {
	f := newFixture(t, Options{MaxInFlight: 4})

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Submit(context.Background(), record(fmt.Sprintf("client%02d@example.fr", i)))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "submission %d", i)
	}
	assert.Equal(t, 2*n, f.sender.count())

	for i := 0; i < n; i++ {
		email := fmt.Sprintf("client%02d@example.fr", i)
		data, ok := f.sender.contents[email]
		require.True(t, ok, "client %s got a mail", email)
		assert.Contains(t, string(data), email, "each client receives their own summary")
		for j := 0; j < n; j++ {
			if j != i {
				assert.False(t, strings.Contains(string(data), fmt.Sprintf("client%02d@example.fr", j)))
			}
		}
	}
	f.assertNoDocumentsLeft(t)
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (a *recordingAuditor) Record(e *audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAuditor) all() []*audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*audit.Event(nil), a.events...)
}

func TestSubmit_AuditsEveryOutcome(t *testing.T) {
	auditor := &recordingAuditor{}
	f := newFixture(t, Options{Guard: newRedisGuard(t), Auditor: auditor})

	res, err := f.svc.Submit(context.Background(), record("client@example.fr"))
	require.NoError(t, err)
	_, err = f.svc.Submit(context.Background(), record("client@example.fr"))
	require.ErrorIs(t, err, ErrDuplicate)
	_, err = f.svc.Submit(context.Background(), record(""))
	require.Error(t, err)
	f.sender.fail = map[string]error{notify.RecipientOperator: errors.New("550 rejected")}
	_, err = f.svc.Submit(context.Background(), record("autre@example.fr"))
	require.Error(t, err)

	events := auditor.all()
	require.Len(t, events, 4)

	assert.Equal(t, audit.EventSubmissionCompleted, events[0].Type)
	assert.Equal(t, metrics.ResultSent, events[0].Result)
	assert.Equal(t, res.ID, events[0].SubmissionID)
	assert.Equal(t, "c*****@example.fr", events[0].Client, "the audit trail never holds the full address")
	assert.True(t, events[0].ClientSent)
	assert.True(t, events[0].OperatorSent)
	assert.Empty(t, events[0].Error)

	assert.Equal(t, audit.EventSubmissionRejected, events[1].Type)
	assert.Equal(t, metrics.ResultDuplicate, events[1].Result)
	assert.Empty(t, events[1].SubmissionID)

	assert.Equal(t, audit.EventSubmissionRejected, events[2].Type)
	assert.Equal(t, metrics.ResultInvalid, events[2].Result)
	assert.Empty(t, events[2].Client)

	assert.Equal(t, audit.EventSubmissionFailed, events[3].Type)
	assert.Equal(t, metrics.ResultSendFail, events[3].Result)
	assert.True(t, events[3].ClientSent)
	assert.False(t, events[3].OperatorSent)
	assert.Contains(t, events[3].Error, "550 rejected")
}

func TestOptionsFromConfig(t *testing.T) {
	guard := dedup.Noop{}
	auditor := &recordingAuditor{}
	opts := OptionsFromConfig(config.Limits{MaxInFlight: 3, QueueTimeout: time.Second}, guard, auditor)

	assert.Equal(t, 3, opts.MaxInFlight)
	assert.Equal(t, time.Second, opts.QueueTimeout)
	assert.Equal(t, guard, opts.Guard)
	assert.Same(t, auditor, opts.Auditor)
}
