package jobs_test

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"kmlc/internal/api"
	"kmlc/internal/clock"
	"kmlc/internal/jobs"
	"kmlc/internal/logging"
)

const waitTimeout = 2 * time.Second

type fakeClient struct {
	mu       sync.Mutex
	calls    int
	queries  []api.TaskQuery
	byCall   map[int][]api.Task
	errCall  map[int]error
	gates    map[int]chan struct{}
	fallback []api.Task
	started  chan int
}

func newFakeClient(tasks ...api.Task) *fakeClient {
	return &fakeClient{
		byCall:   make(map[int][]api.Task),
		errCall:  make(map[int]error),
		gates:    make(map[int]chan struct{}),
		fallback: tasks,
		started:  make(chan int, 64),
	}
}

func (f *fakeClient) ListTasks(_ context.Context, q api.TaskQuery) ([]api.Task, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.queries = append(f.queries, q)
	tasks, ok := f.byCall[n]
	if !ok {
		tasks = f.fallback
	}
	err := f.errCall[n]
	gate := f.gates[n]
	f.mu.Unlock()

	f.started <- n
	if gate != nil {
		<-gate
	}
	return tasks, err
}

func (f *fakeClient) Classify(context.Context, string) error { return nil }

func (f *fakeClient) DeleteTask(context.Context, string) (string, error) { return "", nil }

func (f *fakeClient) Download(context.Context, string, io.Writer) (int64, error) { return 0, nil }

func (f *fakeClient) Upload(context.Context, string, io.Reader, string) (api.UploadResult, error) {
	return api.UploadResult{}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeClient) lastQuery() api.TaskQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

type fakeRevoker struct{ ch chan struct{} }

func (r *fakeRevoker) Revoked() <-chan struct{} { return r.ch }

func newTracker(client jobs.Client, clk clock.Clock, revoker jobs.Revoker) *jobs.Tracker {
	return jobs.NewTracker(jobs.Options{
		Client:       client,
		Revoker:      revoker,
		Clock:        clk,
		PollInterval: 3 * time.Second,
		Logger:       logging.NewNop(),
	})
}

func waitUpdate(t *testing.T, v *jobs.View) jobs.Snapshot {
	t.Helper()
	select {
	case snap := <-v.Updates():
		return snap
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for view update")
		return jobs.Snapshot{}
	}
}

func waitStarted(t *testing.T, f *fakeClient, call int) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case n := <-f.started:
			if n == call {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for call %d", call)
		}
	}
}

func task(id, status string, progress float64) api.Task {
	return api.Task{JobID: id, User: "alice", Filename: id + ".xlsx", Status: status, Progress: progress}
}

func TestWatchPollsImmediatelyThenOnInterval(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	client := newFakeClient(task("a", "processing", 10))
	tracker := newTracker(client, clk, nil)

	v, err := tracker.Watch(context.Background(), jobs.FilterAll)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer v.Stop()

	first := waitUpdate(t, v)
	if first.Seq != 1 || len(first.Jobs) != 1 || first.Jobs[0].Status != jobs.StatusProcessing {
		t.Fatalf("unexpected first snapshot %+v", first)
	}

	clk.Advance(3 * time.Second)
	second := waitUpdate(t, v)
	if second.Seq != 2 {
		t.Fatalf("expected second poll after interval, got seq %d", second.Seq)
	}
	if client.callCount() != 2 {
		t.Fatalf("expected 2 polls, got %d", client.callCount())
	}
}

func TestSameStatusTwiceYieldsIdenticalRows(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	client := newFakeClient(task("a", "processing", 42))
	tracker := newTracker(client, clk, nil)

	v, err := tracker.Watch(context.Background(), jobs.FilterAll)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer v.Stop()

	first := waitUpdate(t, v)
	clk.Advance(3 * time.Second)
	second := waitUpdate(t, v)

	if !reflect.DeepEqual(first.Jobs, second.Jobs) {
		t.Fatalf("identical server data must render identically:\n%+v\n%+v", first.Jobs, second.Jobs)
	}
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	client := newFakeClient()
	client.byCall[1] = []api.Task{task("old", "pending", 0)}
	client.byCall[2] = []api.Task{task("new", "processing", 5)}
	gate := make(chan struct{})
	client.gates[1] = gate
	tracker := newTracker(client, clk, nil)

	v, err := tracker.Watch(context.Background(), jobs.FilterAll)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	waitStarted(t, client, 1)

	snap, err := v.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Seq != 2 || snap.Jobs[0].ID != "new" {
		t.Fatalf("expected refresh applied, got %+v", snap)
	}

	close(gate)
	v.Stop()

	final := v.Snapshot()
	if final.Seq != 2 || len(final.Jobs) != 1 || final.Jobs[0].ID != "new" {
		t.Fatalf("older response overwrote newer snapshot: %+v", final)
	}
}

func TestOlderSuccessDoesNotMaskNewerFailure(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	client := newFakeClient()
	client.byCall[1] = []api.Task{task("old", "pending", 0)}
	client.errCall[2] = &api.NetworkError{Kind: api.Unreachable, Err: errors.New("connection refused")}
	gate := make(chan struct{})
	client.gates[1] = gate
	tracker := newTracker(client, clk, nil)

	v, err := tracker.Watch(context.Background(), jobs.FilterAll)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	waitStarted(t, client, 1)

	snap, err := v.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected refresh to fail")
	}
	if snap.Err == nil || snap.Seq != 0 {
		t.Fatalf("expected failure recorded without data, got %+v", snap)
	}

	close(gate)
	v.Stop()

	final := v.Snapshot()
	if final.Seq != 0 || len(final.Jobs) != 0 {
		t.Fatalf("older success applied after newer failure: %+v", final)
	}
	if final.Err == nil {
		t.Fatal("newer failure was cleared by an older response")
	}
}

func TestFailureFromPreviousFilterIsDiscarded(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	client := newFakeClient(task("a", "completed", 100))
	client.errCall[1] = &api.NetworkError{Kind: api.Unreachable, Err: errors.New("connection refused")}
	gate := make(chan struct{})
	client.gates[1] = gate
	tracker := newTracker(client, clk, nil)

	v, err := tracker.Watch(context.Background(), jobs.FilterAll)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer v.Stop()
	waitStarted(t, client, 1)

	v.SetFilter(jobs.FilterCompleted)
	close(gate)

	snap := waitUpdate(t, v)
	if snap.Err != nil {
		t.Fatalf("failure from the abandoned filter reached the view: %v", snap.Err)
	}
	if snap.Filter != jobs.FilterCompleted || snap.Seq != 2 || len(snap.Jobs) != 1 {
		t.Fatalf("expected completed filter applied, got %+v", snap)
	}
}

func TestStopIsIdempotentAndRemountDoesNotDuplicate(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	client := newFakeClient(task("a", "uploaded", 0))
	tracker := newTracker(client, clk, nil)

	first, err := tracker.Watch(context.Background(), jobs.FilterAll)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	waitUpdate(t, first)
	if tracker.ActiveViews() != 1 || clk.LiveTickers() != 1 {
		t.Fatalf("expected one view and ticker, got %d views %d tickers", tracker.ActiveViews(), clk.LiveTickers())
	}

	first.Stop()
	first.Stop()
	if tracker.ActiveViews() != 0 || clk.LiveTickers() != 0 {
		t.Fatalf("expected teardown, got %d views %d tickers", tracker.ActiveViews(), clk.LiveTickers())
	}
	if first.Err() != nil {
		t.Fatalf("explicit stop must not report an error, got %v", first.Err())
	}

	second, err := tracker.Watch(context.Background(), jobs.FilterAll)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer second.Stop()
	waitUpdate(t, second)
	if tracker.ActiveViews() != 1 || clk.LiveTickers() != 1 {
		t.Fatalf("remount duplicated polling: %d views %d tickers", tracker.ActiveViews(), clk.LiveTickers())
	}

	clk.Advance(3 * time.Second)
	waitUpdate(t, second)
	if got := client.callCount(); got != 3 {
		t.Fatalf("expected 3 polls (two mounts plus one tick), got %d", got)
	}
}

func TestContextCancelStopsView(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	tracker := newTracker(newFakeClient(), clk, nil)
	ctx, cancel := context.WithCancel(context.Background())

	v, err := tracker.Watch(ctx, jobs.FilterAll)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	waitUpdate(t, v)
	cancel()

	select {
	case <-v.Done():
	case <-time.After(waitTimeout):
		t.Fatal("view did not stop after context cancel")
	}
	v.Stop()
	if tracker.ActiveViews() != 0 {
		t.Fatal("expected view unmounted")
	}
}

func TestRevocationStopsView(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	revoker := &fakeRevoker{ch: make(chan struct{})}
	tracker := newTracker(newFakeClient(task("a", "pending", 0)), clk, revoker)

	v, err := tracker.Watch(context.Background(), jobs.FilterAll)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	waitUpdate(t, v)
	close(revoker.ch)

	select {
	case <-v.Done():
	case <-time.After(waitTimeout):
		t.Fatal("view did not stop after revocation")
	}
	if !errors.Is(v.Err(), jobs.ErrSessionRevoked) {
		t.Fatalf("expected revoked error, got %v", v.Err())
	}
	if clk.LiveTickers() != 0 {
		t.Fatal("expected ticker released")
	}

	if _, err := tracker.Watch(context.Background(), jobs.FilterAll); !errors.Is(err, jobs.ErrSessionRevoked) {
		t.Fatalf("expected mount refused after revocation, got %v", err)
	}
}

func TestUnauthorizedPollStopsView(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	client := newFakeClient(task("a", "pending", 0))
	client.errCall[2] = &api.APIError{StatusCode: 401, Detail: "Could not validate credentials"}
	tracker := newTracker(client, clk, nil)

	v, err := tracker.Watch(context.Background(), jobs.FilterAll)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	waitUpdate(t, v)
	clk.Advance(3 * time.Second)

	select {
	case <-v.Done():
	case <-time.After(waitTimeout):
		t.Fatal("view did not stop after 401")
	}
	if !errors.Is(v.Err(), api.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", v.Err())
	}
}

func TestSetFilterPollsImmediately(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	client := newFakeClient(task("a", "completed", 100))
	tracker := newTracker(client, clk, nil)

	v, err := tracker.Watch(context.Background(), jobs.FilterAll)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer v.Stop()
	waitUpdate(t, v)

	v.SetFilter(jobs.FilterCompleted)
	snap := waitUpdate(t, v)
	if snap.Filter != jobs.FilterCompleted {
		t.Fatalf("expected completed filter applied, got %q", snap.Filter)
	}
	if got := client.lastQuery().Status; got != "completed" {
		t.Fatalf("expected status query, got %q", got)
	}
}

func TestTransientFailureKeepsSnapshot(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	client := newFakeClient(task("a", "processing", 30))
	client.errCall[2] = &api.NetworkError{Kind: api.Unreachable, Err: errors.New("connection refused")}
	tracker := newTracker(client, clk, nil)

	v, err := tracker.Watch(context.Background(), jobs.FilterAll)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer v.Stop()
	first := waitUpdate(t, v)

	clk.Advance(3 * time.Second)
	failed := waitUpdate(t, v)
	if failed.Err == nil || failed.Seq != first.Seq || !reflect.DeepEqual(failed.Jobs, first.Jobs) {
		t.Fatalf("expected previous rows with error, got %+v", failed)
	}

	clk.Advance(3 * time.Second)
	recovered := waitUpdate(t, v)
	if recovered.Err != nil || recovered.Seq != 3 {
		t.Fatalf("expected recovery on next poll, got %+v", recovered)
	}
}

func TestUnknownStatusFailsPoll(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	client := newFakeClient(task("a", "archived", 0))
	tracker := newTracker(client, clk, nil)

	v, err := tracker.Watch(context.Background(), jobs.FilterAll)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer v.Stop()

	snap := waitUpdate(t, v)
	if snap.Err == nil || !strings.Contains(snap.Err.Error(), "unknown status") {
		t.Fatalf("expected decode failure, got %+v", snap)
	}
	if len(snap.Jobs) != 0 {
		t.Fatal("malformed response must not be applied")
	}
}
