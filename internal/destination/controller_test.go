package destination_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mirrorcast/internal/clock"
	"mirrorcast/internal/destination"
	"mirrorcast/internal/services"
)

type fakeAPI struct {
	mu sync.Mutex

	broadcast   destination.Broadcast
	ingests     map[string]destination.Ingest
	ingest      destination.Ingest
	createErrs  []error
	transErrs   []error
	getErr      error
	bindErr     error
	calls       []string
	transitions []destination.Status
	deleted     []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		broadcast: destination.Broadcast{ID: "b1", Status: destination.StatusCreated, RawStatus: "created"},
		ingests:   map[string]destination.Ingest{},
		ingest:    destination.Ingest{ID: "s-new", Key: "new-key", Address: "rtmp://a.rtmp.youtube.com/live2", Status: "inactive"},
	}
}

func (f *fakeAPI) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) CreateBroadcast(context.Context, destination.BroadcastSpec) (destination.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_broadcast")
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return destination.Broadcast{}, err
		}
	}
	return f.broadcast, nil
}

func (f *fakeAPI) FindIngest(_ context.Context, key string) (destination.Ingest, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("find_ingest")
	ing, ok := f.ingests[key]
	return ing, ok, nil
}

func (f *fakeAPI) CreateIngest(context.Context, string) (destination.Ingest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_ingest")
	return f.ingest, nil
}

func (f *fakeAPI) Bind(_ context.Context, broadcastID, ingestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("bind")
	if f.bindErr != nil {
		return f.bindErr
	}
	f.broadcast.BoundStreamID = ingestID
	return nil
}

func (f *fakeAPI) GetBroadcast(context.Context, string) (destination.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get_broadcast")
	if f.getErr != nil {
		return destination.Broadcast{}, f.getErr
	}
	return f.broadcast, nil
}

func (f *fakeAPI) GetIngest(_ context.Context, id string) (destination.Ingest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get_ingest")
	for _, ing := range f.ingests {
		if ing.ID == id {
			return ing, nil
		}
	}
	return f.ingest, nil
}

func (f *fakeAPI) Transition(_ context.Context, _ string, target destination.Status) (destination.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("transition_" + string(target))
	if len(f.transErrs) > 0 {
		err := f.transErrs[0]
		f.transErrs = f.transErrs[1:]
		if err != nil {
			return destination.StatusUnknown, err
		}
	}
	f.transitions = append(f.transitions, target)
	f.broadcast.Status = target
	return target, nil
}

func (f *fakeAPI) DeleteBroadcast(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete_broadcast")
	f.deleted = append(f.deleted, id)
	return nil
}

func newController(api destination.API, sleeper clock.Sleeper) *destination.Controller {
	return destination.NewController(api, destination.Options{
		APIAttempts:   3,
		RetryInterval: time.Second,
		TestingSettle: 3 * time.Second,
		Sleeper:       sleeper,
	})
}

func transient() error {
	return services.Wrap(services.ErrTransient, "destination", "test", "503", nil)
}

func TestAllowedTable(t *testing.T) {
	all := []destination.Status{destination.StatusCreated, destination.StatusReady, destination.StatusTesting, destination.StatusLive, destination.StatusComplete}
	legal := map[[2]destination.Status]bool{
		{destination.StatusCreated, destination.StatusTesting}:  true,
		{destination.StatusCreated, destination.StatusLive}:     true,
		{destination.StatusReady, destination.StatusTesting}:    true,
		{destination.StatusReady, destination.StatusLive}:       true,
		{destination.StatusTesting, destination.StatusLive}:     true,
		{destination.StatusTesting, destination.StatusComplete}: true,
		{destination.StatusLive, destination.StatusComplete}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			if got := destination.Allowed(from, to); got != legal[[2]destination.Status{from, to}] {
				t.Errorf("Allowed(%s, %s) = %v", from, to, got)
			}
		}
	}
}

func TestProvisionReusesIngestWithMatchingKey(t *testing.T) {
	api := newFakeAPI()
	api.ingests["configured-key"] = destination.Ingest{ID: "s-existing", Key: "configured-key", Address: "rtmp://a.rtmp.youtube.com/live2"}
	c := newController(api, &clock.Recorder{})

	out, err := c.Provision(context.Background(), destination.ProvisionRequest{Title: "t", IngestKey: "configured-key"})
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if out.BroadcastID != "b1" || out.IngestID != "s-existing" || !out.ReusedIngest || out.IngestKey != "configured-key" {
		t.Fatalf("unexpected result %+v", out)
	}
	for _, call := range api.Calls() {
		if call == "create_ingest" {
			t.Fatal("existing ingest should be reused")
		}
	}
	if c.Observed("b1") != destination.StatusCreated {
		t.Fatalf("observed = %s", c.Observed("b1"))
	}
}

func TestProvisionCreatesIngestWhenNoneMatches(t *testing.T) {
	api := newFakeAPI()
	c := newController(api, &clock.Recorder{})
	out, err := c.Provision(context.Background(), destination.ProvisionRequest{Title: "t", IngestKey: "unknown"})
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if out.IngestID != "s-new" || out.ReusedIngest || out.IngestKey != "new-key" {
		t.Fatalf("unexpected result %+v", out)
	}
}

func TestProvisionFailureCleansUp(t *testing.T) {
	api := newFakeAPI()
	api.bindErr = services.Wrap(services.ErrValidation, "destination", "bind", "400", nil)
	c := newController(api, &clock.Recorder{})

	_, err := c.Provision(context.Background(), destination.ProvisionRequest{Title: "t"})
	if !errors.Is(err, destination.ErrProvisionFailed) {
		t.Fatalf("expected ErrProvisionFailed, got %v", err)
	}
	if len(api.deleted) != 1 || api.deleted[0] != "b1" {
		t.Fatalf("partial broadcast not removed: %v", api.deleted)
	}
}

func TestProvisionRetriesTransientErrors(t *testing.T) {
	api := newFakeAPI()
	api.createErrs = []error{transient(), transient()}
	sleeper := &clock.Recorder{}
	c := newController(api, sleeper)

	if _, err := c.Provision(context.Background(), destination.ProvisionRequest{Title: "t"}); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if waits := sleeper.Waits(); len(waits) != 2 || waits[0] != time.Second {
		t.Fatalf("waits = %v", waits)
	}
}

func TestProvisionGivesUpAfterAttempts(t *testing.T) {
	api := newFakeAPI()
	api.createErrs = []error{transient(), transient(), transient(), nil}
	c := newController(api, &clock.Recorder{})
	if _, err := c.Provision(context.Background(), destination.ProvisionRequest{Title: "t"}); !errors.Is(err, destination.ErrProvisionFailed) {
		t.Fatalf("expected ErrProvisionFailed, got %v", err)
	}
	creates := 0
	for _, call := range api.Calls() {
		if call == "create_broadcast" {
			creates++
		}
	}
	if creates != 3 {
		t.Fatalf("expected 3 attempts, got %d", creates)
	}
}

func TestTransitionSameStatusMakesNoCall(t *testing.T) {
	statuses := []destination.Status{
		destination.StatusCreated,
		destination.StatusReady,
		destination.StatusTesting,
		destination.StatusLive,
		destination.StatusComplete,
	}
	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			api := newFakeAPI()
			api.broadcast.Status = status
			api.broadcast.RawStatus = string(status)
			c := newController(api, &clock.Recorder{})
			ctx := context.Background()

			if _, err := c.VerifyReady(ctx, "b1", "s-new"); err != nil {
				t.Fatalf("VerifyReady: %v", err)
			}
			if got := c.Observed("b1"); got != status {
				t.Fatalf("observed = %s, want %s", got, status)
			}
			before := len(api.Calls())
			outcome, err := c.Transition(ctx, "b1", status)
			if outcome != destination.OutcomeSuccess || err != nil {
				t.Fatalf("outcome = %s, err = %v", outcome, err)
			}
			if len(api.Calls()) != before {
				t.Fatalf("unexpected api calls %v", api.Calls()[before:])
			}
		})
	}
}

func TestTransitionColdCacheReadsOnce(t *testing.T) {
	api := newFakeAPI()
	api.broadcast.Status = destination.StatusLive
	c := newController(api, &clock.Recorder{})

	if outcome, err := c.Transition(context.Background(), "b1", destination.StatusLive); outcome != destination.OutcomeSuccess || err != nil {
		t.Fatalf("outcome = %s, err = %v", outcome, err)
	}
	calls := api.Calls()
	if len(calls) != 1 || calls[0] != "get_broadcast" {
		t.Fatalf("calls = %v, want a single get_broadcast", calls)
	}
}

func TestTransitionFromCompleteRejectedWithoutCall(t *testing.T) {
	api := newFakeAPI()
	api.broadcast.Status = destination.StatusLive
	c := newController(api, &clock.Recorder{})
	ctx := context.Background()

	if outcome, err := c.Transition(ctx, "b1", destination.StatusComplete); outcome != destination.OutcomeSuccess {
		t.Fatalf("complete: %s %v", outcome, err)
	}
	before := len(api.Calls())
	for _, target := range []destination.Status{destination.StatusCreated, destination.StatusReady, destination.StatusTesting, destination.StatusLive} {
		if outcome, _ := c.Transition(ctx, "b1", target); outcome != destination.OutcomeRejected {
			t.Fatalf("complete -> %s = %s", target, outcome)
		}
	}
	if outcome, _ := c.Transition(ctx, "b1", destination.StatusComplete); outcome != destination.OutcomeSuccess {
		t.Fatal("complete -> complete should succeed")
	}
	if len(api.Calls()) != before {
		t.Fatalf("unexpected api calls %v", api.Calls()[before:])
	}
}

func TestTransitionOutOfOrderRejected(t *testing.T) {
	api := newFakeAPI()
	c := newController(api, &clock.Recorder{})
	ctx := context.Background()
	if _, err := c.Provision(ctx, destination.ProvisionRequest{Title: "t"}); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	before := len(api.Calls())
	if outcome, _ := c.Transition(ctx, "b1", destination.StatusComplete); outcome != destination.OutcomeRejected {
		t.Fatalf("created -> complete = %s", outcome)
	}
	if len(api.Calls()) != before {
		t.Fatal("rejected transition must not reach the platform")
	}
}

func TestTransitionToLiveGoesThroughTesting(t *testing.T) {
	api := newFakeAPI()
	api.broadcast.Status = destination.StatusReady
	sleeper := &clock.Recorder{}
	c := newController(api, sleeper)

	outcome, err := c.Transition(context.Background(), "b1", destination.StatusLive)
	if err != nil || outcome != destination.OutcomeSuccess {
		t.Fatalf("outcome = %s, err = %v", outcome, err)
	}
	if len(api.transitions) != 2 || api.transitions[0] != destination.StatusTesting || api.transitions[1] != destination.StatusLive {
		t.Fatalf("transitions = %v", api.transitions)
	}
	if waits := sleeper.Waits(); len(waits) != 1 || waits[0] != 3*time.Second {
		t.Fatalf("testing settle waits = %v", waits)
	}
	if c.Observed("b1") != destination.StatusLive {
		t.Fatalf("observed = %s", c.Observed("b1"))
	}
}

func TestTransitionPlatformRejection(t *testing.T) {
	api := newFakeAPI()
	api.broadcast.Status = destination.StatusTesting
	api.transErrs = []error{destination.ErrInvalidTransition}
	c := newController(api, &clock.Recorder{})
	outcome, err := c.Transition(context.Background(), "b1", destination.StatusLive)
	if outcome != destination.OutcomeRejected || !errors.Is(err, destination.ErrInvalidTransition) {
		t.Fatalf("outcome = %s, err = %v", outcome, err)
	}
	if c.Observed("b1") != destination.StatusUnknown {
		t.Fatal("status should be re-fetched after a rejection")
	}
}

func TestTransitionFailureAfterRetries(t *testing.T) {
	api := newFakeAPI()
	api.broadcast.Status = destination.StatusLive
	api.transErrs = []error{transient(), transient(), transient()}
	c := newController(api, &clock.Recorder{})
	outcome, err := c.Transition(context.Background(), "b1", destination.StatusComplete)
	if outcome != destination.OutcomeFailed || !errors.Is(err, services.ErrTransient) {
		t.Fatalf("outcome = %s, err = %v", outcome, err)
	}
}

func TestTransitionCancelledDuringTestingSettle(t *testing.T) {
	api := newFakeAPI()
	ctx, cancel := context.WithCancel(context.Background())
	sleeper := clock.SleeperFunc(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})
	c := newController(api, sleeper)
	outcome, err := c.Transition(ctx, "b1", destination.StatusLive)
	if outcome != destination.OutcomeFailed || !errors.Is(err, context.Canceled) {
		t.Fatalf("outcome = %s, err = %v", outcome, err)
	}
	if len(api.transitions) != 1 {
		t.Fatalf("live must not be requested after cancellation: %v", api.transitions)
	}
}

func TestVerifyReady(t *testing.T) {
	tests := []struct {
		name      string
		ingest    string
		lifecycle destination.Status
		bound     string
		want      bool
	}{
		{name: "ready", ingest: "active", lifecycle: destination.StatusReady, bound: "s-new", want: true},
		{name: "testing", ingest: "active", lifecycle: destination.StatusTesting, bound: "s-new", want: true},
		{name: "inactive ingest", ingest: "inactive", lifecycle: destination.StatusReady, bound: "s-new", want: false},
		{name: "unbound", ingest: "active", lifecycle: destination.StatusReady, bound: "other", want: false},
		{name: "created", ingest: "active", lifecycle: destination.StatusCreated, bound: "s-new", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			api := newFakeAPI()
			api.ingest.Status = tc.ingest
			api.broadcast.Status = tc.lifecycle
			api.broadcast.BoundStreamID = tc.bound
			c := newController(api, &clock.Recorder{})
			got, err := c.VerifyReady(context.Background(), "b1", "s-new")
			if err != nil {
				t.Fatalf("VerifyReady: %v", err)
			}
			if got != tc.want {
				t.Fatalf("ready = %v, want %v", got, tc.want)
			}
			if n := len(api.Calls()); n != 2 {
				t.Fatalf("expected a single check (2 reads), got %v", api.Calls())
			}
		})
	}
}

func TestAbandonDeletes(t *testing.T) {
	api := newFakeAPI()
	c := newController(api, &clock.Recorder{})
	if err := c.Abandon(context.Background(), "b1"); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if len(api.deleted) != 1 {
		t.Fatal("expected delete")
	}
	if err := c.Abandon(context.Background(), ""); err != nil || len(api.deleted) != 1 {
		t.Fatal("empty id is a no-op")
	}
}
