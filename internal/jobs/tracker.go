package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"kmlc/internal/api"
	"kmlc/internal/clock"
	"kmlc/internal/logging"
	"kmlc/internal/metrics"
)

// DefaultPollInterval is used when Options.PollInterval is zero.
const DefaultPollInterval = 3 * time.Second

// Client is the subset of the API client the tracker uses.
type Client interface {
	ListTasks(ctx context.Context, q api.TaskQuery) ([]api.Task, error)
	Classify(ctx context.Context, jobID string) error
	DeleteTask(ctx context.Context, jobID string) (string, error)
	Download(ctx context.Context, jobID string, w io.Writer) (int64, error)
	Upload(ctx context.Context, filename string, content io.Reader, topicID string) (api.UploadResult, error)
}

// Revoker exposes the session's revocation signal.
type Revoker interface {
	Revoked() <-chan struct{}
}

// Options configures a Tracker.
type Options struct {
	Client       Client
	Revoker      Revoker
	Clock        clock.Clock
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Tracker owns the mounted job views and performs job actions.
type Tracker struct {
	client   Client
	revoker  Revoker
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	views  map[uint64]*View
	nextID uint64
}

// NewTracker constructs a Tracker.
func NewTracker(opts Options) *Tracker {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Tracker{
		client:   opts.Client,
		revoker:  opts.Revoker,
		clock:    clk,
		interval: interval,
		logger:   logging.NewComponentLogger(opts.Logger, "tracker"),
		views:    make(map[uint64]*View),
	}
}

// List performs a single read of the job list.
func (t *Tracker) List(ctx context.Context, filter Filter) ([]Job, error) {
	tasks, err := t.client.ListTasks(ctx, api.TaskQuery{Status: string(filter)})
	if err != nil {
		return nil, err
	}
	return FromTasks(tasks)
}

// ActiveViews reports how many views are mounted.
func (t *Tracker) ActiveViews() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.views)
}

// Watch mounts a view that polls immediately and then every poll interval.
func (t *Tracker) Watch(ctx context.Context, filter Filter) (*View, error) {
	var revoked <-chan struct{}
	if t.revoker != nil {
		revoked = t.revoker.Revoked()
		select {
		case <-revoked:
			return nil, ErrSessionRevoked
		default:
		}
	}

	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.mu.Unlock()

	v := newView(ctx, t, id, filter, revoked)

	t.mu.Lock()
	t.views[id] = v
	count := len(t.views)
	t.mu.Unlock()
	metrics.SetActiveViews(count)

	t.logger.Debug("view mounted",
		logging.Uint64(logging.FieldViewID, id),
		logging.String("filter", filter.String()),
		logging.Duration("interval", t.interval),
	)
	go v.run()
	return v, nil
}

func (t *Tracker) unregister(v *View) {
	t.mu.Lock()
	delete(t.views, v.id)
	count := len(t.views)
	t.mu.Unlock()
	metrics.SetActiveViews(count)
	t.logger.Debug("view unmounted", logging.Uint64(logging.FieldViewID, v.id))
}

// refreshAll asks every mounted view to poll now.
func (t *Tracker) refreshAll() {
	t.mu.Lock()
	views := make([]*View, 0, len(t.views))
	for _, v := range t.views {
		views = append(views, v)
	}
	t.mu.Unlock()
	for _, v := range views {
		v.requestRefresh()
	}
}
