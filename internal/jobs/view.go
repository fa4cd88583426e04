package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kmlc/internal/api"
	"kmlc/internal/clock"
	"kmlc/internal/logging"
	"kmlc/internal/metrics"
)

// Snapshot is the job list as of one applied poll.
type Snapshot struct {
	Jobs      []Job
	Filter    Filter
	Seq       uint64
	FetchedAt time.Time
	// Err is set when the newest resolved poll failed. Jobs still hold the
	// last applied list.
	Err error
}

// View is a mounted, polling job list.
type View struct {
	id      uint64
	tracker *Tracker
	logger  *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	revoked <-chan struct{}
	ticker  *clock.Ticker

	mu          sync.Mutex
	filter      Filter
	nextSeq     uint64
	observedSeq uint64
	snapshot    Snapshot
	stopErr     error

	updates  chan Snapshot
	refresh  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newView(parent context.Context, t *Tracker, id uint64, filter Filter, revoked <-chan struct{}) *View {
	ctx, cancel := context.WithCancel(parent)
	return &View{
		id:      id,
		tracker: t,
		logger:  t.logger.With(logging.Uint64(logging.FieldViewID, id)),
		ctx:     ctx,
		cancel:  cancel,
		revoked: revoked,
		ticker:  t.clock.NewTicker(t.interval),
		filter:  filter,
		updates: make(chan Snapshot, 1),
		refresh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Updates delivers the latest snapshot. Older undelivered snapshots are dropped.
func (v *View) Updates() <-chan Snapshot { return v.updates }

// Done is closed once the view has stopped polling.
func (v *View) Done() <-chan struct{} { return v.done }

// Err reports why the view stopped: nil after Stop or context cancellation,
// ErrSessionRevoked after logout, or an api.ErrUnauthorized error after a 401.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopErr
}

// Snapshot returns the most recently applied snapshot.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshot
}

// Filter returns the filter the view currently polls with.
func (v *View) Filter() Filter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filter
}

// SetFilter switches the filter and polls immediately.
func (v *View) SetFilter(f Filter) {
	v.mu.Lock()
	v.filter = f
	v.mu.Unlock()
	v.requestRefresh()
}

// Refresh polls from the caller's goroutine and returns the resulting
// snapshot. It may overlap a scheduled poll; whichever started later wins.
func (v *View) Refresh(ctx context.Context) (Snapshot, error) {
	select {
	case <-v.done:
		return v.Snapshot(), errors.New("view stopped")
	default:
	}
	if err := v.poll(ctx); err != nil {
		return v.Snapshot(), err
	}
	return v.Snapshot(), nil
}

// Stop tears the view down and waits for its loop to exit. Safe to call more than once.
func (v *View) Stop() {
	v.stopOnce.Do(v.cancel)
	<-v.done
}

func (v *View) requestRefresh() {
	select {
	case v.refresh <- struct{}{}:
	default:
	}
}

func (v *View) run() {
	defer close(v.done)
	defer v.tracker.unregister(v)
	defer v.ticker.Stop()
	defer v.stopOnce.Do(v.cancel)

	if v.pollAndCheck() {
		return
	}
	for {
		select {
		case <-v.revoked:
			v.finish(ErrSessionRevoked)
			return
		default:
		}
		select {
		case <-v.ctx.Done():
			return
		case <-v.revoked:
			v.finish(ErrSessionRevoked)
			return
		case <-v.ticker.C:
		case <-v.refresh:
		}
		if v.pollAndCheck() {
			return
		}
	}
}

// pollAndCheck runs one scheduled poll and reports whether the view must stop.
func (v *View) pollAndCheck() bool {
	err := v.poll(v.ctx)
	if err == nil {
		return false
	}
	if errors.Is(err, api.ErrUnauthorized) {
		v.finish(err)
		return true
	}
	return v.ctx.Err() != nil
}

func (v *View) finish(err error) {
	v.mu.Lock()
	if v.stopErr == nil {
		v.stopErr = err
	}
	v.mu.Unlock()
	v.logger.Info("job view stopped", logging.Error(err))
}

func (v *View) poll(ctx context.Context) error {
	v.mu.Lock()
	v.nextSeq++
	seq := v.nextSeq
	filter := v.filter
	v.mu.Unlock()

	tasks, err := v.tracker.client.ListTasks(ctx, api.TaskQuery{Status: string(filter)})
	var jobs []Job
	if err == nil {
		jobs, err = FromTasks(tasks)
		if err != nil {
			metrics.PollOutcome(metrics.PollMalformed)
			err = fmt.Errorf("decode poll response: %w", err)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err != nil && ctx.Err() != nil && !errors.Is(err, api.ErrUnauthorized) {
		return err
	}
	if seq <= v.observedSeq || filter != v.filter {
		metrics.PollOutcome(metrics.PollStale)
		v.logger.Debug("discarding stale poll",
			logging.Uint64("seq", seq),
			logging.Uint64("observed_seq", v.observedSeq),
			logging.Error(err),
		)
		return err
	}
	v.observedSeq = seq

	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			metrics.PollOutcome(metrics.PollRejected)
		} else {
			metrics.PollOutcome(metrics.PollFailed)
		}
		v.snapshot.Err = err
		v.publishLocked()
		v.logger.Warn("job poll failed", logging.Uint64("seq", seq), logging.Error(err))
		return err
	}

	v.logRegressions(jobs)
	v.snapshot = Snapshot{
		Jobs:      jobs,
		Filter:    filter,
		Seq:       seq,
		FetchedAt: v.tracker.clock.Now(),
	}
	metrics.PollOutcome(metrics.PollApplied)
	v.publishLocked()
	return nil
}

// logRegressions notes processing jobs whose progress went backwards. The
// server's value is shown as-is.
func (v *View) logRegressions(next []Job) {
	previous := make(map[string]float64, len(v.snapshot.Jobs))
	for _, job := range v.snapshot.Jobs {
		if job.Status == StatusProcessing {
			previous[job.ID] = job.Progress
		}
	}
	for _, job := range next {
		if job.Status != StatusProcessing {
			continue
		}
		if before, ok := previous[job.ID]; ok && job.Progress < before {
			v.logger.Debug("progress regressed",
				logging.String(logging.FieldJobID, job.ID),
				logging.Any("previous", before),
				logging.Any("current", job.Progress),
			)
		}
	}
}

func (v *View) publishLocked() {
	snap := v.snapshot
	select {
	case <-v.updates:
	default:
	}
	select {
	case v.updates <- snap:
	default:
	}
}
