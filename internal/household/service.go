package household

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/i474232898/household-energy-dashboard/internal/common"
)

// State is the phase a refresh cycle is in.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateBuilding
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateBuilding:
		return "building"
	case StatePublishing:
		return "publishing"
	default:
		return "unknown"
	}
}

// Options tune a refresh cycle.
type Options struct {
	// DateFilters keeps only objects whose name contains one of them.
	// Empty means every object in the container.
	DateFilters []string
	// Concurrency bounds parallel downloads (default 8).
	Concurrency int
	// FetchTimeout bounds listing and downloading together (0 = no bound).
	FetchTimeout time.Duration
	// StrictDecode aborts the cycle on the first malformed object instead of
	// skipping it.
	StrictDecode bool
}

// Service orchestrates fetching objects, building the household table and
// publishing it for the query layer.
type Service struct {
	objects  ObjectStore
	slot     Slot
	opts     Options
	logger   *slog.Logger
	recorder Recorder

	running atomic.Bool
	state   atomic.Int32
}

// NewService creates a new Service. logger and recorder may be nil.
func NewService(objects ObjectStore, slot Slot, opts Options, logger *slog.Logger, recorder Recorder) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		objects:  objects,
		slot:     slot,
		opts:     opts,
		logger:   logger,
		recorder: recorder,
	}
}

// Refresh runs one fetch, build and publish cycle. On any failure the
// previously published table stays in place. A call made while another
// cycle is running returns ErrRefreshInProgress without doing anything.
func (s *Service) Refresh(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRefreshInProgress
	}
	defer s.running.Store(false)
	defer s.setState(StateIdle)

	cycleID := uuid.NewString()
	log := s.logger.With("cycle_id", cycleID, "store", s.objects.Name())
	start := time.Now()

	snapshot, err := s.runCycle(ctx, cycleID, log)
	elapsed := time.Since(start)
	if err != nil {
		log.Error("refresh failed; keeping last published table", "error", err, "elapsed", elapsed)
		s.cycleFinished("failure", elapsed)
		return err
	}

	log.Info("data refreshed",
		"rows", snapshot.Table.Len(),
		"sensors", len(snapshot.Table.Sensors()),
		"objects", snapshot.Objects,
		"skipped", snapshot.Skipped,
		"elapsed", elapsed,
	)
	s.cycleFinished("success", elapsed)
	return nil
}

func (s *Service) runCycle(ctx context.Context, cycleID string, log *slog.Logger) (*Snapshot, error) {
	s.setState(StateFetching)
	payloads, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug("objects fetched", "count", len(payloads))

	s.setState(StateBuilding)
	res := DecodeBatch(payloads)
	for _, f := range res.Failures {
		log.Warn("skipping malformed object", "object", f.ObjectID, "error", f.Err)
	}
	if s.recorder != nil && len(res.Failures) > 0 {
		s.recorder.DecodeFailures(len(res.Failures))
	}
	if len(res.Failures) > 0 {
		if s.opts.StrictDecode {
			return nil, res.Failures[0]
		}
		if len(res.Records) == 0 {
			return nil, fmt.Errorf("%w (%d objects): %w", ErrNoRecords, len(res.Failures), res.Failures[0])
		}
	}

	table, err := BuildTable(res.Records)
	if err != nil {
		return nil, err
	}

	s.setState(StatePublishing)
	snapshot := &Snapshot{
		Table:       table,
		CycleID:     cycleID,
		PublishedAt: time.Now().UTC(),
		Objects:     len(payloads),
		Skipped:     len(res.Failures),
	}
	s.slot.Publish(snapshot)
	if s.recorder != nil {
		s.recorder.Published(table.Len(), len(table.Sensors()), snapshot.PublishedAt)
	}
	return snapshot, nil
}

// fetch lists the container and downloads the selected objects with bounded
// concurrency. The first failure cancels the remaining downloads.
func (s *Service) fetch(ctx context.Context) ([]Payload, error) {
	if s.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
	}

	ids, err := s.objects.List(ctx)
	if err != nil {
		return nil, &FetchError{Op: "list", Err: err}
	}
	ids = filterObjects(ids, s.opts.DateFilters)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		sem      = make(chan struct{}, s.opts.Concurrency)
		payloads = make([]Payload, len(ids))
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for i, id := range ids {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				fail(&FetchError{Op: "download", ObjectID: id, Err: ctx.Err()})
				return
			}
			defer func() { <-sem }()

			body, err := s.objects.Download(ctx, id)
			if err != nil {
				fail(&FetchError{Op: "download", ObjectID: id, Err: err})
				return
			}
			payloads[i] = Payload{ObjectID: id, SensorHint: sensorHint(id), Body: body}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return payloads, nil
}

func filterObjects(ids []string, filters []string) []string {
	if len(filters) == 0 {
		return ids
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if common.HasAny(id, filters...) {
			out = append(out, id)
		}
	}
	return out
}

// sensorHint takes the leading path segment of an object name, e.g.
// "house1/2024-01-01.json" -> "house1".
func sensorHint(objectID string) string {
	if i := strings.Index(objectID, "/"); i > 0 {
		return objectID[:i]
	}
	return ""
}

func (s *Service) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Service) cycleFinished(result string, elapsed time.Duration) {
	if s.recorder != nil {
		s.recorder.CycleFinished(result, elapsed)
	}
}

// State reports the phase of the cycle currently running, or StateIdle.
func (s *Service) State() State {
	return State(s.state.Load())
}

// Snapshot returns the currently published snapshot, or nil before the
// first successful refresh.
func (s *Service) Snapshot() *Snapshot {
	return s.slot.Current()
}

// Table returns the currently published table, or an empty one.
func (s *Service) Table() *Table {
	if snap := s.slot.Current(); snap != nil && snap.Table != nil {
		return snap.Table
	}
	return &Table{}
}
