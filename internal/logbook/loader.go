package logbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nzvengeance/flight-logbook/internal/models"
)

// FlightCreator persists a normalized flight and returns its id.
type FlightCreator interface {
	CreateFlight(ctx context.Context, f *models.Flight) (int64, error)
}

// OwnerResolver finds the owner for a source owner key, creating a
// placeholder owner on first sight. It must be idempotent per key.
type OwnerResolver interface {
	FindOrCreateOwner(ctx context.Context, key string) (int64, error)
}

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// FailedRecord keeps a rejected raw record for operator review.
type FailedRecord struct {
	Index int    `json:"index"` // 1-based position in the source
	Raw   Record `json:"raw"`
	Error string `json:"error"`
}

type Result struct {
	State     State          `json:"state"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Failures  []FailedRecord `json:"failures"`
}

const DefaultProgressEvery = 100

// Loader runs records through the adapter and the normalizer and persists
// each flight on its own. Records are processed one at a time in source order.
type Loader struct {
	flights       FlightCreator
	owners        OwnerResolver
	adapter       *Adapter
	progressEvery int
	runID         string

	mu    sync.Mutex
	state State
}

type Option func(*Loader)

// WithProgressEvery logs progress after every n successful records.
func WithProgressEvery(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.progressEvery = n
		}
	}
}

// WithRunID tags every created flight with the import run that produced it.
func WithRunID(id string) Option {
	return func(l *Loader) { l.runID = id }
}

// NewLoader builds a loader. owners may be nil when the mapping has no owner
// column; every flight then belongs to the default owner passed to Run.
func NewLoader(flights FlightCreator, owners OwnerResolver, adapter *Adapter, opts ...Option) *Loader {
	l := &Loader{
		flights:       flights,
		owners:        owners,
		adapter:       adapter,
		progressEvery: DefaultProgressEvery,
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loader) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run drains src. Per-record failures are counted and collected in the
// result; they never end the run. A source read failure or an owner that
// cannot be resolved aborts the run and is returned together with the
// partial result. Flights created before the abort are kept.
func (l *Loader) Run(ctx context.Context, src RecordSource, defaultOwner int64) (*Result, error) {
	l.mu.Lock()
	if l.state == StateRunning {
		l.mu.Unlock()
		return nil, errors.New("loader is already running")
	}
	l.state = StateRunning
	l.mu.Unlock()

	res := &Result{State: StateRunning, Failures: []FailedRecord{}}
	ownerCache := map[string]int64{}

	abort := func(err error) (*Result, error) {
		res.State = StateAborted
		l.setState(StateAborted)
		log.Error().Err(err).Int("succeeded", res.Succeeded).Int("failed", res.Failed).Msg("Import aborted")
		return res, err
	}

	for index := 1; ; index++ {
		raw, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return abort(fmt.Errorf("%w: record %d: %w", ErrSourceRead, index, err))
		}

		rec, err := l.adapter.Adapt(raw)
		if err != nil {
			l.fail(res, index, raw, err)
			continue
		}

		owner := defaultOwner
		if key := rec[FieldOwner]; key != "" && l.owners != nil {
			id, ok := ownerCache[key]
			if !ok {
				id, err = l.owners.FindOrCreateOwner(ctx, key)
				if err != nil {
					return abort(fmt.Errorf("%w: resolving owner %q: %w", ErrStore, key, err))
				}
				ownerCache[key] = id
			}
			owner = id
		}

		flight, err := Normalize(rec, owner)
		if err != nil {
			l.fail(res, index, raw, err)
			continue
		}
		flight.ImportRunID = l.runID

		if _, err := l.flights.CreateFlight(ctx, flight); err != nil {
			l.fail(res, index, raw, fmt.Errorf("%w: %w", ErrStore, err))
			continue
		}

		res.Succeeded++
		if res.Succeeded%l.progressEvery == 0 {
			log.Info().Int("succeeded", res.Succeeded).Int("failed", res.Failed).Msg("Import progress")
		}
	}

	res.State = StateCompleted
	l.setState(StateCompleted)
	log.Info().Int("succeeded", res.Succeeded).Int("failed", res.Failed).Msg("Import completed")
	return res, nil
}

func (l *Loader) fail(res *Result, index int, raw Record, err error) {
	res.Failed++
	res.Failures = append(res.Failures, FailedRecord{Index: index, Raw: raw, Error: err.Error()})
	log.Warn().Err(err).Int("record", index).Msg("Skipping record")
}
