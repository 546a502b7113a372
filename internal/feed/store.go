package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/DeafMist/devotion-feed/internal/logger"
	"github.com/DeafMist/devotion-feed/internal/models"
)

// Status is one of the three observable load states.
type Status string

const (
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusFailed  Status = "failed"
)

// State is a read-only view of the store. While a reload is in flight the
// previous sessions stay visible with StatusLoading.
type State struct {
	Status   Status           `json:"status"`
	Sessions []models.Session `json:"-"`
	Error    string           `json:"error,omitempty"`
	Source   Source           `json:"source,omitempty"`
	LoadedAt time.Time        `json:"loaded_at,omitzero"`
}

type sessionLoader interface {
	Load(ctx context.Context) (Result, error)
}

// Store owns the current session collection and its load state. A reload
// supersedes any load still in flight: the older one is canceled and its
// result ignored.
type Store struct {
	loader sessionLoader
	log    *slog.Logger

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewStore returns a store in the loading state.
func NewStore(loader sessionLoader, log *slog.Logger) *Store {
	if log == nil {
		log = logger.Discard()
	}
	return &Store{
		loader: loader,
		log:    log,
		state:  State{Status: StatusLoading},
	}
}

// Reload starts a new load and returns a channel closed once its result has
// been applied or discarded. After Close it starts nothing and the returned
// channel is already closed.
func (s *Store) Reload(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(done)
		return done
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state.Status = StatusLoading
	s.state.Error = ""
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(done)
		defer cancel()

		res, err := s.loader.Load(loadCtx)
		s.apply(gen, res, err)
	}()
	return done
}

func (s *Store) apply(gen uint64, res Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.log.Debug("discarding superseded load", slog.Uint64("generation", gen))
		return
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.log.Debug("load canceled", slog.Uint64("generation", gen))
	case err != nil:
		s.state = State{Status: StatusFailed, Error: err.Error()}
		sessionsLoaded.Set(0)
		s.log.Error("feed load failed", slog.Any("err", err))
	default:
		s.state = State{
			Status:   StatusLoaded,
			Sessions: res.Sessions,
			Source:   res.Source,
			LoadedAt: res.LoadedAt,
		}
		sessionsLoaded.Set(float64(len(res.Sessions)))
		s.log.Info("feed loaded",
			slog.String("source", string(res.Source)),
			slog.Int("sessions", len(res.Sessions)),
		)
	}
}

// Snapshot returns the current state. The sessions slice is a copy.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	if st.Sessions != nil {
		st.Sessions = append([]models.Session(nil), st.Sessions...)
	}
	return st
}

// Run reloads immediately and then every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	s.Reload(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return nil
		case <-ticker.C:
			s.Reload(ctx)
		}
	}
}

// Close cancels any in-flight load and waits for it to finish. Later
// reloads are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
