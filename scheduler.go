package session

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// refreshScheduler periodically checks the stored expiry while the machine is
// authenticated and asks for a refresh once it falls inside the buffer.
// After a transient failure the next attempt waits for an exponential backoff.
type refreshScheduler struct {
	interval   time.Duration
	buffer     time.Duration
	now        func() time.Time
	expiry     func(ctx context.Context) (time.Time, error)
	request    func(ctx context.Context)
	refreshing func() bool // nil means no refresh is ever in flight
	logger     Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	retry     *backoff.ExponentialBackOff
	notBefore time.Time
}

func newRefreshScheduler(cfg Config, now func() time.Time, logger Logger) *refreshScheduler {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = cfg.RetryInitial
	retry.MaxInterval = cfg.RetryMax
	retry.MaxElapsedTime = 0
	retry.Reset()

	return &refreshScheduler{
		interval: cfg.RefreshInterval,
		buffer:   cfg.RefreshBuffer,
		now:      now,
		logger:   logger,
		retry:    retry,
	}
}

// armed reports whether the ticker goroutine is running.
func (s *refreshScheduler) armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// arm starts the ticker. Arming an armed scheduler is a no-op.
func (s *refreshScheduler) arm(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.notBefore = time.Time{}
	s.retry.Reset()

	go s.loop(ctx, done)
}

// disarm stops the ticker and waits for its goroutine to exit, so no request
// is issued after it returns.
func (s *refreshScheduler) disarm() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// failed delays the next attempt after a transient refresh failure.
func (s *refreshScheduler) failed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	wait := s.retry.NextBackOff()
	if wait == backoff.Stop {
		wait = s.retry.MaxInterval
	}
	s.notBefore = s.now().Add(wait)
}

// succeeded clears any pending backoff.
func (s *refreshScheduler) succeeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notBefore = time.Time{}
	s.retry.Reset()
}

func (s *refreshScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *refreshScheduler) check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	now := s.now()
	s.mu.Lock()
	notBefore := s.notBefore
	s.mu.Unlock()
	if now.Before(notBefore) {
		return
	}
	if s.refreshing != nil && s.refreshing() {
		return
	}

	exp, err := s.expiry(ctx)
	if err != nil {
		if !IsNoTokens(err) {
			s.logger.Error("refresh scheduler: read token expiry: %v", err)
		}
		return
	}

	if !(Tokens{ExpiresAt: exp}).ExpiresWithin(now, s.buffer) {
		return
	}

	s.logger.Debug("refresh scheduler: token expires at %s, requesting refresh", exp.Format(time.RFC3339))
	s.request(ctx)
}
