// Package distributor implements the realtime distribution service: one
// shared snapshot of backend state, fed by a push connection when the
// backend is reachable and by interval polling while it is not, fanned out
// to every registered consumer.
package distributor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clipfeed/admin-dashboard/internal/config"
	"github.com/clipfeed/admin-dashboard/internal/reconnect"
	"github.com/clipfeed/admin-dashboard/internal/snapshot"
	"github.com/clipfeed/admin-dashboard/internal/transport"
)

// Notifier receives operational alerts about push-transport health.
type Notifier interface {
	PushExhausted(ctx context.Context, attempts int)
	PushRecovered(ctx context.Context)
}

// Transport labels reported by Status.
const (
	TransportNone = "none"
	TransportPush = "push"
	TransportPull = "pull"
)

// Status is the introspection view used by diagnostics and UI indicators.
type Status struct {
	Running           bool      `json:"is_running"`
	Transport         string    `json:"transport"`
	LastUpdate        time.Time `json:"last_update"`
	Subscribers       int       `json:"subscriber_count"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
}

// Internal events serialized through the run loop.
type (
	evPushDialed struct {
		push *transport.Push
		err  error
	}
	evPushClosed struct {
		err error
	}
	evUpdate struct {
		snap   snapshot.Snapshot
		source string
	}
	evRefresh struct{}
)

type event any

// Service is the composition root. All merges and broadcasts run on a
// single owner goroutine, so subscribers always observe fully merged
// snapshots, delivered in acceptance order.
type Service struct {
	cfg      config.DistributionConfig
	logger   *zap.Logger
	notifier Notifier

	cache    *snapshot.Cache
	registry *Registry
	fetcher  *transport.Fetcher

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	events  chan event

	statusMu  sync.RWMutex
	transport string
	attempts  int
}

// New creates a stopped service. notifier may be nil.
func New(cfg config.DistributionConfig, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		cfg:       cfg,
		logger:    logger,
		notifier:  notifier,
		cache:     snapshot.NewCache(),
		registry:  NewRegistry(logger),
		fetcher:   transport.NewFetcher(cfg.PullURL, cfg.PullTimeout, logger),
		transport: TransportNone,
	}
}

// Start brings the service up: an immediate fetch-all, then a push
// connection attempt with the reconnect controller in charge. Idempotent;
// calling Start on a running service is a no-op. Never returns an error to
// the caller: fetch and connect failures surface as error snapshots and
// status changes.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Debug("start ignored; already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan event, 32)
	done := make(chan struct{})

	s.ctx = ctx
	s.cancel = cancel
	s.events = events
	s.done = done
	s.running = true

	s.logger.Info("distribution service starting",
		zap.String("pushURL", s.cfg.PushURL),
		zap.String("pullURL", s.cfg.PullURL),
		zap.Duration("pollInterval", s.cfg.PollInterval),
	)

	go func() {
		defer close(done)
		s.run(ctx, events)
	}()
}

// Stop tears both transports down, cancels every timer, and resets the
// reconnect state. Idempotent. When Stop returns, no further snapshot is
// broadcast; an in-flight fetch completing afterwards is discarded.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("distribution service stopped")
}

// Subscribe registers a consumer for every accepted update.
func (s *Service) Subscribe(label string, fn Callback) string {
	return s.registry.Subscribe(label, fn)
}

// Unsubscribe removes a subscription; returns false if the id is unknown.
func (s *Service) Unsubscribe(id string) bool {
	return s.registry.Unsubscribe(id)
}

// CurrentSnapshot returns the cached state without a network round trip,
// or nil if no update has ever been accepted.
func (s *Service) CurrentSnapshot() snapshot.Snapshot {
	return s.cache.Snapshot()
}

// DomainValue returns the cached value for one domain key.
func (s *Service) DomainValue(key string) (snapshot.Snapshot, bool) {
	v, ok := s.cache.Domain(key)
	if !ok {
		return nil, false
	}
	return snapshot.Snapshot{key: v}, true
}

// Refresh forces an immediate fetch-all regardless of transport state or
// timer phase. A no-op when the service is not running.
func (s *Service) Refresh() {
	s.mu.Lock()
	running := s.running
	ctx := s.ctx
	events := s.events
	s.mu.Unlock()

	if !running {
		s.logger.Debug("refresh ignored; service not running")
		return
	}

	select {
	case events <- evRefresh{}:
	case <-ctx.Done():
	}
}

// RefreshDomain forces a refresh on behalf of one view. The pull endpoint
// only serves full state, so this is a fetch-all like Refresh.
func (s *Service) RefreshDomain(key string) {
	s.logger.Debug("domain refresh requested", zap.String("domain", key))
	s.Refresh()
}

// Status reports the current introspection view.
func (s *Service) Status() Status {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	s.statusMu.RLock()
	tr := s.transport
	attempts := s.attempts
	s.statusMu.RUnlock()

	return Status{
		Running:           running,
		Transport:         tr,
		LastUpdate:        s.cache.LastUpdate(),
		Subscribers:       s.registry.Count(),
		ReconnectAttempts: attempts,
	}
}

// runSink binds one run's push connection to that run's event channel, so
// a pump outliving a Stop/Start cycle cannot leak into the next run.
type runSink struct {
	ctx    context.Context
	events chan<- event
}

func (rs *runSink) AcceptUpdate(snap snapshot.Snapshot) {
	select {
	case rs.events <- evUpdate{snap: snap, source: "push"}:
	case <-rs.ctx.Done():
	}
}

func (rs *runSink) TransportClosed(err error) {
	select {
	case rs.events <- evPushClosed{err: err}:
	case <-rs.ctx.Done():
	}
}

func (s *Service) run(ctx context.Context, events chan event) {
	ctrl := reconnect.New(s.cfg.ReconnectBaseDelay, s.cfg.ReconnectMaxAttempts)
	sink := &runSink{ctx: ctx, events: events}

	var push *transport.Push
	var pullTicker *time.Ticker
	var pullC <-chan time.Time
	var retryTimer *time.Timer
	var retryC <-chan time.Time
	var dialWG sync.WaitGroup
	degraded := false

	startPull := func() {
		if pullC != nil {
			return
		}
		pullTicker = time.NewTicker(s.cfg.PollInterval)
		pullC = pullTicker.C
		s.setTransport(TransportPull)
		s.logger.Info("pull transport active", zap.Duration("interval", s.cfg.PollInterval))
		go s.fetchInto(ctx, events, "pull")
	}
	stopPull := func() {
		if pullTicker != nil {
			pullTicker.Stop()
			pullTicker = nil
			pullC = nil
		}
	}
	stopRetry := func() {
		if retryTimer != nil {
			retryTimer.Stop()
			retryTimer = nil
			retryC = nil
		}
	}
	dial := func() {
		dialWG.Add(1)
		go func() {
			defer dialWG.Done()
			p, err := transport.DialPush(ctx, s.cfg.PushURL, sink, s.logger)
			select {
			case events <- evPushDialed{push: p, err: err}:
			case <-ctx.Done():
				if p != nil {
					p.Close()
				}
			}
		}()
	}
	// The pull loop starts the instant push drops, independent of backoff
	// progress, so consumers never go dark during a reconnect window.
	onPushLost := func(err error) {
		degraded = true
		startPull()

		delay, retry := ctrl.ConnectionLost()
		s.setAttempts(ctrl.Attempts())
		if retry {
			s.logger.Warn("push transport lost; reconnect scheduled",
				zap.Int("attempt", ctrl.Attempts()),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			retryTimer = time.NewTimer(delay)
			retryC = retryTimer.C
			return
		}

		s.logger.Warn("push reconnect attempts exhausted; committed to pull mode",
			zap.Int("attempts", ctrl.Attempts()),
			zap.Error(err),
		)
		if s.notifier != nil {
			go s.notifier.PushExhausted(ctx, ctrl.Attempts())
		}
	}

	ctrl.Start()
	go s.fetchInto(ctx, events, "startup")
	dial()

	for {
		select {
		case <-ctx.Done():
			stopPull()
			stopRetry()
			if push != nil {
				push.Close()
			}
			// A dial racing the cancellation can queue its result instead
			// of seeing ctx.Done; wait it out and close any connection it
			// won.
			dialWG.Wait()
			drainDialed(events)
			ctrl.Reset()
			s.setTransport(TransportNone)
			s.setAttempts(0)
			return

		case <-retryC:
			stopRetry()
			ctrl.Retrying()
			s.logger.Info("retrying push connection", zap.Int("attempt", ctrl.Attempts()))
			dial()

		case <-pullC:
			go s.fetchInto(ctx, events, "pull")

		case ev := <-events:
			switch e := ev.(type) {
			case evPushDialed:
				if e.err != nil {
					onPushLost(e.err)
					continue
				}
				push = e.push
				ctrl.Connected()
				s.setAttempts(0)
				stopPull()
				stopRetry()
				s.setTransport(TransportPush)
				s.logger.Info("push transport active", zap.String("clientID", push.ClientID()))
				if degraded && s.notifier != nil {
					go s.notifier.PushRecovered(ctx)
				}
				degraded = false
				go push.ReadPump()

			case evPushClosed:
				if push != nil {
					push.Close()
					push = nil
				}
				onPushLost(e.err)

			case evUpdate:
				s.applyUpdate(e.snap, e.source)

			case evRefresh:
				go s.fetchInto(ctx, events, "refresh")
			}
		}
	}
}

// drainDialed closes any push connection still queued when the run loop
// exits. Other queued events carry no resources and are discarded.
func drainDialed(events chan event) {
	for {
		select {
		case ev := <-events:
			if e, ok := ev.(evPushDialed); ok && e.push != nil {
				e.push.Close()
			}
		default:
			return
		}
	}
}

// fetchInto performs one full-state fetch and posts the result. A failure
// becomes an error snapshot so subscriber code handles one uniform shape.
// Results arriving after the run ended are dropped.
func (s *Service) fetchInto(ctx context.Context, events chan<- event, source string) {
	snap, err := s.fetcher.FetchAll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("full-state fetch failed",
			zap.String("source", source),
			zap.Error(err),
		)
		snap = snapshot.ForError(err.Error())
	}

	select {
	case events <- evUpdate{snap: snap, source: source}:
	case <-ctx.Done():
	}
}

// applyUpdate is the merge-then-broadcast step. It runs only on the run
// loop goroutine, which is what makes it atomic with respect to other
// updates.
func (s *Service) applyUpdate(snap snapshot.Snapshot, source string) {
	if len(snap) == 0 {
		s.logger.Debug("ignoring empty update", zap.String("source", source))
		return
	}

	accepted := s.cache.Merge(snap)
	full := s.cache.Snapshot()
	if full == nil {
		s.logger.Debug("update fully rejected with empty cache", zap.String("source", source))
		return
	}

	s.logger.Debug("update merged",
		zap.String("source", source),
		zap.Int("acceptedKeys", accepted),
		zap.Int("totalKeys", len(full)),
	)
	s.registry.NotifyAll(full)
}

func (s *Service) setTransport(t string) {
	s.statusMu.Lock()
	s.transport = t
	s.statusMu.Unlock()
}

func (s *Service) setAttempts(n int) {
	s.statusMu.Lock()
	s.attempts = n
	s.statusMu.Unlock()
}
