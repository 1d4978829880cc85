package legion

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/antheas/hhd/internal/devicedb"
	"github.com/antheas/hhd/pkg/bus"
)

// ConfigKey is the bus key the daemon publishes configuration updates
// under. An update cancels the running session; the next one picks the
// new settings up.
const ConfigKey = "legion/config"

type ConfigBus = bus.Bus[string, SessionConfig]

type supervisorOptions struct {
	pollInterval time.Duration
	backoff      time.Duration
}

var defaultOptions = supervisorOptions{
	pollInterval: 2 * time.Second,
	backoff:      3 * time.Second,
}

type Option func(o *supervisorOptions)

func WithPollInterval(d time.Duration) Option {
	return func(o *supervisorOptions) {
		o.pollInterval = d
	}
}

func WithBackoff(d time.Duration) Option {
	return func(o *supervisorOptions) {
		o.backoff = d
	}
}

// Supervisor owns the controller lifecycle: it polls for supported
// hardware, runs one session per sighting and restarts after errors,
// which covers suspend cycles and cable pulls.
type Supervisor struct {
	log     *zap.Logger
	store   *devicedb.Store
	bus     *ConfigBus
	options supervisorOptions
	ready   chan struct{}

	mu  sync.Mutex
	cfg SessionConfig
}

func NewSupervisor(log *zap.Logger, store *devicedb.Store, cfgBus *ConfigBus, cfg SessionConfig, opts ...Option) *Supervisor {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Supervisor{
		log:     log,
		store:   store,
		bus:     cfgBus,
		options: options,
		ready:   make(chan struct{}),
		cfg:     cfg,
	}
}

func (s *Supervisor) Ready() <-chan struct{} {
	return s.ready
}

func (s *Supervisor) config() SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Supervisor) setConfig(cfg SessionConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *Supervisor) Start(ctx context.Context) error {
	updates := s.bus.Subscribe(ctx, ConfigKey)
	close(s.ready)
	for {
		dev, err := Discover()
		switch {
		case err != nil:
			s.log.Error("discovery failed", zap.Error(err))
			if !s.wait(ctx, updates, s.options.backoff) {
				return nil
			}
			continue
		case dev == nil:
			if !s.wait(ctx, updates, s.options.pollInterval) {
				return nil
			}
			continue
		}

		if _, err := s.store.Observe(dev.Address(), dev.Name, string(dev.Mode), dev.Mode == ModeXinput); err != nil {
			s.log.Warn("failed to record device", zap.Error(err))
		}

		if dev.Mode != ModeXinput {
			s.log.Warn("controllers not in xinput mode, not emulating",
				zap.String("mode", string(dev.Mode)), zap.String("address", dev.Address()))
			if !s.wait(ctx, updates, s.options.backoff) {
				return nil
			}
			continue
		}

		err = s.runSession(ctx, updates)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.log.Error("session failed, retrying", zap.Error(err), zap.Duration("backoff", s.options.backoff))
		} else {
			s.log.Info("session ended, rediscovering")
		}
		if !s.wait(ctx, updates, s.options.backoff) {
			return nil
		}
	}
}

// runSession runs one session and cancels it when the configuration
// changes, so the restart path applies the new settings.
func (s *Supervisor) runSession(ctx context.Context, updates <-chan bus.Message[string, SessionConfig]) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sctx.Done():
		case msg := <-updates:
			s.log.Info("configuration changed, restarting session")
			s.setConfig(msg.Message)
			cancel()
		}
	}()
	return RunSession(sctx, s.log.Named("session"), s.config())
}

// wait sleeps for d while absorbing configuration updates. It returns
// false when the context is cancelled.
func (s *Supervisor) wait(ctx context.Context, updates <-chan bus.Message[string, SessionConfig], d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case msg := <-updates:
			s.setConfig(msg.Message)
		case <-timer.C:
			return true
		}
	}
}
