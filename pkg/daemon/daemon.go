// Package daemon assembles the services of the hhd daemon: configuration
// watching, the device record store and the controller supervisor.
package daemon

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/antheas/hhd/internal/configsvc"
	"github.com/antheas/hhd/internal/devicedb"
	"github.com/antheas/hhd/internal/legion"
	"github.com/antheas/hhd/pkg/bus"
)

type Daemon struct {
	config Config
	log    *zap.Logger

	db        *badger.DB
	configSvc *configsvc.Service
	configBus *legion.ConfigBus
	store     *devicedb.Store
}

func NewDaemon(config Config) (*Daemon, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	dbOptions := badger.DefaultOptions(filepath.Join(config.DataDir, "db"))
	dbOptions.Logger = &badgerLogger{l: logger.Named("badger")}

	db, err := badger.Open(dbOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &Daemon{
		config:    config,
		log:       logger,
		db:        db,
		configSvc: configsvc.New(logger.Named("config")),
		configBus: bus.NewBus[string, legion.SessionConfig](logger.Named("bus")),
		store:     devicedb.New(db, logger.Named("devicedb"), time.Now),
	}, nil
}

func (d *Daemon) Close() error {
	return d.db.Close()
}

type badgerLogger struct {
	l *zap.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.l.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.l.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.l.Info(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.l.Debug(fmt.Sprintf(msg, args...))
}

// Run starts the daemon and blocks until the context is cancelled. The
// controller configuration file is created with defaults on first start.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.configSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return d.configBus.Start(groupCtx)
	})
	group.Go(func() error {
		select {
		case <-groupCtx.Done():
			return nil
		case <-d.configSvc.Ready():
		}
		select {
		case <-groupCtx.Done():
			return nil
		case <-d.configBus.Ready():
		}

		publish := d.configBus.CreatePublisher(legion.ConfigKey)
		cfg, err := configsvc.RegisterWriteable(d.configSvc, d.config.ControllerConfig, DefaultControllerConfig(),
			func(cfg ControllerConfig, err error) {
				if err != nil {
					d.log.Error("failed to reload controller config", zap.Error(err))
					return
				}
				publish(groupCtx, cfg.session())
			})
		if err != nil {
			return fmt.Errorf("failed to register controller config: %w", err)
		}

		var opts []legion.Option
		if cfg.DiscoveryBackoff > 0 {
			opts = append(opts, legion.WithBackoff(time.Duration(cfg.DiscoveryBackoff*float64(time.Second))))
		}
		supervisor := legion.NewSupervisor(d.log.Named("legion"), d.store, d.configBus, cfg.session(), opts...)
		return supervisor.Start(groupCtx)
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("daemon failed: %w", err)
	}
	return nil
}

// Monitor polls for controllers and writes connection changes to out
// until the context is cancelled. Sightings are recorded like the
// supervisor records them.
func (d *Daemon) Monitor(ctx context.Context, out io.Writer) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	known := make(map[string]struct{})
	for {
		devices, err := legion.Enumerate()
		if err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(devices))
		for _, dev := range devices {
			addr := dev.Address()
			seen[addr] = struct{}{}
			if _, ok := known[addr]; ok {
				continue
			}
			known[addr] = struct{}{}
			fmt.Fprintf(out, "connected %s %q mode=%s\n", addr, dev.Name, dev.Mode)
			if _, err := d.store.Observe(addr, dev.Name, string(dev.Mode), false); err != nil {
				d.log.Warn("failed to record device", zap.Error(err))
			}
		}
		for addr := range known {
			if _, ok := seen[addr]; !ok {
				delete(known, addr)
				fmt.Fprintf(out, "disconnected %s\n", addr)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DeviceStatus is one known controller, connected or remembered.
type DeviceStatus struct {
	devicedb.Record
	Connected bool `json:"connected"`
}

// ListDevices merges currently enumerable controllers with the persistent
// device records.
func (d *Daemon) ListDevices() ([]DeviceStatus, error) {
	records, err := d.store.List()
	if err != nil {
		return nil, err
	}
	live, err := legion.Enumerate()
	if err != nil {
		return nil, err
	}
	connected := make(map[string]legion.Device, len(live))
	for _, dev := range live {
		connected[dev.Address()] = dev
	}

	var out []DeviceStatus
	for _, rec := range records {
		_, ok := connected[rec.Address]
		delete(connected, rec.Address)
		out = append(out, DeviceStatus{Record: rec, Connected: ok})
	}
	for addr, dev := range connected {
		out = append(out, DeviceStatus{
			Record: devicedb.Record{
				Address: addr,
				Name:    dev.Name,
				Mode:    string(dev.Mode),
			},
			Connected: true,
		})
	}
	return out, nil
}
