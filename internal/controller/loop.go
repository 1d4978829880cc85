package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ErrSinkFailed wraps sink application failures. A malfunctioning virtual
// device write is not locally recoverable, so the loop surfaces it to the
// supervisor instead of dropping events and desynchronizing state.
var ErrSinkFailed = errors.New("sink failed to apply batch")

// Normalize remaps a merged batch before dispatch. It must be pure:
// deterministic given its input and free of side effects.
type Normalize func(batch []Event) []Event

// Loop drives the poll/merge/normalize/dispatch/pace cycle over a fixed set
// of sources and sinks. It owns the device lifecycle: every device is opened
// when Run starts and closed exactly once on every exit path.
//
// Each iteration blocks on readiness across the union of all source handles
// with a timeout of 1/minFreq, so sinks are serviced at least minFreq times
// per second even with no hardware activity. After dispatch the iteration
// sleeps out the remainder of 1/maxFreq, coalescing near-simultaneous
// readiness into a single batch and bounding the dispatch rate from above.
type Loop struct {
	log       *zap.Logger
	sources   []Source
	sinks     []Sink
	normalize Normalize

	minPeriod time.Duration // 1/maxFreq, lower bound on iteration time
	maxPeriod time.Duration // 1/minFreq, readiness wait timeout
}

// NewLoop assembles a loop over sources and sinks in registration order.
// A device registered as both source and sink is opened and closed once.
func NewLoop(log *zap.Logger, sources []Source, sinks []Sink, normalize Normalize, minFreq, maxFreq float64) (*Loop, error) {
	if minFreq <= 0 || maxFreq < minFreq {
		return nil, fmt.Errorf("invalid report frequency bounds: min %v, max %v", minFreq, maxFreq)
	}
	if normalize == nil {
		normalize = func(batch []Event) []Event { return batch }
	}
	return &Loop{
		log:       log,
		sources:   sources,
		sinks:     sinks,
		normalize: normalize,
		minPeriod: time.Duration(float64(time.Second) / maxFreq),
		maxPeriod: time.Duration(float64(time.Second) / minFreq),
	}, nil
}

// device is the shared lifecycle surface of Source and Sink.
type device interface {
	Open() ([]Handle, error)
	Close(forced bool) error
}

// devices returns sources and sinks in registration order with duplicates
// removed, so a SourceSink participates in the lifecycle exactly once.
func (l *Loop) devices() []device {
	var devs []device
	seen := func(d device) bool {
		for _, have := range devs {
			if have == d {
				return true
			}
		}
		return false
	}
	for _, s := range l.sources {
		if !seen(s) {
			devs = append(devs, s)
		}
	}
	for _, s := range l.sinks {
		if !seen(s) {
			devs = append(devs, s)
		}
	}
	return devs
}

// Run executes the aggregation cycle until ctx is cancelled or a fatal
// source/sink error occurs. Cancellation is not an error: Run returns nil
// and devices are closed gracefully. On error every opened device is closed
// with the forced flag before the error is propagated.
func (l *Loop) Run(ctx context.Context) (retErr error) {
	// Self-pipe so cancellation interrupts the readiness wait promptly.
	var wake [2]int
	if err := unix.Pipe2(wake[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return fmt.Errorf("failed to create wake pipe: %w", err)
	}
	defer unix.Close(wake[0])
	wakeCtx, wakeCancel := context.WithCancel(ctx)
	defer wakeCancel()
	go func() {
		<-wakeCtx.Done()
		unix.Write(wake[1], []byte{0})
		unix.Close(wake[1])
	}()

	devs := l.devices()
	owner := make(map[Handle]int, len(l.sources))
	pollFds := []unix.PollFd{{Fd: int32(wake[0]), Events: unix.POLLIN}}

	var opened []device
	defer func() {
		forced := retErr != nil
		for _, d := range opened {
			if err := d.Close(forced); err != nil {
				l.log.Warn("failed to close device", zap.Bool("forced", forced), zap.Error(err))
			}
		}
	}()

	for _, d := range devs {
		handles, err := d.Open()
		opened = append(opened, d)
		if err != nil {
			return fmt.Errorf("failed to open device: %w", err)
		}
		idx := l.sourceIndex(d)
		for _, h := range handles {
			if idx < 0 {
				// Sink-only handles are not waited on.
				continue
			}
			if prev, ok := owner[h]; ok {
				return fmt.Errorf("handle %d claimed by sources %d and %d", h, prev, idx)
			}
			owner[h] = idx
			pollFds = append(pollFds, unix.PollFd{Fd: int32(h), Events: unix.POLLIN})
		}
	}

	l.log.Debug("aggregation loop started",
		zap.Int("sources", len(l.sources)),
		zap.Int("sinks", len(l.sinks)),
		zap.Duration("minPeriod", l.minPeriod),
		zap.Duration("maxPeriod", l.maxPeriod))

	timeoutMs := int(l.maxPeriod.Milliseconds())
	if timeoutMs < 1 {
		timeoutMs = 1
	}
	ready := make([]Handle, 0, len(pollFds))
	produce := make([]bool, len(l.sources))

	for {
		if ctx.Err() != nil {
			return nil
		}
		start := time.Now()

		for i := range pollFds {
			pollFds[i].Revents = 0
		}
		n, err := unix.Poll(pollFds, timeoutMs)
		if err != nil && err != unix.EINTR {
			return fmt.Errorf("readiness wait failed: %w", err)
		}

		ready = ready[:0]
		for i := range produce {
			produce[i] = false
		}
		if n > 0 {
			for _, pfd := range pollFds[1:] {
				if pfd.Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) == 0 {
					continue
				}
				h := Handle(pfd.Fd)
				ready = append(ready, h)
				produce[owner[h]] = true
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		// One Produce call per ready source, in registration order, even
		// when several of its handles signalled at once.
		var batch []Event
		for i, src := range l.sources {
			if !produce[i] {
				continue
			}
			evs, err := src.Produce(ready)
			if err != nil {
				return fmt.Errorf("source %d failed: %w", i, err)
			}
			batch = append(batch, evs...)
		}

		if len(batch) > 0 {
			batch = l.normalize(batch)
			for i, sink := range l.sinks {
				if err := sink.Consume(batch); err != nil {
					return fmt.Errorf("%w: sink %d: %v", ErrSinkFailed, i, err)
				}
			}
		}

		// Pace: coalesce bursts into one report per minPeriod.
		if elapsed := time.Since(start); elapsed < l.minPeriod {
			time.Sleep(l.minPeriod - elapsed)
		}
	}
}

func (l *Loop) sourceIndex(d device) int {
	for i, s := range l.sources {
		if device(s) == d {
			return i
		}
	}
	return -1
}
