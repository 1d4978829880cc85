package controller

// Handle is a waitable handle yielded by an opened Source. On Linux every
// handle is a file descriptor suitable for poll(2). A Source that has no
// kernel-backed descriptor signals readiness through a self-pipe instead.
type Handle = int32

// Source is the capability exposed by every input-producing device.
//
// Open acquires hardware resources and returns the handle set the
// aggregation loop waits on. It is called at most once; if it fails it must
// not leave handles registered for later Produce calls.
//
// Produce is called once per loop iteration when at least one of the
// source's handles became ready. It must not block: it returns only events
// already buffered by the OS or driver layer. The ready set may contain
// handles belonging to other sources; unknown handles are ignored.
//
// Close releases all resources. It is called exactly once on every session
// exit path and must be safe to call after a failed Open. The forced flag
// marks abrupt shutdown; a device may use it to skip graceful handshakes.
type Source interface {
	Open() ([]Handle, error)
	Produce(ready []Handle) ([]Event, error)
	Close(forced bool) error
}

// Sink is the capability exposed by every event consumer. Consume applies
// the events relevant to the device and silently ignores unknown codes; it
// never blocks materially. Open and Close follow the Source lifecycle; a
// sink with nothing to wait on returns no handles.
type Sink interface {
	Open() ([]Handle, error)
	Consume(batch []Event) error
	Close(forced bool) error
}

// SourceSink is a device that both produces and consumes events, such as
// the virtual controller (reads rumble, writes reports) or the raw vendor
// channel (reads vendor buttons, writes LED commands).
type SourceSink interface {
	Source
	Sink
}
