package controller

// GateState is the accumulated state of a PassthroughGate. It is advanced
// exclusively by the gate's own step inside the owning loop iteration, so
// no synchronization is needed.
type GateState struct {
	// Held reports whether a modifier button is currently down.
	Held bool
	// PendingRelease holds button codes observed pressed that filtered mode
	// will never release on its own. Flushed as synthetic release events on
	// the iteration where Held transitions true to false.
	PendingRelease []Code
}

type gatePolicy struct {
	modifiers map[Code]struct{}
	allow     map[Code]struct{}
}

// step is the gate transition function: one scan of the input batch yields
// the next state and the output batch.
//
// While no modifier is held the output is every configuration event plus
// the button/axis events whose code is allow-listed; presses of other
// non-modifier buttons are recorded for later release. While a modifier is
// held the full batch passes through untouched (the bookkeeping still runs,
// so buttons pressed during bypass are tracked too). On the batch where the
// modifier is released, the filtered output is extended with a synthetic
// release for every recorded code, guaranteeing the consumer never sees a
// button stuck pressed after bypass ends.
func (p gatePolicy) step(state GateState, batch []Event) (GateState, []Event) {
	prevHeld := state.Held
	out := make([]Event, 0, len(batch))

	for _, ev := range batch {
		if ev.Kind == KindButton {
			if _, ok := p.modifiers[ev.Code]; ok {
				state.Held = ev.Pressed
			}
		}

		switch {
		case ev.Kind == KindConfiguration:
			out = append(out, ev)
		case p.allowed(ev):
			out = append(out, ev)
		case ev.Kind == KindButton && ev.Pressed && !p.isModifier(ev.Code):
			state.PendingRelease = append(state.PendingRelease, ev.Code)
		}
	}

	switch {
	case state.Held:
		return state, batch
	case prevHeld:
		for _, code := range state.PendingRelease {
			out = append(out, ButtonEvent(code, false))
		}
		state.PendingRelease = nil
		return state, out
	default:
		return state, out
	}
}

func (p gatePolicy) allowed(ev Event) bool {
	if ev.Kind != KindButton && ev.Kind != KindAxis {
		return false
	}
	_, ok := p.allow[ev.Code]
	return ok
}

func (p gatePolicy) isModifier(code Code) bool {
	_, ok := p.modifiers[code]
	return ok
}

// PassthroughGate decorates the raw vendor channel. Most vendor buttons are
// withheld from the merged stream unless a designated modifier is held, in
// which case the channel is exposed verbatim; a fixed allow-list is always
// forwarded. The gate performs no I/O of its own: errors are only those of
// the wrapped device.
type PassthroughGate struct {
	parent SourceSink
	policy gatePolicy
	state  GateState
}

// NewPassthroughGate wraps parent. Holding any button in modifiers switches
// the gate to raw bypass; codes in allow are forwarded even while filtered.
func NewPassthroughGate(parent SourceSink, modifiers, allow []Code) *PassthroughGate {
	p := gatePolicy{
		modifiers: make(map[Code]struct{}, len(modifiers)),
		allow:     make(map[Code]struct{}, len(allow)),
	}
	for _, c := range modifiers {
		p.modifiers[c] = struct{}{}
	}
	for _, c := range allow {
		p.allow[c] = struct{}{}
	}
	return &PassthroughGate{parent: parent, policy: p}
}

func (g *PassthroughGate) Open() ([]Handle, error) {
	return g.parent.Open()
}

func (g *PassthroughGate) Produce(ready []Handle) ([]Event, error) {
	batch, err := g.parent.Produce(ready)
	if err != nil {
		return nil, err
	}
	var out []Event
	g.state, out = g.policy.step(g.state, batch)
	return out, nil
}

func (g *PassthroughGate) Consume(batch []Event) error {
	return g.parent.Consume(batch)
}

func (g *PassthroughGate) Close(forced bool) error {
	return g.parent.Close(forced)
}
