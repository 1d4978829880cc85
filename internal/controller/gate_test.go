package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() gatePolicy {
	return gatePolicy{
		modifiers: map[Code]struct{}{CodeMode: {}, CodeShare: {}},
		allow:     map[Code]struct{}{"btn_quick": {}, "scroll_up": {}, "scroll_down": {}},
	}
}

func TestGateStep(t *testing.T) {
	type step struct {
		in      []Event
		out     []Event
		held    bool
		pending []Code
	}
	testCases := []struct {
		name  string
		steps []step
	}{
		{
			name: "allow list passthrough while unheld",
			steps: []step{
				{
					in:  []Event{ButtonEvent("btn_quick", true), AxisEvent("wheel", 0.5)},
					out: []Event{ButtonEvent("btn_quick", true)},
				},
				{
					in:  []Event{ButtonEvent("btn_quick", false)},
					out: []Event{ButtonEvent("btn_quick", false)},
				},
			},
		},
		{
			name: "configuration always forwarded",
			steps: []step{
				{
					in:  []Event{ConfEvent(CodeLedMain, "ff0000"), ButtonEvent("y1", true)},
					out: []Event{ConfEvent(CodeLedMain, "ff0000")},
					pending: []Code{"y1"},
				},
			},
		},
		{
			name: "unlisted press recorded and dropped",
			steps: []step{
				{
					in:      []Event{ButtonEvent("y1", true), ButtonEvent("y2", true)},
					out:     []Event{},
					pending: []Code{"y1", "y2"},
				},
			},
		},
		{
			name: "modifier press switches to bypass in same batch",
			steps: []step{
				{
					in: []Event{
						ButtonEvent(CodeMode, true),
						ButtonEvent("y1", true),
					},
					out: []Event{
						ButtonEvent(CodeMode, true),
						ButtonEvent("y1", true),
					},
					held:    true,
					pending: []Code{"y1"},
				},
				{
					in: []Event{ButtonEvent(CodeMode, false)},
					out: []Event{
						ButtonEvent("y1", false),
					},
				},
			},
		},
		{
			name: "bypass is identity regardless of allow list",
			steps: []step{
				{
					in:   []Event{ButtonEvent(CodeShare, true)},
					out:  []Event{ButtonEvent(CodeShare, true)},
					held: true,
				},
				{
					in: []Event{
						AxisEvent("wheel", -1),
						ButtonEvent("y3", true),
						ConfEvent(CodeStatus, nil),
					},
					out: []Event{
						AxisEvent("wheel", -1),
						ButtonEvent("y3", true),
						ConfEvent(CodeStatus, nil),
					},
					held:    true,
					pending: []Code{"y3"},
				},
				{
					in: []Event{
						ButtonEvent("y3", false),
						ButtonEvent(CodeShare, false),
					},
					// y3 released naturally during bypass, but the recorded
					// press is still flushed. The duplicate release is
					// harmless to the consumer.
					out: []Event{ButtonEvent("y3", false)},
				},
			},
		},
		{
			name: "transition flushes releases after filtered output",
			steps: []step{
				{
					in:      []Event{ButtonEvent(CodeMode, true), ButtonEvent("y2", true)},
					out:     []Event{ButtonEvent(CodeMode, true), ButtonEvent("y2", true)},
					held:    true,
					pending: []Code{"y2"},
				},
				{
					in: []Event{
						ButtonEvent(CodeMode, false),
						ButtonEvent("btn_quick", true),
					},
					out: []Event{
						ButtonEvent("btn_quick", true),
						ButtonEvent("y2", false),
					},
				},
				{
					in:  []Event{ButtonEvent("y2", false)},
					out: []Event{},
				},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := testPolicy()
			var state GateState
			for i, s := range tc.steps {
				var out []Event
				state, out = p.step(state, s.in)
				assert.Equal(t, s.out, out, "step %d output", i)
				assert.Equal(t, s.held, state.Held, "step %d held", i)
				assert.Equal(t, s.pending, state.PendingRelease, "step %d pending", i)
			}
		})
	}
}

// Pending releases must never contain allow-listed or modifier codes: those
// either release themselves in filtered mode or toggle the gate.
func TestGatePendingExcludesAllowedAndModifiers(t *testing.T) {
	p := testPolicy()
	var state GateState
	state, _ = p.step(state, []Event{
		ButtonEvent(CodeMode, true),
		ButtonEvent("btn_quick", true),
		ButtonEvent(CodeShare, true),
		ButtonEvent("y1", true),
	})
	require.Equal(t, []Code{"y1"}, state.PendingRelease)
}

// No button forwarded during bypass may remain pressed, from the consumer's
// point of view, past the batch where the modifier is released.
func TestGateNoStuckButton(t *testing.T) {
	p := testPolicy()
	batches := [][]Event{
		{ButtonEvent("y1", true)},
		{ButtonEvent(CodeMode, true)},
		{ButtonEvent("y2", true), AxisEvent("wheel", 1)},
		{ButtonEvent("m3", true), ButtonEvent("m3", false)},
		{ButtonEvent(CodeMode, false)},
		{ButtonEvent("y1", false), ButtonEvent("y2", false)},
	}

	pressed := map[Code]bool{}
	var state GateState
	for _, batch := range batches {
		var out []Event
		state, out = p.step(state, batch)
		for _, ev := range out {
			if ev.Kind == KindButton {
				pressed[ev.Code] = ev.Pressed
			}
		}
		if !state.Held {
			for code, down := range pressed {
				_, allowed := p.allow[code]
				_, modifier := p.modifiers[code]
				if allowed || modifier {
					continue
				}
				assert.False(t, down, "button %s stuck pressed after bypass", code)
			}
		}
	}
	require.Empty(t, state.PendingRelease)
}

type fakeParent struct {
	batch    []Event
	consumed [][]Event
	handles  []Handle
	closed   []bool
	openErr  error
}

func (f *fakeParent) Open() ([]Handle, error) { return f.handles, f.openErr }
func (f *fakeParent) Close(forced bool) error { f.closed = append(f.closed, forced); return nil }
func (f *fakeParent) Produce(ready []Handle) ([]Event, error) {
	batch := f.batch
	f.batch = nil
	return batch, nil
}
func (f *fakeParent) Consume(batch []Event) error {
	f.consumed = append(f.consumed, batch)
	return nil
}

func TestPassthroughGateDelegates(t *testing.T) {
	parent := &fakeParent{handles: []Handle{42}}
	gate := NewPassthroughGate(parent, []Code{CodeMode}, []Code{"btn_quick"})

	handles, err := gate.Open()
	require.NoError(t, err)
	assert.Equal(t, []Handle{42}, handles)

	parent.batch = []Event{ButtonEvent("y1", true), ButtonEvent("btn_quick", true)}
	out, err := gate.Produce([]Handle{42})
	require.NoError(t, err)
	assert.Equal(t, []Event{ButtonEvent("btn_quick", true)}, out)

	batch := []Event{ConfEvent(CodeLedLeft, "00ff00")}
	require.NoError(t, gate.Consume(batch))
	assert.Equal(t, [][]Event{batch}, parent.consumed)

	require.NoError(t, gate.Close(true))
	assert.Equal(t, []bool{true}, parent.closed)
}
