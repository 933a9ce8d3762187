package keymap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbdcode-go/behaviors"
	"kbdcode-go/errcode"
	"kbdcode-go/types"
)

type call struct {
	name    string
	pressed bool
	layer   uint8
}

// probe records calls and answers with a fixed result.
type probe struct {
	name  string
	res   behaviors.Result
	err   error
	calls *[]call
}

func (p probe) OnPressed(_ behaviors.Binding, ev behaviors.Event) (behaviors.Result, error) {
	*p.calls = append(*p.calls, call{p.name, true, ev.Layer})
	return p.res, p.err
}

func (p probe) OnReleased(_ behaviors.Binding, ev behaviors.Event) (behaviors.Result, error) {
	*p.calls = append(*p.calls, call{p.name, false, ev.Layer})
	return p.res, p.err
}

func newTestKeymap(t *testing.T, layers ...[]string) *Keymap {
	t.Helper()
	var cfg types.KeymapConfig
	for _, l := range layers {
		cfg.Layers = append(cfg.Layers, types.LayerConfig{Bindings: l})
	}
	km, err := New(cfg)
	require.NoError(t, err)
	return km
}

func TestParseBinding(t *testing.T) {
	cases := []struct {
		in   string
		want behaviors.Binding
		err  bool
	}{
		{"kp 0x04", behaviors.Binding{Behavior: "kp", Param1: 4}, false},
		{"&mo 1", behaviors.Binding{Behavior: "mo", Param1: 1}, false},
		{"ttn", behaviors.Binding{Behavior: "ttn"}, false},
		{"", behaviors.Binding{Behavior: "trans"}, false},
		{"x 1 2", behaviors.Binding{Behavior: "x", Param1: 1, Param2: 2}, false},
		{"kp A", behaviors.Binding{}, true},
		{"x 1 2 3", behaviors.Binding{}, true},
	}
	for _, c := range cases {
		got, err := ParseBinding(c.in)
		if c.err {
			assert.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestLayerTo(t *testing.T) {
	km := newTestKeymap(t, []string{"a"}, []string{"a"}, []string{"a"}, []string{"a"})
	var states []types.LayerState
	km.OnChange(func(s types.LayerState) { states = append(states, s) })

	require.NoError(t, km.LayerActivate(1))
	require.NoError(t, km.LayerActivate(2))
	assert.Equal(t, uint8(2), km.Highest())

	require.NoError(t, km.LayerTo(3))
	assert.True(t, km.IsActive(0))
	assert.False(t, km.IsActive(1))
	assert.False(t, km.IsActive(2))
	assert.True(t, km.IsActive(3))

	require.NoError(t, km.LayerTo(0))
	assert.Equal(t, uint8(0), km.Highest())
	assert.Equal(t, uint32(1), km.State().Active)

	err := km.LayerTo(4)
	assert.Equal(t, errcode.InvalidLayer, errcode.Of(err))
	assert.Len(t, states, 4)

	// Default layer cannot be switched off; no change event either.
	require.NoError(t, km.LayerDeactivate(0))
	assert.True(t, km.IsActive(0))
	assert.Len(t, states, 4)
}

func TestPositionChanged_TransparentFallsThrough(t *testing.T) {
	var calls []call
	km := newTestKeymap(t, []string{"base"}, []string{"mid"}, []string{"top"})
	require.NoError(t, km.Bind(map[string]behaviors.Behavior{
		"base": probe{name: "base", res: behaviors.Opaque, calls: &calls},
		"mid":  probe{name: "mid", res: behaviors.Transparent, calls: &calls},
		"top":  probe{name: "top", res: behaviors.Transparent, calls: &calls},
	}))
	require.NoError(t, km.LayerActivate(2))

	require.NoError(t, km.PositionChanged(0, true, 0))
	// Layer 1 is inactive, so it is skipped.
	assert.Equal(t, []call{{"top", true, 2}, {"base", true, 0}}, calls)
}

func TestPositionChanged_ReleaseUsesPressLayer(t *testing.T) {
	var calls []call
	km := newTestKeymap(t, []string{"low"}, []string{"high"})
	require.NoError(t, km.Bind(map[string]behaviors.Behavior{
		"low":  probe{name: "low", res: behaviors.Opaque, calls: &calls},
		"high": probe{name: "high", res: behaviors.Opaque, calls: &calls},
	}))

	require.NoError(t, km.PositionChanged(0, true, 0))
	require.NoError(t, km.LayerActivate(1))
	require.NoError(t, km.PositionChanged(0, false, 0))

	assert.Equal(t, []call{{"low", true, 0}, {"low", false, 0}}, calls)
}

func TestPositionChanged_ErrorsKeepDispatching(t *testing.T) {
	var calls []call
	km := newTestKeymap(t, []string{"base"}, []string{"bad"})
	require.NoError(t, km.Bind(map[string]behaviors.Behavior{
		"base": probe{name: "base", res: behaviors.Opaque, calls: &calls},
		"bad":  probe{name: "bad", res: behaviors.Transparent, err: errcode.Busy, calls: &calls},
	}))
	require.NoError(t, km.LayerActivate(1))

	err := km.PositionChanged(0, false, 0)
	assert.Equal(t, errcode.Busy, errcode.Of(err))
	assert.Len(t, calls, 2)
}

func TestPositionChanged_OutOfRange(t *testing.T) {
	km := newTestKeymap(t, []string{"trans"})
	require.NoError(t, km.Bind(map[string]behaviors.Behavior{"trans": probe{calls: new([]call)}}))
	assert.Equal(t, errcode.InvalidParams, errcode.Of(km.PositionChanged(7, true, 0)))
}

func TestBind_UnknownBehavior(t *testing.T) {
	km := newTestKeymap(t, []string{"kp 4", "ghost"})
	err := km.Bind(map[string]behaviors.Behavior{"kp": probe{calls: new([]call)}})
	assert.Equal(t, errcode.UnknownBehavior, errcode.Of(err))
}

func TestNew_LayerCount(t *testing.T) {
	_, err := New(types.KeymapConfig{})
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
}
