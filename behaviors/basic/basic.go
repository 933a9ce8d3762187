// Package basic holds the stock behaviors every keymap can reference
// without configuration.
package basic

import (
	"kbdcode-go/behaviors"
	"kbdcode-go/errcode"
	"kbdcode-go/types"
)

func init() {
	behaviors.RegisterBuiltin("kp", kpBuilder{})
	behaviors.RegisterBuiltin("mo", layerBuilder{momentary: true})
	behaviors.RegisterBuiltin("to", layerBuilder{})
	behaviors.RegisterBuiltin("trans", constBuilder{res: behaviors.Transparent})
	behaviors.RegisterBuiltin("none", constBuilder{res: behaviors.Opaque})
}

// ---- kp: send Param1 as a HID usage ----

type keyPress struct{ hid behaviors.HIDSink }

func (k keyPress) OnPressed(b behaviors.Binding, _ behaviors.Event) (behaviors.Result, error) {
	k.hid.SendKey(b.Param1, true)
	return behaviors.Opaque, nil
}

func (k keyPress) OnReleased(b behaviors.Binding, _ behaviors.Event) (behaviors.Result, error) {
	k.hid.SendKey(b.Param1, false)
	return behaviors.Opaque, nil
}

type kpBuilder struct{}

func (kpBuilder) Build(_ types.BehaviorConfig, env behaviors.Env) (behaviors.Behavior, error) {
	if env.HID == nil {
		return nil, errcode.InvalidParams
	}
	return keyPress{hid: env.HID}, nil
}

// ---- mo / to: layer control with Param1 as the layer ----

type momentary struct{ layers behaviors.Layers }

func (m momentary) OnPressed(b behaviors.Binding, _ behaviors.Event) (behaviors.Result, error) {
	return behaviors.Opaque, m.layers.LayerActivate(uint8(b.Param1))
}

func (m momentary) OnReleased(b behaviors.Binding, _ behaviors.Event) (behaviors.Result, error) {
	return behaviors.Opaque, m.layers.LayerDeactivate(uint8(b.Param1))
}

type toLayer struct{ layers behaviors.Layers }

func (t toLayer) OnPressed(b behaviors.Binding, _ behaviors.Event) (behaviors.Result, error) {
	return behaviors.Opaque, t.layers.LayerTo(uint8(b.Param1))
}

func (toLayer) OnReleased(behaviors.Binding, behaviors.Event) (behaviors.Result, error) {
	return behaviors.Opaque, nil
}

type layerBuilder struct{ momentary bool }

func (lb layerBuilder) Build(_ types.BehaviorConfig, env behaviors.Env) (behaviors.Behavior, error) {
	if env.Layers == nil {
		return nil, errcode.InvalidParams
	}
	if lb.momentary {
		return momentary{layers: env.Layers}, nil
	}
	return toLayer{layers: env.Layers}, nil
}

// ---- trans / none ----

type constant behaviors.Result

func (c constant) OnPressed(behaviors.Binding, behaviors.Event) (behaviors.Result, error) {
	return behaviors.Result(c), nil
}

func (c constant) OnReleased(behaviors.Binding, behaviors.Event) (behaviors.Result, error) {
	return behaviors.Result(c), nil
}

type constBuilder struct{ res behaviors.Result }

func (cb constBuilder) Build(types.BehaviorConfig, behaviors.Env) (behaviors.Behavior, error) {
	return constant(cb.res), nil
}
