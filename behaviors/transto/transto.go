// Package transto implements the trans-to behavior: releasing the key arms a
// one-shot timer that returns the keymap to a configured layer on expiry.
//
// Two policies are supported per instance. With CancelOnPress a press while
// armed cancels the pending return; without it presses are ignored and every
// release simply restarts the timer.
//
// Both handlers always answer Transparent so the key's lower-layer binding
// still runs.
package transto

import (
	"time"

	"kbdcode-go/behaviors"
	"kbdcode-go/errcode"
	"kbdcode-go/services/workq"
	"kbdcode-go/types"
	"kbdcode-go/x/logx"
)

const Compatible = "trans_to"

var log = logx.New("trans_to")

func init() { behaviors.RegisterBuilder(Compatible, builder{}) }

type Config struct {
	TimeoutMs     uint32 // 0 disables the instance
	ReturnLayer   uint8
	CancelOnPress bool
}

// LayerSwitcher is the single keymap call trans-to makes.
type LayerSwitcher interface {
	LayerTo(layer uint8) error
}

// Instance holds one configured trans-to. All methods, and the timer
// handler, must run on the same serialized context.
type Instance struct {
	name   string
	cfg    Config
	layers LayerSwitcher
	work   behaviors.Timer

	timerActive bool
}

// New binds the instance's timer without scheduling it.
func New(name string, cfg Config, layers LayerSwitcher, newTimer behaviors.TimerFactory) *Instance {
	i := &Instance{name: name, cfg: cfg, layers: layers}
	i.work = newTimer(i.fire)
	log.Debugf("init %s timeout=%dms return_layer=%d cancel_on_press=%t",
		name, cfg.TimeoutMs, cfg.ReturnLayer, cfg.CancelOnPress)
	return i
}

// Armed reports whether a return is outstanding.
func (i *Instance) Armed() bool { return i != nil && i.timerActive }

func (i *Instance) Config() Config { return i.cfg }

func (i *Instance) fire() {
	log.Debugf("%s: timer expired, switching to layer %d", i.name, i.cfg.ReturnLayer)
	i.timerActive = false
	if err := i.layers.LayerTo(i.cfg.ReturnLayer); err != nil {
		log.Errorf("%s: failed to switch to layer %d: %v", i.name, i.cfg.ReturnLayer, err)
	}
}

func (i *Instance) OnPressed(_ behaviors.Binding, _ behaviors.Event) (behaviors.Result, error) {
	if i == nil || i.work == nil {
		log.Errorf("pressed on uninitialized instance")
		return behaviors.Transparent, nil
	}
	if !i.cfg.CancelOnPress || !i.timerActive {
		return behaviors.Transparent, nil
	}
	switch i.work.Cancel() {
	case workq.Canceled:
		log.Debugf("%s: pending return canceled", i.name)
	case workq.AlreadyRunning:
		log.Debugf("%s: return already running, could not cancel", i.name)
	}
	i.timerActive = false
	return behaviors.Transparent, nil
}

// OnReleased arms (or re-arms) the return. A scheduling error is returned
// alongside the Transparent result.
func (i *Instance) OnReleased(_ behaviors.Binding, _ behaviors.Event) (behaviors.Result, error) {
	if i == nil || i.work == nil {
		log.Errorf("released on uninitialized instance")
		return behaviors.Transparent, nil
	}
	if i.cfg.TimeoutMs == 0 {
		log.Debugf("%s: timeout is 0, not scheduling", i.name)
		return behaviors.Transparent, nil
	}

	// Never leave two returns outstanding.
	if i.timerActive || !i.cfg.CancelOnPress {
		i.work.Cancel()
	}

	i.timerActive = true
	if err := i.work.Schedule(time.Duration(i.cfg.TimeoutMs) * time.Millisecond); err != nil {
		log.Errorf("%s: failed to schedule return: %v", i.name, err)
		i.timerActive = false
		return behaviors.Transparent, errcode.Wrap(errcode.Of(err), "trans_to.schedule", err)
	}
	log.Debugf("%s: return to layer %d in %dms", i.name, i.cfg.ReturnLayer, i.cfg.TimeoutMs)
	return behaviors.Transparent, nil
}

type builder struct{}

func (builder) Build(c types.BehaviorConfig, env behaviors.Env) (behaviors.Behavior, error) {
	if env.Layers == nil || env.NewTimer == nil {
		return nil, errcode.InvalidParams
	}
	return New(c.Name, Config{
		TimeoutMs:     c.TimeoutMs,
		ReturnLayer:   c.ReturnLayer,
		CancelOnPress: c.CancelsOnPress(),
	}, env.Layers, env.NewTimer), nil
}
