// Package behaviors defines what a key binding does when its position is
// pressed or released, and a registry of builders keyed by compatible string.
package behaviors

import (
	"sort"
	"sync"
	"time"

	"kbdcode-go/errcode"
	"kbdcode-go/services/workq"
	"kbdcode-go/types"
)

// Result tells the keymap whether to keep walking lower layers.
type Result uint8

const (
	// Opaque consumes the event.
	Opaque Result = iota
	// Transparent hands the event to the next lower active layer.
	Transparent
)

func (r Result) String() string {
	if r == Transparent {
		return "transparent"
	}
	return "opaque"
}

// Binding is one keymap slot: a behavior name and up to two parameters.
type Binding struct {
	Behavior string
	Param1   uint32
	Param2   uint32
}

// Event describes the position change being dispatched.
type Event struct {
	Position uint32
	Layer    uint8
	TS       int64
}

type Behavior interface {
	OnPressed(b Binding, ev Event) (Result, error)
	OnReleased(b Binding, ev Event) (Result, error)
}

// Layers is the keymap surface behaviors may drive.
type Layers interface {
	LayerTo(layer uint8) error
	LayerActivate(layer uint8) error
	LayerDeactivate(layer uint8) error
}

// HIDSink receives key usages from kp.
type HIDSink interface {
	SendKey(usage uint32, pressed bool)
}

// Timer is a one-shot delayed work item.
type Timer interface {
	Schedule(d time.Duration) error
	Cancel() workq.CancelResult
}

// TimerFactory binds handler to a new Timer.
type TimerFactory func(handler func()) Timer

// QueueTimers produces timers whose handlers run on q.
func QueueTimers(q *workq.Queue) TimerFactory {
	return func(handler func()) Timer { return q.NewDelayedWork(handler) }
}

// Env carries the host services builders may use.
type Env struct {
	Layers   Layers
	HID      HIDSink
	NewTimer TimerFactory
}

// Builder constructs one behavior instance from configuration.
type Builder interface {
	Build(cfg types.BehaviorConfig, env Env) (Behavior, error)
}

type entry struct {
	b       Builder
	builtin bool
}

var (
	regMu    sync.RWMutex
	builders = map[string]entry{}
)

// RegisterBuilder makes compatible available to configuration.
func RegisterBuilder(compatible string, b Builder) { register(compatible, b, false) }

// RegisterBuiltin also instantiates the behavior under its own name without
// any configuration entry (kp, mo, trans, ...).
func RegisterBuiltin(compatible string, b Builder) { register(compatible, b, true) }

func register(compatible string, b Builder, builtin bool) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := builders[compatible]; exists {
		panic("duplicate behavior builder: " + compatible)
	}
	builders[compatible] = entry{b: b, builtin: builtin}
}

func lookupBuilder(compatible string) (entry, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	e, ok := builders[compatible]
	return e, ok
}

// Compatibles lists registered compatible strings, sorted.
func Compatibles() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Builtins lists the behaviors available by name without configuration.
func Builtins() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	var out []string
	for name, e := range builders {
		if e.builtin {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// BuildAll instantiates every built-in plus each configured instance.
// Configured names shadow built-ins of the same name.
func BuildAll(cfgs []types.BehaviorConfig, env Env) (map[string]Behavior, error) {
	out := map[string]Behavior{}

	for _, name := range Builtins() {
		e, _ := lookupBuilder(name)
		b, err := e.b.Build(types.BehaviorConfig{Name: name, Compatible: name}, env)
		if err != nil {
			return nil, errcode.Wrap(errcode.Of(err), "build "+name, err)
		}
		out[name] = b
	}

	for _, c := range cfgs {
		if c.Name == "" {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "build", Msg: "behavior without name"}
		}
		e, ok := lookupBuilder(c.Compatible)
		if !ok {
			return nil, &errcode.E{C: errcode.UnknownBehavior, Op: "build " + c.Name, Msg: c.Compatible}
		}
		b, err := e.b.Build(c, env)
		if err != nil {
			return nil, errcode.Wrap(errcode.Of(err), "build "+c.Name, err)
		}
		out[c.Name] = b
	}
	return out, nil
}
