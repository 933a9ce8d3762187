package keymap

import (
	"strconv"
	"strings"

	"kbdcode-go/behaviors"
	"kbdcode-go/errcode"
	"kbdcode-go/types"
	"kbdcode-go/x/logx"
	"kbdcode-go/x/timex"
)

const (
	MaxLayers    = 32
	defaultLayer = 0
)

var log = logx.New("keymap")

// ParseBinding turns "kp 0x04" or "mo 1" into a Binding. An empty string
// is "trans".
func ParseBinding(s string) (behaviors.Binding, error) {
	f := strings.Fields(s)
	if len(f) == 0 {
		return behaviors.Binding{Behavior: "trans"}, nil
	}
	if len(f) > 3 {
		return behaviors.Binding{}, &errcode.E{C: errcode.InvalidParams, Op: "parse binding", Msg: s}
	}
	b := behaviors.Binding{Behavior: strings.TrimPrefix(f[0], "&")}
	for i, p := range f[1:] {
		v, err := strconv.ParseUint(p, 0, 32)
		if err != nil {
			return behaviors.Binding{}, errcode.Wrap(errcode.InvalidParams, "parse binding "+s, err)
		}
		if i == 0 {
			b.Param1 = uint32(v)
		} else {
			b.Param2 = uint32(v)
		}
	}
	return b, nil
}

// Keymap owns layer state and resolves position changes to behaviors.
// It is not safe for concurrent use; the Service runs it on a work queue.
type Keymap struct {
	names  []string
	layers [][]behaviors.Binding
	behs   map[string]behaviors.Behavior

	active  uint32
	pressed map[uint32]uint8 // position -> highest layer at press time

	onChange func(types.LayerState)
}

// New parses every layer's bindings. Behaviors are attached with Bind.
func New(cfg types.KeymapConfig) (*Keymap, error) {
	if len(cfg.Layers) == 0 || len(cfg.Layers) > MaxLayers {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "keymap", Msg: "layer count out of range"}
	}
	k := &Keymap{
		active:  1 << defaultLayer,
		pressed: map[uint32]uint8{},
	}
	for _, l := range cfg.Layers {
		row := make([]behaviors.Binding, len(l.Bindings))
		for i, s := range l.Bindings {
			b, err := ParseBinding(s)
			if err != nil {
				return nil, err
			}
			row[i] = b
		}
		k.names = append(k.names, l.Name)
		k.layers = append(k.layers, row)
	}
	return k, nil
}

// Bind attaches behavior instances and checks every binding resolves.
func (k *Keymap) Bind(behs map[string]behaviors.Behavior) error {
	for li, row := range k.layers {
		for pos, b := range row {
			if _, ok := behs[b.Behavior]; !ok {
				return &errcode.E{
					C:   errcode.UnknownBehavior,
					Op:  "bind layer " + strconv.Itoa(li) + " position " + strconv.Itoa(pos),
					Msg: b.Behavior,
				}
			}
		}
	}
	k.behs = behs
	return nil
}

// OnChange registers a callback for every layer-state change.
func (k *Keymap) OnChange(fn func(types.LayerState)) { k.onChange = fn }

func (k *Keymap) LayerCount() int { return len(k.layers) }

func (k *Keymap) LayerName(n uint8) string {
	if int(n) >= len(k.names) {
		return ""
	}
	return k.names[n]
}

func (k *Keymap) IsActive(n uint8) bool {
	return n == defaultLayer || (int(n) < len(k.layers) && k.active&(1<<n) != 0)
}

// Highest returns the highest active layer.
func (k *Keymap) Highest() uint8 {
	for n := len(k.layers) - 1; n > 0; n-- {
		if k.active&(1<<uint(n)) != 0 {
			return uint8(n)
		}
	}
	return defaultLayer
}

func (k *Keymap) State() types.LayerState {
	return types.LayerState{Active: k.active, Highest: k.Highest(), TS: timex.NowMs()}
}

func (k *Keymap) checkLayer(n uint8) error {
	if int(n) >= len(k.layers) {
		return &errcode.E{C: errcode.InvalidLayer, Op: "layer", Msg: strconv.Itoa(int(n))}
	}
	return nil
}

func (k *Keymap) set(mask uint32) {
	if mask == k.active {
		return
	}
	k.active = mask
	if k.onChange != nil {
		k.onChange(k.State())
	}
}

func (k *Keymap) LayerActivate(n uint8) error {
	if err := k.checkLayer(n); err != nil {
		return err
	}
	k.set(k.active | 1<<n)
	return nil
}

// LayerDeactivate clears n. The default layer stays on.
func (k *Keymap) LayerDeactivate(n uint8) error {
	if err := k.checkLayer(n); err != nil {
		return err
	}
	if n == defaultLayer {
		return nil
	}
	k.set(k.active &^ (1 << n))
	return nil
}

// LayerTo leaves the default layer and n as the only active layers.
func (k *Keymap) LayerTo(n uint8) error {
	if err := k.checkLayer(n); err != nil {
		return err
	}
	log.Debugf("layer_to %d", n)
	k.set(1<<defaultLayer | 1<<n)
	return nil
}

// PositionChanged dispatches a press or release. Transparent results walk
// down to the next active layer. A release starts from the layer that was
// highest when the position was pressed, so mo and friends see their own
// release. The first behavior error is returned after dispatch finishes.
func (k *Keymap) PositionChanged(pos uint32, pressed bool, ts int64) error {
	start := k.Highest()
	if pressed {
		k.pressed[pos] = start
	} else if l, ok := k.pressed[pos]; ok {
		start = l
		delete(k.pressed, pos)
	}

	var firstErr error
	handled := false
	for l := int(start); l >= 0; l-- {
		layer := uint8(l)
		if !k.IsActive(layer) || int(pos) >= len(k.layers[l]) {
			continue
		}
		b := k.layers[l][pos]
		beh, ok := k.behs[b.Behavior]
		if !ok {
			continue
		}
		handled = true
		ev := behaviors.Event{Position: pos, Layer: layer, TS: ts}

		var res behaviors.Result
		var err error
		if pressed {
			res, err = beh.OnPressed(b, ev)
		} else {
			res, err = beh.OnReleased(b, ev)
		}
		if err != nil {
			log.Warnf("%s at position %d layer %d: %v", b.Behavior, pos, layer, err)
			if firstErr == nil {
				firstErr = err
			}
		}
		if res != behaviors.Transparent {
			break
		}
	}
	if !handled {
		return &errcode.E{C: errcode.InvalidParams, Op: "position", Msg: strconv.FormatUint(uint64(pos), 10)}
	}
	return firstErr
}
