package types

// ---- Key pipeline ----

// KeyEvent is a debounced position change, published on "kbd/key".
type KeyEvent struct {
	Position uint32 `yaml:"position"`
	Pressed  bool   `yaml:"pressed"`
	TS       int64  `yaml:"ts_ms"`
	Source   string `yaml:"source,omitempty"` // "" = local half, otherwise peer ID
}

// HIDEvent is what the kp behavior emits on "hid/key".
type HIDEvent struct {
	Usage   uint32
	Pressed bool
	TS      int64
}

// ---- Layers ----

// LayerState is published retained on "keymap/layer/state".
type LayerState struct {
	Active  uint32 // bit n set = layer n active
	Highest uint8
	TS      int64
}

// IsActive reports whether layer n is set in the mask.
func (s LayerState) IsActive(n uint8) bool { return n < 32 && s.Active&(1<<n) != 0 }

// LayerRequest asks the keymap to make Layer the only non-default layer.
type LayerRequest struct {
	Layer uint8
}

type LayerReply struct {
	OK    bool
	Error string
	State LayerState
}

// ---- Split ----

// PeerState is published retained on "split/peer".
type PeerState struct {
	ID        string
	Connected bool
	TS        int64
}
