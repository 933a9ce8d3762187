package types

// Config is one device's firmware configuration as embedded in the image.
type Config struct {
	LogLevel  string           `yaml:"log_level"`
	Heartbeat HeartbeatConfig  `yaml:"heartbeat"`
	Matrix    MatrixConfig     `yaml:"matrix"`
	Split     SplitConfig      `yaml:"split"`
	Keymap    KeymapConfig     `yaml:"keymap"`
	Behaviors []BehaviorConfig `yaml:"behaviors"`
}

type HeartbeatConfig struct {
	Interval int `yaml:"interval"` // seconds, 0 = default
}

type MatrixConfig struct {
	Rows           int    `yaml:"rows"`
	Cols           int    `yaml:"cols"`
	Offset         uint32 `yaml:"offset"`
	DebounceMs     uint16 `yaml:"debounce_ms"`
	ScanIntervalMs uint16 `yaml:"scan_interval_ms"`
	SettleUs       uint16 `yaml:"settle_us"`
}

type SplitRole string

const (
	SplitNone       SplitRole = ""
	SplitCentral    SplitRole = "central"
	SplitPeripheral SplitRole = "peripheral"
)

type SplitConfig struct {
	Role SplitRole `yaml:"role"`
	Baud uint32    `yaml:"baud"`
}

type KeymapConfig struct {
	Layers []LayerConfig `yaml:"layers"`
}

// LayerConfig holds one binding string per key position, e.g. "kp 0x04",
// "mo 1", "trans", or the name of a configured behavior instance.
type LayerConfig struct {
	Name     string   `yaml:"name"`
	Bindings []string `yaml:"bindings"`
}

// BehaviorConfig declares a named behavior instance.
type BehaviorConfig struct {
	Name       string `yaml:"name"`
	Compatible string `yaml:"compatible"`

	// trans_to
	TimeoutMs     uint32 `yaml:"timeout_ms"`
	ReturnLayer   uint8  `yaml:"return_layer"`
	CancelOnPress *bool  `yaml:"cancel_on_press,omitempty"`
}

// CancelsOnPress defaults to true when the key is absent.
func (b BehaviorConfig) CancelsOnPress() bool {
	return b.CancelOnPress == nil || *b.CancelOnPress
}
