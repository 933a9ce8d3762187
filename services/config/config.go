package config

import (
	"bytes"
	"context"
	"embed"
	"strconv"

	"gopkg.in/yaml.v3"

	"kbdcode-go/behaviors"
	_ "kbdcode-go/behaviors/all"
	"kbdcode-go/bus"
	"kbdcode-go/errcode"
	"kbdcode-go/services/keymap"
	"kbdcode-go/topics"
	"kbdcode-go/types"
	"kbdcode-go/x/logx"
	"kbdcode-go/x/mathx"
)

const (
	serviceName  = "config"
	MaxTimeoutMs = 60000
)

type ctxKey string

// CtxDeviceKey is the context key holding the device ID.
const CtxDeviceKey ctxKey = "device"

var log = logx.New(serviceName)

//go:embed configs/*.yaml
var embedded embed.FS

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, err := embedded.ReadFile("configs/" + device + ".yaml")
	return b, err == nil
}

// Load resolves, decodes and validates the config for device.
func Load(device string) (*types.Config, error) {
	if device == "" {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "config.load", Msg: "missing device ID"}
	}
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return nil, &errcode.E{C: errcode.UnknownDevice, Op: "config.load", Msg: device}
	}
	return Parse(raw)
}

// Parse decodes one YAML document. Unknown keys are rejected.
func Parse(raw []byte) (*types.Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var cfg types.Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, errcode.Wrap(errcode.InvalidPayload, "config.parse", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func invalid(what string) error {
	return &errcode.E{C: errcode.InvalidParams, Op: "config.validate", Msg: what}
}

// Validate checks cross references and clamps timeouts in place.
func Validate(cfg *types.Config) error {
	if cfg.Heartbeat.Interval < 0 {
		return invalid("heartbeat.interval < 0")
	}
	switch cfg.Split.Role {
	case types.SplitNone, types.SplitCentral, types.SplitPeripheral:
	default:
		return invalid("split.role " + string(cfg.Split.Role))
	}

	nLayers := len(cfg.Keymap.Layers)
	if nLayers == 0 {
		if cfg.Split.Role == types.SplitPeripheral {
			return nil
		}
		return invalid("keymap has no layers")
	}
	if nLayers > keymap.MaxLayers {
		return invalid("keymap has more than " + strconv.Itoa(keymap.MaxLayers) + " layers")
	}

	known := map[string]bool{}
	for _, name := range behaviors.Builtins() {
		known[name] = true
	}
	compat := map[string]bool{}
	for _, c := range behaviors.Compatibles() {
		compat[c] = true
	}
	seen := map[string]bool{}
	for i := range cfg.Behaviors {
		b := &cfg.Behaviors[i]
		switch {
		case b.Name == "":
			return invalid("behavior " + strconv.Itoa(i) + " has no name")
		case seen[b.Name]:
			return invalid("duplicate behavior " + b.Name)
		case !compat[b.Compatible]:
			return &errcode.E{C: errcode.UnknownBehavior, Op: "config.validate", Msg: b.Name + ": " + b.Compatible}
		}
		seen[b.Name] = true
		known[b.Name] = true

		if b.Compatible == "trans_to" {
			if int(b.ReturnLayer) >= nLayers {
				return invalid(b.Name + ": return_layer " + strconv.Itoa(int(b.ReturnLayer)) + " out of range")
			}
			if t := mathx.Clamp[uint32](b.TimeoutMs, 0, MaxTimeoutMs); t != b.TimeoutMs {
				log.Warnf("%s: timeout_ms %d clamped to %d", b.Name, b.TimeoutMs, t)
				b.TimeoutMs = t
			}
		}
	}

	width := len(cfg.Keymap.Layers[0].Bindings)
	for li, l := range cfg.Keymap.Layers {
		if len(l.Bindings) != width {
			return invalid("layer " + strconv.Itoa(li) + " has " + strconv.Itoa(len(l.Bindings)) + " bindings, want " + strconv.Itoa(width))
		}
		for pos, s := range l.Bindings {
			bd, err := keymap.ParseBinding(s)
			if err != nil {
				return err
			}
			if !known[bd.Behavior] {
				return &errcode.E{C: errcode.UnknownBehavior, Op: "config.validate", Msg: "layer " + strconv.Itoa(li) + " position " + strconv.Itoa(pos) + ": " + bd.Behavior}
			}
			if (bd.Behavior == "mo" || bd.Behavior == "to") && int(bd.Param1) >= nLayers {
				return invalid("layer " + strconv.Itoa(li) + " position " + strconv.Itoa(pos) + ": layer " + strconv.Itoa(int(bd.Param1)) + " out of range")
			}
		}
	}
	return nil
}

// Publish emits each section as a retained config/<section> message.
func Publish(conn *bus.Connection, cfg *types.Config) {
	sections := []struct {
		name string
		v    any
	}{
		{"heartbeat", cfg.Heartbeat},
		{"matrix", cfg.Matrix},
		{"split", cfg.Split},
		{"keymap", cfg.Keymap},
		{"behaviors", cfg.Behaviors},
	}
	for _, s := range sections {
		conn.Publish(&bus.Message{Topic: topics.Config(s.name), Payload: s.v, Retained: true})
	}
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig loads the config for the device in ctx and publishes it.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) (*types.Config, error) {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	cfg, err := Load(device)
	if err != nil {
		return nil, err
	}
	Publish(conn, cfg)
	log.Infof("published config for %s", device)
	return cfg, nil
}

// Start loads and publishes synchronously, so the caller can build the rest
// of the stack from the returned config.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) (*types.Config, error) {
	cfg, err := s.publishConfig(ctx, conn)
	if err != nil {
		log.Errorf("config: %v", err)
	}
	return cfg, err
}
