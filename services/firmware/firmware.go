// Package firmware assembles the services every build runs: config,
// keymap with its behaviors, and heartbeat. Hardware front ends (matrix,
// split link) are attached by the command that owns the pins.
package firmware

import (
	"context"
	"time"

	"kbdcode-go/behaviors"
	_ "kbdcode-go/behaviors/all"
	"kbdcode-go/bus"
	"kbdcode-go/errcode"
	"kbdcode-go/services/config"
	"kbdcode-go/services/heartbeat"
	"kbdcode-go/services/keymap"
	"kbdcode-go/services/workq"
	"kbdcode-go/types"
	"kbdcode-go/x/logx"
)

var log = logx.New("main")

type Stack struct {
	Bus    *bus.Bus
	Queue  *workq.Queue
	Config *types.Config
	Keymap *keymap.Keymap // nil on a split peripheral
}

type options struct {
	busQueue int
	workq    []workq.Option
}

type Option func(*options)

// WithBusQueue sets the per-subscription queue length.
func WithBusQueue(n int) Option { return func(o *options) { o.busQueue = n } }

// WithQueueOptions passes options to the work queue, e.g. a fake clock.
func WithQueueOptions(opts ...workq.Option) Option {
	return func(o *options) { o.workq = append(o.workq, opts...) }
}

// Start loads the config for device and starts the services it enables.
func Start(ctx context.Context, device string, opts ...Option) (*Stack, error) {
	o := options{busQueue: 16}
	for _, fn := range opts {
		fn(&o)
	}

	b := bus.NewBus(o.busQueue)
	cfg, err := config.NewConfigService().Start(context.WithValue(ctx, config.CtxDeviceKey, device), b.NewConnection("config"))
	if err != nil {
		return nil, err
	}
	logx.SetLevel(logx.ParseLevel(cfg.LogLevel))

	s := &Stack{Bus: b, Queue: workq.New(0, o.workq...), Config: cfg}
	go s.Queue.Run(ctx)

	if cfg.Split.Role != types.SplitPeripheral {
		if err := s.startKeymap(ctx); err != nil {
			return nil, err
		}
	}
	heartbeat.New().Start(ctx, b.NewConnection("heartbeat"))
	log.Infof("%s up, split role %q", device, cfg.Split.Role)
	return s, nil
}

func (s *Stack) startKeymap(ctx context.Context) error {
	km, err := keymap.New(s.Config.Keymap)
	if err != nil {
		return err
	}
	conn := s.Bus.NewConnection("keymap")
	behs, err := behaviors.BuildAll(s.Config.Behaviors, behaviors.Env{
		Layers:   km,
		HID:      keymap.BusHID{Conn: conn},
		NewTimer: behaviors.QueueTimers(s.Queue),
	})
	if err != nil {
		return err
	}
	if err := km.Bind(behs); err != nil {
		return err
	}
	keymap.NewService(conn, s.Queue, km).Start(ctx)
	s.Keymap = km
	return nil
}

// LayerState reads the keymap from queue context.
func (s *Stack) LayerState(ctx context.Context) (types.LayerState, error) {
	if s.Keymap == nil {
		return types.LayerState{}, errcode.Unsupported
	}
	var st types.LayerState
	err := s.Queue.Do(ctx, func() { st = s.Keymap.State() })
	return st, err
}

// Sync waits until everything submitted so far has run.
func (s *Stack) Sync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return s.Queue.Do(ctx, func() {})
}
