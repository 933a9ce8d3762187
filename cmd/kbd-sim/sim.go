package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"kbdcode-go/bus"
	"kbdcode-go/errcode"
	"kbdcode-go/services/firmware"
	"kbdcode-go/topics"
	"kbdcode-go/types"
)

var errQuit = errors.New("quit")

const defaultTapMs = 20

// sim drives a firmware stack with synthetic key events.
type sim struct {
	st   *firmware.Stack
	conn *bus.Connection
	out  io.Writer
}

func newSim(st *firmware.Stack, out io.Writer) *sim {
	return &sim{st: st, conn: st.Bus.NewConnection("sim"), out: out}
}

// watch prints HID output and layer changes until ctx is done.
func (s *sim) watch(ctx context.Context) {
	hid := s.conn.Subscribe(topics.HIDKey())
	layers := s.conn.Subscribe(topics.LayerState())
	go func() {
		defer s.conn.Unsubscribe(hid)
		defer s.conn.Unsubscribe(layers)
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-hid.Channel():
				if ev, ok := m.Payload.(types.HIDEvent); ok {
					fmt.Fprintf(s.out, "hid %#04x %s\n", ev.Usage, upDown(ev.Pressed))
				}
			case m := <-layers.Channel():
				if st, ok := m.Payload.(types.LayerState); ok {
					fmt.Fprintf(s.out, "layer %d (%s)\n", st.Highest, s.st.Keymap.LayerName(st.Highest))
				}
			}
		}
	}()
}

func upDown(pressed bool) string {
	if pressed {
		return "down"
	}
	return "up"
}

func (s *sim) key(pos uint32, pressed bool) {
	s.conn.Publish(&bus.Message{
		Topic:   topics.Key(),
		Payload: types.KeyEvent{Position: pos, Pressed: pressed, TS: time.Now().UnixMilli()},
	})
}

// settle gives the keymap service time to queue the event, then drains
// the queue.
func (s *sim) settle(ctx context.Context) error {
	if err := sleep(ctx, 5*time.Millisecond); err != nil {
		return err
	}
	return s.st.Sync(ctx)
}

func parseUint(args []string, i int, what string) (uint64, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("missing %s", what)
	}
	v, err := strconv.ParseUint(args[i], 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", what, args[i])
	}
	return v, nil
}

// exec runs one command line. It returns errQuit for quit.
func (s *sim) exec(ctx context.Context, line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "quit", "exit", "q":
		return errQuit
	case "press", "release":
		pos, err := parseUint(args, 0, "position")
		if err != nil {
			return err
		}
		s.key(uint32(pos), cmd == "press")
		return s.settle(ctx)
	case "tap":
		pos, err := parseUint(args, 0, "position")
		if err != nil {
			return err
		}
		hold := uint64(defaultTapMs)
		if len(args) > 1 {
			if hold, err = parseUint(args, 1, "hold"); err != nil {
				return err
			}
		}
		s.key(uint32(pos), true)
		if err := sleep(ctx, time.Duration(hold)*time.Millisecond); err != nil {
			return err
		}
		s.key(uint32(pos), false)
		return s.settle(ctx)
	case "wait":
		ms, err := parseUint(args, 0, "milliseconds")
		if err != nil {
			return err
		}
		if err := sleep(ctx, time.Duration(ms)*time.Millisecond); err != nil {
			return err
		}
		return s.st.Sync(ctx)
	case "layer":
		if len(args) == 0 {
			return s.status(ctx)
		}
		n, err := parseUint(args, 0, "layer")
		if err != nil {
			return err
		}
		rctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		reply, err := s.conn.RequestWait(rctx, &bus.Message{Topic: topics.LayerTo(), Payload: types.LayerRequest{Layer: uint8(n)}})
		if err != nil {
			return err
		}
		if r, ok := reply.Payload.(types.LayerReply); ok && !r.OK {
			return errcode.Code(r.Error)
		}
	case "status":
		return s.status(ctx)
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func (s *sim) status(ctx context.Context) error {
	st, err := s.st.LayerState(ctx)
	if err != nil {
		return err
	}
	km := s.st.Keymap
	fmt.Fprintf(s.out, "highest %d (%s), active:", st.Highest, km.LayerName(st.Highest))
	for l := 0; l < km.LayerCount(); l++ {
		if st.IsActive(uint8(l)) {
			fmt.Fprintf(s.out, " %d", l)
		}
	}
	fmt.Fprintln(s.out)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *sim) printHelp() {
	fmt.Fprint(s.out, `Commands:
  press <pos>          key down
  release <pos>        key up
  tap <pos> [hold_ms]  down, hold (default 20ms), up
  wait <ms>            sleep, letting timers run
  layer [n]            switch to layer n, or show layers
  status               show layer state
  help                 this text
  quit                 exit
`)
}
