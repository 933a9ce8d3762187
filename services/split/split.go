// Package split links the two halves of a split keyboard over a byte
// stream. The peripheral forwards its local key events; the central
// republishes them on its own bus.
package split

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"kbdcode-go/bus"
	"kbdcode-go/errcode"
	"kbdcode-go/topics"
	"kbdcode-go/types"
	"kbdcode-go/x/logx"
	"kbdcode-go/x/timex"
)

var log = logx.New("split")

const defaultHelloInterval = time.Second

// Peripheral sends a hello, then every local kbd/key event, to w.
type Peripheral struct {
	ID    string
	Hello time.Duration // hello repeat interval

	conn *bus.Connection
	enc  *cbor.Encoder
}

// NewPeripheral uses id as the peer ID, or a random UUID when id is empty.
func NewPeripheral(conn *bus.Connection, w io.Writer, id string) *Peripheral {
	if id == "" {
		id = uuid.NewString()
	}
	return &Peripheral{
		ID:    id,
		Hello: defaultHelloInterval,
		conn:  conn,
		enc:   newEncoder(w),
	}
}

func (p *Peripheral) hello() error {
	return p.enc.Encode(Frame{Kind: KindHello, Peer: p.ID})
}

// Run returns when ctx is done or the link fails to write.
func (p *Peripheral) Run(ctx context.Context) error {
	sub := p.conn.Subscribe(topics.Key())
	defer p.conn.Unsubscribe(sub)

	if err := p.hello(); err != nil {
		return errcode.Wrap(errcode.Closed, "split.hello", err)
	}
	log.Infof("peripheral %s up", p.ID)

	tick := time.NewTicker(p.Hello)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if err := p.hello(); err != nil {
				return errcode.Wrap(errcode.Closed, "split.hello", err)
			}
		case m, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			ev, ok := m.Payload.(types.KeyEvent)
			if !ok || ev.Source != "" {
				continue
			}
			f := Frame{Kind: KindKey, Position: ev.Position, Pressed: ev.Pressed, TS: ev.TS}
			if err := p.enc.Encode(f); err != nil {
				return errcode.Wrap(errcode.Closed, "split.key", err)
			}
		}
	}
}

// Central decodes frames from a peripheral and republishes them.
type Central struct {
	conn *bus.Connection
	r    io.Reader

	mu   sync.Mutex
	peer string // written only by Run
}

func NewCentral(conn *bus.Connection, r io.Reader) *Central {
	return &Central{conn: conn, r: r}
}

// Peer returns the ID from the last hello, or "".
func (c *Central) Peer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// Run decodes until the reader fails. A blocked read is not interrupted by
// ctx; close the reader to stop it. io.EOF marks the peer disconnected and
// returns nil.
func (c *Central) Run(ctx context.Context) error {
	dec := newDecoder(c.r)
	defer func() { c.setPeer(c.peer, false) }()
	for ctx.Err() == nil {
		var f Frame
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return errcode.Wrap(errcode.InvalidPayload, "split.decode", err)
		}
		c.handle(f)
	}
	return nil
}

func (c *Central) handle(f Frame) {
	switch f.Kind {
	case KindHello:
		if f.Peer != c.peer {
			log.Infof("peer %s connected", f.Peer)
			c.setPeer(f.Peer, true)
		}
	case KindKey:
		if c.peer == "" {
			log.Debugf("key %d before hello, dropped", f.Position)
			return
		}
		c.conn.Publish(&bus.Message{
			Topic:   topics.Key(),
			Payload: types.KeyEvent{Position: f.Position, Pressed: f.Pressed, TS: f.TS, Source: c.peer},
		})
	default:
		log.Warnf("unknown frame kind %d", f.Kind)
	}
}

func (c *Central) setPeer(id string, connected bool) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.peer = id
	if !connected {
		c.peer = ""
	}
	c.mu.Unlock()
	c.conn.Publish(&bus.Message{
		Topic:    topics.SplitPeer(),
		Payload:  types.PeerState{ID: id, Connected: connected, TS: timex.NowMs()},
		Retained: true,
	})
}
