package keymap

import (
	"context"

	"kbdcode-go/bus"
	"kbdcode-go/errcode"
	"kbdcode-go/services/workq"
	"kbdcode-go/topics"
	"kbdcode-go/types"
	"kbdcode-go/x/timex"
)

// Service connects a Keymap to the bus. Key events and layer requests are
// moved onto the work queue so that dispatch, behavior timers and layer
// changes all share one execution context.
type Service struct {
	km   *Keymap
	q    *workq.Queue
	conn *bus.Connection
}

func NewService(conn *bus.Connection, q *workq.Queue, km *Keymap) *Service {
	s := &Service{km: km, q: q, conn: conn}
	km.OnChange(s.publishState)
	return s
}

// BusHID publishes kp output on hid/key.
type BusHID struct{ Conn *bus.Connection }

func (h BusHID) SendKey(usage uint32, pressed bool) {
	h.Conn.Publish(&bus.Message{
		Topic:   topics.HIDKey(),
		Payload: types.HIDEvent{Usage: usage, Pressed: pressed, TS: timex.NowMs()},
	})
}

func (s *Service) publishState(st types.LayerState) {
	log.Infof("layers active=%#x highest=%d (%s)", st.Active, st.Highest, s.km.LayerName(st.Highest))
	s.conn.Publish(&bus.Message{Topic: topics.LayerState(), Payload: st, Retained: true})
}

// Start launches Run in a goroutine.
func (s *Service) Start(ctx context.Context) {
	go s.Run(ctx)
}

func (s *Service) Run(ctx context.Context) {
	keySub := s.conn.Subscribe(topics.Key())
	reqSub := s.conn.Subscribe(topics.LayerTo())
	defer s.conn.Unsubscribe(keySub)
	defer s.conn.Unsubscribe(reqSub)

	if err := s.q.SubmitWait(ctx, func() { s.publishState(s.km.State()) }); err != nil {
		log.Errorf("initial layer state not published: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Infof("keymap service stopping")
			return
		case m := <-keySub.Channel():
			ev, ok := m.Payload.(types.KeyEvent)
			if !ok {
				log.Warnf("unexpected key payload %T", m.Payload)
				continue
			}
			// Key events are never dropped; wait for room.
			if err := s.q.SubmitWait(ctx, func() { s.dispatch(ev) }); err != nil {
				log.Errorf("key event %d dropped: %v", ev.Position, err)
			}
		case m := <-reqSub.Channel():
			req, ok := m.Payload.(types.LayerRequest)
			if !ok {
				s.conn.Reply(m, types.LayerReply{Error: string(errcode.InvalidPayload)}, false)
				continue
			}
			if err := s.q.SubmitWait(ctx, func() { s.layerTo(m, req) }); err != nil {
				s.conn.Reply(m, types.LayerReply{Error: string(errcode.Of(err))}, false)
			}
		}
	}
}

// dispatch runs on queue context.
func (s *Service) dispatch(ev types.KeyEvent) {
	if err := s.km.PositionChanged(ev.Position, ev.Pressed, ev.TS); err != nil {
		log.Debugf("position %d pressed=%t: %v", ev.Position, ev.Pressed, err)
	}
}

// layerTo runs on queue context.
func (s *Service) layerTo(m *bus.Message, req types.LayerRequest) {
	err := s.km.LayerTo(req.Layer)
	reply := types.LayerReply{OK: err == nil, State: s.km.State()}
	if err != nil {
		reply.Error = string(errcode.Of(err))
	}
	s.conn.Reply(m, reply, false)
}
