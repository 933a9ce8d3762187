package heartbeat

import (
	"context"
	"time"

	"kbdcode-go/bus"
	"kbdcode-go/topics"
	"kbdcode-go/types"
	"kbdcode-go/x/logx"
)

const defaultInterval = 10

var log = logx.New("heartbeat")

type Service struct {
	unit    time.Duration // one interval step, a second outside tests
	started time.Time

	layer types.LayerState
	peer  types.PeerState
}

func New() *Service { return &Service{unit: time.Second} }

func (s *Service) beat(now time.Time) {
	up := now.Sub(s.started).Truncate(time.Second)
	if s.peer.ID == "" {
		log.Infof("up %s layer %d active %#x", up, s.layer.Highest, s.layer.Active)
		return
	}
	log.Infof("up %s layer %d active %#x peer %s connected=%t", up, s.layer.Highest, s.layer.Active, s.peer.ID, s.peer.Connected)
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topics.Config("heartbeat"))
	layerSub := conn.Subscribe(topics.LayerState())
	peerSub := conn.Subscribe(topics.SplitPeer())
	defer conn.Unsubscribe(cfgSub)
	defer conn.Unsubscribe(layerSub)
	defer conn.Unsubscribe(peerSub)

	s.started = time.Now()
	tick := time.NewTicker(defaultInterval * s.unit)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("heartbeat service stopping")
			return
		case t := <-tick.C:
			s.beat(t)
		case m := <-layerSub.Channel():
			if st, ok := m.Payload.(types.LayerState); ok {
				s.layer = st
			}
		case m := <-peerSub.Channel():
			if ps, ok := m.Payload.(types.PeerState); ok {
				s.peer = ps
			}
		case m := <-cfgSub.Channel():
			hb, ok := m.Payload.(types.HeartbeatConfig)
			if !ok {
				log.Warnf("unexpected config payload %T", m.Payload)
				continue
			}
			iv := hb.Interval
			if iv <= 0 {
				iv = defaultInterval
			}
			tick.Reset(time.Duration(iv) * s.unit)
			log.Infof("interval set to %d", iv)
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go s.serviceLoop(ctx, conn)
}
