package heartbeat

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"kbdcode-go/bus"
	"kbdcode-go/topics"
	"kbdcode-go/types"
	"kbdcode-go/x/logx"
)

type syncBuf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (w *syncBuf) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.Write(p)
}

func (w *syncBuf) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.String()
}

func TestHeartbeat_ReportsLayerAndPeer(t *testing.T) {
	var out syncBuf
	logx.SetOutput(&out)
	t.Cleanup(func() { logx.SetOutput(nil) })

	b := bus.NewBus(8)
	pub := b.NewConnection("test")
	pub.Publish(&bus.Message{Topic: topics.Config("heartbeat"), Payload: types.HeartbeatConfig{Interval: 5}, Retained: true})
	pub.Publish(&bus.Message{Topic: topics.LayerState(), Payload: types.LayerState{Active: 0b101, Highest: 2}, Retained: true})
	pub.Publish(&bus.Message{Topic: topics.SplitPeer(), Payload: types.PeerState{ID: "right", Connected: true}, Retained: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()
	s.unit = time.Millisecond
	s.Start(ctx, b.NewConnection("heartbeat"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), "layer 2 active 0x5 peer right connected=true") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := out.String()
	if !strings.Contains(got, "interval set to 5") {
		t.Fatalf("no interval change in %q", got)
	}
	if !strings.Contains(got, "layer 2 active 0x5 peer right connected=true") {
		t.Fatalf("no beat in %q", got)
	}
}
