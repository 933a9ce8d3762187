package firmware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbdcode-go/bus"
	"kbdcode-go/errcode"
	"kbdcode-go/services/workq"
	"kbdcode-go/services/workq/workqtest"
	"kbdcode-go/topics"
	"kbdcode-go/types"
)

// highest returns 0xff when the queue cannot answer.
func highest(s *Stack) uint8 {
	st, err := s.LayerState(context.Background())
	if err != nil {
		return 0xff
	}
	return st.Highest
}

func TestStart_SimTransToRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk := &workqtest.Clock{}
	s, err := Start(ctx, "sim", WithQueueOptions(workq.WithAfterFunc(clk.AfterFunc)))
	require.NoError(t, err)
	require.NotNil(t, s.Keymap)

	conn := s.Bus.NewConnection("test")
	key := func(pos uint32, pressed bool) {
		conn.Publish(&bus.Message{Topic: topics.Key(), Payload: types.KeyEvent{Position: pos, Pressed: pressed}})
	}

	key(5, true) // to 2
	key(5, false)
	assert.Eventually(t, func() bool { return highest(s) == 2 }, time.Second, 5*time.Millisecond)

	key(0, true) // ttn, falls through to kp 0x04
	key(0, false)
	assert.Eventually(t, func() bool { return clk.Armed() == 1 }, time.Second, 5*time.Millisecond)

	clk.Advance(299 * time.Millisecond)
	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, uint8(2), highest(s))

	clk.Advance(time.Millisecond)
	assert.Eventually(t, func() bool { return highest(s) == 0 }, time.Second, 5*time.Millisecond)
}

func TestStart_Peripheral(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := Start(ctx, "pico-right")
	require.NoError(t, err)
	assert.Nil(t, s.Keymap)
	_, err = s.LayerState(ctx)
	assert.Equal(t, errcode.Unsupported, errcode.Of(err))
}

func TestStart_UnknownDevice(t *testing.T) {
	_, err := Start(context.Background(), "toaster")
	assert.Equal(t, errcode.UnknownDevice, errcode.Of(err))
}
