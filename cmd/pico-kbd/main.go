//go:build rp2040

// Command pico-kbd is the firmware for one half of a split keyboard on an
// RP2040. Select the half at link time:
//
//	tinygo flash -target pico -ldflags "-X main.device=pico-right" ./cmd/pico-kbd
package main

import (
	"context"
	"machine"
	"time"

	"github.com/jangala-dev/tinygo-uartx/uartx"

	"kbdcode-go/drivers/mcp23008"
	"kbdcode-go/services/firmware"
	"kbdcode-go/services/matrix"
	"kbdcode-go/services/split"
	"kbdcode-go/types"
	"kbdcode-go/x/logx"
)

var device = "pico-left"

const (
	colExpander = 0 // 0x20
	rowExpander = 1 // 0x21

	splitTX = machine.GP4
	splitRX = machine.GP5

	relinkDelay = 250 * time.Millisecond
)

var log = logx.New("pico")

// uartReader turns RecvSomeContext into an io.Reader bound to ctx.
type uartReader struct {
	ctx context.Context
	u   *uartx.UART
}

func (r uartReader) Read(p []byte) (int, error) { return r.u.RecvSomeContext(r.ctx, p) }

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	ctx := context.Background()

	st, err := firmware.Start(ctx, device)
	if err != nil {
		halt("boot: " + err.Error())
	}
	cfg := st.Config

	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	}); err != nil {
		halt("i2c: " + err.Error())
	}
	cols := mcp23008.New(i2c, colExpander)
	rows := mcp23008.New(i2c, rowExpander)
	if err := cols.Configure(mcp23008.DefaultInputs); err != nil {
		halt("column expander: " + err.Error())
	}
	if err := rows.Configure(mcp23008.Config{Direction: 0x00}); err != nil {
		halt("row expander: " + err.Error())
	}

	scanner, err := matrix.New(cfg.Matrix, matrix.ExpanderRows{Dev: rows}, matrix.ExpanderColumns{cols})
	if err != nil {
		halt("matrix: " + err.Error())
	}
	go scanner.Run(ctx, st.Bus.NewConnection("matrix"))

	if cfg.Split.Role != types.SplitNone {
		u := uartx.UART1
		if err := u.Configure(uartx.UARTConfig{BaudRate: cfg.Split.Baud, TX: splitTX, RX: splitRX}); err != nil {
			halt("uart: " + err.Error())
		}
		go runSplit(ctx, st, cfg.Split.Role, u)
	}

	select {}
}

// runSplit restarts the link after every failure.
// The peripheral keeps one peer ID for the whole boot.
func runSplit(ctx context.Context, st *firmware.Stack, role types.SplitRole, u *uartx.UART) {
	var peer string
	for ctx.Err() == nil {
		var err error
		if role == types.SplitCentral {
			err = split.NewCentral(st.Bus.NewConnection("split"), uartReader{ctx: ctx, u: u}).Run(ctx)
		} else {
			p := split.NewPeripheral(st.Bus.NewConnection("split"), u, peer)
			peer = p.ID
			err = p.Run(ctx)
		}
		if err != nil {
			log.Warnf("split link: %v", err)
		}
		time.Sleep(relinkDelay)
	}
}

func halt(msg string) {
	for {
		log.Errorf("%s", msg)
		time.Sleep(time.Second)
	}
}
