package mcp23008

import (
	"errors"
	"testing"

	"tinygo.org/x/drivers"
)

// fakeI2C models a single MCP23008 register file.
type fakeI2C struct {
	regs [0x0B]byte
	addr uint16
	fail bool
	txs  int
}

var _ drivers.I2C = (*fakeI2C)(nil)

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	f.txs++
	if f.fail {
		return errors.New("nack")
	}
	f.addr = addr
	if len(w) == 0 {
		return nil
	}
	reg := w[0]
	if len(w) == 2 {
		f.regs[reg] = w[1]
	}
	for i := range r {
		r[i] = f.regs[int(reg)+i]
	}
	return nil
}

func TestConfigureAndRead(t *testing.T) {
	bus := &fakeI2C{}
	d := New(bus, 0x9) // only the low three bits count
	if d.Addr() != 0x21 {
		t.Fatalf("addr = %#x, want 0x21", d.Addr())
	}
	if err := d.Configure(DefaultInputs); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if bus.regs[GPPU] != 0xFF || bus.regs[IODIR] != 0xFF || bus.regs[IPOL] != 0 {
		t.Fatalf("unexpected registers: %x", bus.regs)
	}

	bus.regs[GPIO] = 0b1011_0111
	v, err := d.ReadGPIO()
	if err != nil || v != 0b1011_0111 {
		t.Fatalf("ReadGPIO = %#b, %v", v, err)
	}
	if bus.addr != 0x21 {
		t.Fatalf("tx addr = %#x", bus.addr)
	}
}

func TestBusErrors(t *testing.T) {
	d := New(&fakeI2C{fail: true}, 0)
	if _, err := d.ReadGPIO(); !errors.Is(err, ErrBus) {
		t.Fatalf("ReadGPIO err = %v, want ErrBus", err)
	}
	if err := d.WriteGPIO(1); !errors.Is(err, ErrBus) {
		t.Fatalf("WriteGPIO err = %v, want ErrBus", err)
	}
}
