// Package mcp23008 drives the Microchip MCP23008 8-bit I/O expander.
//
// Only the register file is modelled; callers decide which pins are rows or
// columns. All access goes through drivers.I2C so the same code runs against
// machine.I2C on the MCU and a fake bus in host tests.
package mcp23008

import (
	"errors"

	"tinygo.org/x/drivers"
)

// Base I2C address; A2..A0 select 0x20..0x27.
const Address = 0x20

// Registers (IOCON.BANK = 0).
const (
	IODIR   = 0x00 // I/O direction, 1 = input
	IPOL    = 0x01 // input polarity
	GPINTEN = 0x02 // interrupt-on-change enable
	DEFVAL  = 0x03 // default compare for interrupt-on-change
	INTCON  = 0x04 // interrupt control
	IOCON   = 0x05 // configuration
	GPPU    = 0x06 // pull-up enable
	INTF    = 0x07 // interrupt flags
	INTCAP  = 0x08 // interrupt capture
	GPIO    = 0x09 // port
	OLAT    = 0x0A // output latch
)

var ErrBus = errors.New("mcp23008: bus error")

type Config struct {
	// Direction per pin, 1 = input. Power-on default is 0xFF.
	Direction uint8
	// PullUps per pin, 1 = enabled.
	PullUps uint8
	// Polarity per pin, 1 = inverted.
	Polarity uint8
}

// DefaultInputs is all pins as pulled-up inputs, the usual matrix column setup.
var DefaultInputs = Config{Direction: 0xFF, PullUps: 0xFF}

type Device struct {
	bus  drivers.I2C
	addr uint16
	w    [2]byte
	r    [1]byte
}

// New returns a device at Address | (addressBits & 0x7).
func New(bus drivers.I2C, addressBits uint8) *Device {
	return &Device{bus: bus, addr: uint16(Address | (addressBits & 0x7))}
}

func (d *Device) Addr() uint16 { return d.addr }

// Configure writes direction, pull-ups and polarity.
func (d *Device) Configure(cfg Config) error {
	if err := d.WriteRegister(GPPU, cfg.PullUps); err != nil {
		return err
	}
	if err := d.WriteRegister(IPOL, cfg.Polarity); err != nil {
		return err
	}
	return d.WriteRegister(IODIR, cfg.Direction)
}

func (d *Device) WriteRegister(reg, val uint8) error {
	d.w[0], d.w[1] = reg, val
	if err := d.bus.Tx(d.addr, d.w[:2], nil); err != nil {
		return errors.Join(ErrBus, err)
	}
	return nil
}

func (d *Device) ReadRegister(reg uint8) (uint8, error) {
	d.w[0] = reg
	if err := d.bus.Tx(d.addr, d.w[:1], d.r[:]); err != nil {
		return 0, errors.Join(ErrBus, err)
	}
	return d.r[0], nil
}

// ReadGPIO returns the raw port levels.
func (d *Device) ReadGPIO() (uint8, error) { return d.ReadRegister(GPIO) }

// WriteGPIO sets the output latch.
func (d *Device) WriteGPIO(v uint8) error { return d.WriteRegister(OLAT, v) }
