// Package matrix scans a row-strobed key matrix and publishes debounced
// position changes on kbd/key.
package matrix

import (
	"context"
	"time"

	"kbdcode-go/bus"
	"kbdcode-go/drivers/mcp23008"
	"kbdcode-go/errcode"
	"kbdcode-go/topics"
	"kbdcode-go/types"
	"kbdcode-go/x/logx"
	"kbdcode-go/x/mathx"
	"kbdcode-go/x/timex"
)

const (
	maxCols             = 32
	defaultScanInterval = time.Millisecond
)

var log = logx.New("matrix")

// RowSelector drives one row line active at a time.
type RowSelector interface {
	SelectRow(row int) error
	ReleaseRows() error
}

// ColumnReader returns the columns of the selected row, bit set = closed.
type ColumnReader interface {
	ReadColumns() (uint32, error)
}

// ExpanderColumns reads columns from MCP23008 ports wired active low with
// pull-ups. Port 0 supplies columns 0..7, port 1 columns 8..15, and so on.
type ExpanderColumns []*mcp23008.Device

func (e ExpanderColumns) ReadColumns() (uint32, error) {
	var v uint32
	for i, p := range e {
		b, err := p.ReadGPIO()
		if err != nil {
			return 0, err
		}
		v |= uint32(^b) << (8 * uint(i))
	}
	return v, nil
}

// ExpanderRows drives up to eight rows from an MCP23008 configured as
// outputs. The selected row is pulled low, the rest stay high.
type ExpanderRows struct {
	Dev *mcp23008.Device
}

func (e ExpanderRows) SelectRow(row int) error {
	if row < 0 || row > 7 {
		return errcode.InvalidParams
	}
	return e.Dev.WriteGPIO(^uint8(1 << uint(row)))
}

func (e ExpanderRows) ReleaseRows() error { return e.Dev.WriteGPIO(0xFF) }

type Scanner struct {
	rows, cols int
	offset     uint32
	debounce   time.Duration
	settle     time.Duration
	interval   time.Duration

	sel RowSelector
	col ColumnReader

	stable    []bool
	raw       []bool
	changedAt []time.Time

	sleep func(time.Duration)
}

func New(cfg types.MatrixConfig, sel RowSelector, col ColumnReader) (*Scanner, error) {
	if cfg.Rows <= 0 || cfg.Cols <= 0 || cfg.Cols > maxCols || sel == nil || col == nil {
		return nil, errcode.InvalidParams
	}
	n := cfg.Rows * cfg.Cols
	interval := timex.Ms(cfg.ScanIntervalMs)
	if interval <= 0 {
		interval = defaultScanInterval
	}
	return &Scanner{
		rows:      cfg.Rows,
		cols:      cfg.Cols,
		offset:    cfg.Offset,
		debounce:  timex.Ms(cfg.DebounceMs),
		settle:    time.Duration(mathx.Clamp(cfg.SettleUs, 0, 1000)) * time.Microsecond,
		interval:  interval,
		sel:       sel,
		col:       col,
		stable:    make([]bool, n),
		raw:       make([]bool, n),
		changedAt: make([]time.Time, n),
		sleep:     time.Sleep,
	}, nil
}

// Scan reads every row once and returns the changes whose raw state has
// been steady for the debounce time.
func (s *Scanner) Scan(now time.Time) ([]types.KeyEvent, error) {
	var out []types.KeyEvent
	for r := 0; r < s.rows; r++ {
		if err := s.sel.SelectRow(r); err != nil {
			return out, err
		}
		if s.settle > 0 {
			s.sleep(s.settle)
		}
		bits, err := s.col.ReadColumns()
		_ = s.sel.ReleaseRows()
		if err != nil {
			return out, err
		}
		for c := 0; c < s.cols; c++ {
			i := r*s.cols + c
			closed := bits&(1<<uint(c)) != 0
			if closed != s.raw[i] {
				s.raw[i] = closed
				s.changedAt[i] = now
			}
			if s.raw[i] != s.stable[i] && now.Sub(s.changedAt[i]) >= s.debounce {
				s.stable[i] = s.raw[i]
				out = append(out, types.KeyEvent{
					Position: uint32(i) + s.offset,
					Pressed:  s.stable[i],
					TS:       now.UnixMilli(),
				})
			}
		}
	}
	return out, nil
}

// Run scans until ctx is done, publishing each change.
func (s *Scanner) Run(ctx context.Context, conn *bus.Connection) {
	tick := time.NewTicker(s.interval)
	defer tick.Stop()
	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			evs, err := s.Scan(now)
			if err != nil && !failing {
				log.Errorf("scan failed: %v", err)
			}
			failing = err != nil
			for _, ev := range evs {
				conn.Publish(&bus.Message{Topic: topics.Key(), Payload: ev})
			}
		}
	}
}
