package split

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Frame kinds on the split link.
const (
	KindHello uint8 = 1
	KindKey   uint8 = 2
)

// Frame is one CBOR item on the link. CBOR items are self-delimiting, so
// frames are written back to back with no extra length prefix.
type Frame struct {
	Kind     uint8  `cbor:"1,keyasint"`
	Peer     string `cbor:"2,keyasint,omitempty"`
	Position uint32 `cbor:"3,keyasint,omitempty"`
	Pressed  bool   `cbor:"4,keyasint,omitempty"`
	TS       int64  `cbor:"5,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("split: cbor encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
		MaxMapPairs: 16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("split: cbor decoder mode: %v", err))
	}
}

func Marshal(f Frame) ([]byte, error) { return encMode.Marshal(f) }

func Unmarshal(b []byte) (Frame, error) {
	var f Frame
	err := decMode.Unmarshal(b, &f)
	return f, err
}

func newEncoder(w io.Writer) *cbor.Encoder { return encMode.NewEncoder(w) }
func newDecoder(r io.Reader) *cbor.Decoder { return decMode.NewDecoder(r) }
