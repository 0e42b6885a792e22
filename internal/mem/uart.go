package mem

import (
	"io"
	"os"
	"sync"
)

// UART models the MMIO device at [UARTBase, UARTBase+UARTSize) described in
// spec.md §6: a status byte whose bit 0 signals RX-ready, a data register
// that dequeues one byte on read, and a TX register that writes to the host.
//
// Feeding host keystrokes into the RX queue is the job of an external host
// input thread (out of scope per spec.md §1); UART only exposes PushInput
// as the injection point that collaborator uses.
type UART struct {
	mu  sync.Mutex
	rx  []byte
	out io.Writer
}

// NewUART creates a UART device that writes TX bytes to out. A nil out
// defaults to os.Stdout.
func NewUART(out io.Writer) *UART {
	if out == nil {
		out = os.Stdout
	}
	return &UART{out: out}
}

// PushInput enqueues one host-provided byte for the guest to read.
func (u *UART) PushInput(b byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rx = append(u.rx, b)
}

// Status returns the UART_STATUS byte; bit 0 is set while the RX queue is
// non-empty.
func (u *UART) Status() byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.rx) > 0 {
		return 1
	}
	return 0
}

// ReadRxData dequeues and returns one byte, clearing RX-ready once the queue
// drains. ok is false if the queue was already empty.
func (u *UART) ReadRxData() (b byte, ok bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.rx) == 0 {
		return 0, false
	}
	b = u.rx[0]
	u.rx = u.rx[1:]
	return b, true
}

// WriteTxData emits one character to the host.
func (u *UART) WriteTxData(b byte) {
	_, _ = u.out.Write([]byte{b})
}

// ReadByte services a guest MMIO byte read at physical address pa, which
// must lie within [UARTBase, UARTBase+UARTSize).
func (u *UART) ReadByte(pa uint32) (byte, error) {
	off := pa - UARTBase
	switch off {
	case uartStatusOffset:
		return u.Status(), nil
	case uartRxOffset:
		b, _ := u.ReadRxData()
		return b, nil
	default:
		return 0, nil
	}
}

// WriteByte services a guest MMIO byte write at physical address pa.
func (u *UART) WriteByte(pa uint32, v byte) error {
	off := pa - UARTBase
	if off == uartTxOffset {
		u.WriteTxData(v)
	}
	return nil
}
