package protocol

import (
	"bytes"
	"errors"
	"io"
)

// readChunk is the step by which the read buffer grows when it is full.
const readChunk = 1024

// ErrZeroWrite reports a writer that accepted no bytes of a non-empty buffer
// without returning an error. io.Writer forbids this, so it marks a broken
// stream implementation rather than a network condition.
var ErrZeroWrite = errors.New("protocol: write accepted zero bytes without error")

// Framer turns a byte stream into CRLF-delimited lines and stages outbound
// bytes until they are flushed.
//
// The read side and the write side are independent: one goroutine may call
// ReadLine while another calls Buffer and Flush. Neither side is safe for
// concurrent use by more than one goroutine.
//
// Read buffer growth is unbounded; a peer that never sends a terminator
// grows its buffer until it disconnects.
type Framer struct {
	r  io.Reader
	w  io.Writer
	rd []byte
	wr []byte
}

// NewFramer creates a Framer reading from r and writing to w.
func NewFramer(r io.Reader, w io.Writer) *Framer {
	return &Framer{r: r, w: w}
}

// ReadLine returns the next complete line with its terminator stripped.
// It returns io.EOF once the stream ends; bytes after the last terminator
// are discarded.
func (f *Framer) ReadLine() ([]byte, error) {
	for {
		if i := bytes.Index(f.rd, []byte(Terminator)); i >= 0 {
			line := bytes.Clone(f.rd[:i])
			n := copy(f.rd, f.rd[i+len(Terminator):])
			f.rd = f.rd[:n]
			return line, nil
		}
		if err := f.fill(); err != nil {
			return nil, err
		}
	}
}

// fill pulls whatever the stream has available into the read buffer.
func (f *Framer) fill() error {
	if len(f.rd) == cap(f.rd) {
		grown := make([]byte, len(f.rd), cap(f.rd)+readChunk)
		copy(grown, f.rd)
		f.rd = grown
	}

	n, err := f.r.Read(f.rd[len(f.rd):cap(f.rd)])
	f.rd = f.rd[:len(f.rd)+n]
	if n > 0 {
		// Any error repeats on the next read, after these bytes are scanned.
		return nil
	}
	if err == nil {
		return io.EOF
	}
	return err
}

// Buffer appends data to the write buffer without touching the stream.
func (f *Framer) Buffer(data []byte) {
	f.wr = append(f.wr, data...)
}

// Buffered returns the number of bytes waiting to be flushed.
func (f *Framer) Buffered() int {
	return len(f.wr)
}

// Flush writes the write buffer to the stream. On error the bytes the
// stream did not accept stay buffered.
func (f *Framer) Flush() error {
	for len(f.wr) > 0 {
		n, err := f.w.Write(f.wr)
		if n > 0 {
			rest := copy(f.wr, f.wr[n:])
			f.wr = f.wr[:rest]
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrZeroWrite
		}
	}
	return nil
}
