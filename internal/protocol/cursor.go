package protocol

import "encoding/binary"

// Reader walks a packet front to back. Every read is bounds checked; once a read
// fails the reader stays failed and returns zero values.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err returns the first read failure.
func (r *Reader) Err() error {
	return r.err
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.off
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf)-r.off {
		r.err = ErrTruncatedPacket
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Fixed returns a copy of the next n bytes.
func (r *Reader) Fixed(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Bytes8 reads a one byte length followed by that many bytes.
func (r *Reader) Bytes8() []byte {
	n := int(r.Uint8())
	if r.err != nil {
		return nil
	}
	return r.Fixed(n)
}

// Writer appends packet fields to a growing buffer.
type Writer struct {
	buf []byte
	err error
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) Uint16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *Writer) Uint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *Writer) Fixed(b []byte) {
	w.buf = append(w.buf, b...)
}

// Bytes8 writes a one byte length prefix and b. Fields over MaxFieldLen poison
// the writer with ErrFieldTooLong.
func (w *Writer) Bytes8(b []byte) {
	if len(b) > MaxFieldLen {
		if w.err == nil {
			w.err = ErrFieldTooLong
		}
		return
	}
	w.buf = append(w.buf, uint8(len(b)))
	w.buf = append(w.buf, b...)
}
