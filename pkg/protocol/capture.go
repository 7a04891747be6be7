package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// A capture stores server messages one after another, each as a 32 bit
// little-endian length followed by the raw message (tag and payload).

// CaptureReader reads the messages of a capture.
type CaptureReader struct {
	r   io.Reader
	max int
}

// NewCaptureReader reads records of at most maxRecord bytes from r; 0
// means DefaultMaxPayload plus the tag.
func NewCaptureReader(r io.Reader, maxRecord int) *CaptureReader {
	if maxRecord <= 0 {
		maxRecord = DefaultMaxPayload + TagLen
	}
	return &CaptureReader{r: r, max: maxRecord}
}

// Next returns the next raw message, or io.EOF after the last one.
func (c *CaptureReader) Next() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated capture record header: %w", err)
		}
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(hdr[:]))
	if n > c.max {
		return nil, fmt.Errorf("capture record of %d bytes exceeds limit of %d", n, c.max)
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(c.r, raw); err != nil {
		return nil, fmt.Errorf("truncated capture record: %w", err)
	}
	return raw, nil
}

// WriteCapture appends one message to a capture.
func WriteCapture(w io.Writer, tag string, payload []byte) error {
	if len(tag) != TagLen {
		return fmt.Errorf("invalid tag %q", tag)
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(TagLen+len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := io.WriteString(w, tag); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// Replay feeds every message of a capture to the adapter in order. fn, if
// not nil, sees the outcome of each message; a non-nil return from fn stops
// the replay. Without fn, message errors are ignored.
func (a *Adapter) Replay(r *CaptureReader, fn func(Event, error) error) error {
	for {
		raw, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		ev, herr := a.HandleRaw(raw)
		if fn != nil {
			if err := fn(ev, herr); err != nil {
				return err
			}
		}
	}
}
