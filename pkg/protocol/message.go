// Package protocol interprets the messages of the detector data server and
// keeps the client side frame stores and geometry in step with them.
//
// Every server message starts with a four character tag. The remainder is
// either a binary payload (IMAG, DATA) or text (ERR_, MSG_, OKAY).
package protocol

import (
	"errors"
	"fmt"
)

// TagLen is the length of the tag in front of every message.
const TagLen = 4

// Message tags sent by the server.
const (
	TagImage  = "IMAG"
	TagTof    = "DATA"
	TagError  = "ERR_"
	TagStatus = "MSG_"
	TagOkay   = "OKAY"
)

var (
	ErrShortMessage      = errors.New("message shorter than its tag")
	ErrUnknownMessage    = errors.New("unknown message tag")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrDecompression     = errors.New("payload decompression failed")
)

// Message is one decoded server message: ImageData, TofData, ErrorText,
// StatusLine or Okay.
type Message interface {
	Tag() string
	message()
}

// ImageData carries the counts of a PAD frame.
type ImageData struct {
	Payload []byte
}

// TofData carries the counts of a TOF stack.
type TofData struct {
	Payload []byte
}

// ErrorText is an error reported by the server.
type ErrorText struct {
	Text string
}

// StatusLine is a list of key=value settings.
type StatusLine struct {
	Status Status
}

// Okay acknowledges a command.
type Okay struct{}

func (ImageData) Tag() string  { return TagImage }
func (TofData) Tag() string    { return TagTof }
func (ErrorText) Tag() string  { return TagError }
func (StatusLine) Tag() string { return TagStatus }
func (Okay) Tag() string       { return TagOkay }

func (ImageData) message()  {}
func (TofData) message()    {}
func (ErrorText) message()  {}
func (StatusLine) message() {}
func (Okay) message()       {}

// Split separates the tag from the rest of a raw message.
func Split(raw []byte) (string, []byte, error) {
	if len(raw) < TagLen {
		return "", nil, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(raw))
	}
	return string(raw[:TagLen]), raw[TagLen:], nil
}

// Decode turns a tagged payload into a Message. Binary payloads are not
// copied.
func Decode(tag string, payload []byte) (Message, error) {
	switch tag {
	case TagImage:
		return ImageData{Payload: payload}, nil
	case TagTof:
		return TofData{Payload: payload}, nil
	case TagError:
		return ErrorText{Text: trimText(payload)}, nil
	case TagStatus:
		return StatusLine{Status: ParseStatus(trimText(payload))}, nil
	case TagOkay:
		return Okay{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
	}
}

// trimText drops the terminating NUL and trailing line breaks the server
// appends to text messages.
func trimText(b []byte) string {
	end := len(b)
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	for end > 0 && (b[end-1] == '\n' || b[end-1] == '\r') {
		end--
	}
	return string(b[:end])
}

// ServerError is the text of an ERR_ message.
type ServerError struct {
	Text string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Text
}

// DimensionMismatchError reports a payload whose size matches neither the
// current geometry nor any guessed one.
type DimensionMismatchError struct {
	Kind     string
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch in %s data: client expected %d bytes, server sent %d bytes",
		e.Kind, e.Expected, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }
