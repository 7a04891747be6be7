package protocol

import (
	"strconv"
	"strings"
)

// Status is the parsed form of a status line: space separated key=value
// tokens. A token without '=' is stored with an empty value.
type Status map[string]string

// ParseStatus splits text into its key=value tokens. Later keys override
// earlier ones.
func ParseStatus(text string) Status {
	st := make(Status)
	for _, tok := range strings.Fields(text) {
		key, value, _ := strings.Cut(tok, "=")
		if key == "" {
			continue
		}
		st[strings.ToLower(key)] = value
	}
	return st
}

// String returns the raw value of key and whether it is present.
func (s Status) String(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

// Int returns key as an integer. A value that does not parse is reported
// as missing.
func (s Status) Int(key string) (int, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil {
			return 0, false
		}
		return int(f), true
	}
	return n, true
}

// Float returns key as a float.
func (s Status) Float(key string) (float64, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Mode is the acquisition mode reported by the server.
type Mode int

const (
	ModeUnknown Mode = iota
	ModePad
	ModeTof
)

func (m Mode) String() string {
	switch m {
	case ModePad:
		return "image"
	case ModeTof:
		return "tof"
	default:
		return ""
	}
}

// ParseMode maps the server's mode names ("image", "tof") to a Mode.
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "image", "pad":
		return ModePad
	case "tof":
		return ModeTof
	default:
		return ModeUnknown
	}
}

// ServerStatus accumulates what the server told us about the running
// measurement.
type ServerStatus struct {
	Running     bool
	Time        float64
	Mode        Mode
	ExtCount    int
	Clients     int
	XRes        int
	YRes        int
	TRes        int
	Compression bool
}
