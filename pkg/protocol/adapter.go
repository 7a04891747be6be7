package protocol

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cascade/pkg/frame"
	"cascade/pkg/geometry"
)

// DefaultMaxPayload bounds a decompressed payload.
const DefaultMaxPayload = 256 << 20

// Options configure an Adapter.
type Options struct {
	// Geometry is assumed until the server says otherwise.
	Geometry geometry.Geometry

	// KnownResolutions are tried first when a payload has an unexpected size.
	KnownResolutions []geometry.Resolution

	// Compressed means IMAG and DATA payloads are zlib streams.
	Compressed bool

	// MaxPayload limits the decompressed size; 0 means DefaultMaxPayload.
	MaxPayload int
}

// Event tells the caller what a handled message changed: PadUpdated,
// TofUpdated, StatusUpdated or Acknowledged.
type Event interface {
	event()
}

// PadUpdated follows a new PAD frame.
type PadUpdated struct {
	Reinit bool
}

// TofUpdated follows a new TOF stack. Reinit is set when the store was
// reallocated for a new geometry.
type TofUpdated struct {
	Reinit bool
}

// StatusUpdated follows a status line.
type StatusUpdated struct {
	Status ServerStatus
	Reinit bool
}

// Acknowledged follows an OKAY.
type Acknowledged struct{}

func (PadUpdated) event()    {}
func (TofUpdated) event()    {}
func (StatusUpdated) event() {}
func (Acknowledged) event()  {}

// Adapter applies server messages to a PAD and a TOF store. Messages are
// handled one at a time in the order Handle is called.
type Adapter struct {
	mu sync.Mutex

	geom       geometry.Geometry
	negotiator *geometry.Negotiator
	pad        *frame.Pad
	tof        *frame.Tof
	status     ServerStatus

	// pending reallocations requested by ForceReinit
	padStale bool
	tofStale bool

	compressed bool
	maxPayload int

	log     *zap.Logger
	session uuid.UUID
}

// New creates an adapter with empty stores for opts.Geometry. A nil logger
// disables logging.
func New(opts Options, log *zap.Logger) (*Adapter, error) {
	if err := opts.Geometry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initial geometry: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	g := opts.Geometry.Clone()

	pad, err := frame.NewPad(g.Width, g.Height)
	if err != nil {
		return nil, err
	}
	tof, err := frame.NewTof(g)
	if err != nil {
		return nil, err
	}

	maxPayload := opts.MaxPayload
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}

	session := uuid.New()
	a := &Adapter{
		geom:       g,
		negotiator: geometry.NewNegotiator(opts.KnownResolutions),
		pad:        pad,
		tof:        tof,
		compressed: opts.Compressed,
		maxPayload: maxPayload,
		log:        log.With(zap.String("session", session.String())),
		session:    session,
	}
	a.status.XRes = g.Width
	a.status.YRes = g.Height
	a.status.TRes = g.StoredImages()
	a.status.Compression = g.PseudoCompression
	a.log.Info("Protocol adapter ready", zap.Stringer("geometry", g), zap.Bool("compressed", opts.Compressed))
	return a, nil
}

// Session identifies this adapter in log output.
func (a *Adapter) Session() string {
	return a.session.String()
}

// Geometry returns the geometry the next frame is expected in.
func (a *Adapter) Geometry() geometry.Geometry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.geom.Clone()
}

// Status returns what the server reported so far.
func (a *Adapter) Status() ServerStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Pad returns the PAD store.
func (a *Adapter) Pad() *frame.Pad { return a.pad }

// Tof returns the TOF store.
func (a *Adapter) Tof() *frame.Tof { return a.tof }

// ForceReinit makes both stores reallocate before they take the next frame.
func (a *Adapter) ForceReinit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.padStale = true
	a.tofStale = true
}

// HandleRaw splits the tag off raw and handles the message.
func (a *Adapter) HandleRaw(raw []byte) (Event, error) {
	tag, payload, err := Split(raw)
	if err != nil {
		a.log.Error("Dropping message", zap.Error(err))
		return nil, err
	}
	return a.Handle(tag, payload)
}

// Handle applies one message. Data messages that cannot be fitted to any
// geometry leave the stores and the geometry as they were; ERR_ messages
// are returned as *ServerError.
func (a *Adapter) Handle(tag string, payload []byte) (Event, error) {
	msg, err := Decode(tag, payload)
	if err != nil {
		a.log.Error("Unknown prefix in server response", zap.String("tag", tag))
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch m := msg.(type) {
	case ImageData:
		reinit, err := a.handleFrame(geometry.PAD, m.Payload)
		if err != nil {
			return nil, err
		}
		return PadUpdated{Reinit: reinit}, nil
	case TofData:
		reinit, err := a.handleFrame(geometry.TOF, m.Payload)
		if err != nil {
			return nil, err
		}
		return TofUpdated{Reinit: reinit}, nil
	case ErrorText:
		a.log.Warn("Server reported an error", zap.String("text", m.Text))
		return nil, &ServerError{Text: m.Text}
	case StatusLine:
		return a.handleStatus(m.Status), nil
	case Okay:
		return Acknowledged{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
}

// handleFrame loads a PAD or TOF payload, renegotiating the geometry when
// the payload size does not match it.
func (a *Adapter) handleFrame(kind geometry.Kind, payload []byte) (bool, error) {
	if a.compressed {
		raw, err := a.decompress(payload)
		if err != nil {
			a.log.Error("Error in decompression", zap.Stringer("kind", kind), zap.Error(err))
			return false, err
		}
		payload = raw
	}

	reinit := false
	want := a.geom.ExpectedByteCount(kind)
	if len(payload) != want {
		var (
			g  geometry.Geometry
			ok bool
		)
		if len(payload)%geometry.BytesPerCount == 0 {
			g, ok = a.negotiator.GuessFromByteCount(a.geom, len(payload)/geometry.BytesPerCount, kind)
		}
		if !ok {
			err := &DimensionMismatchError{Kind: kind.String(), Expected: want, Got: len(payload)}
			a.log.Error("Dimension mismatch", zap.Error(err))
			return false, err
		}
		a.log.Info("Adopting new geometry",
			zap.Stringer("from", a.geom), zap.Stringer("to", g), zap.Int("bytes", len(payload)))
		if err := a.adopt(g); err != nil {
			return false, err
		}
		reinit = true
	}

	var store interface {
		Reinit(geometry.Geometry) error
		LoadRaw([]byte) error
	}
	stale := &a.padStale
	store = a.pad
	if kind == geometry.TOF {
		stale = &a.tofStale
		store = a.tof
	}
	if *stale {
		if err := store.Reinit(a.geom); err != nil {
			return false, err
		}
		*stale = false
		reinit = true
	}
	if err := store.LoadRaw(payload); err != nil {
		return reinit, err
	}
	a.log.Debug("Frame loaded", zap.Stringer("kind", kind), zap.Int("bytes", len(payload)))
	return reinit, nil
}

func (a *Adapter) decompress(payload []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, int64(a.maxPayload)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	if len(out) > a.maxPayload {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrDecompression, a.maxPayload)
	}
	return out, nil
}

// Compress encodes payload as the zlib stream a compressing server sends.
func Compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// adopt switches to g and reallocates both stores for it, so that neither
// keeps data laid out for the previous geometry. Callers hold a.mu.
func (a *Adapter) adopt(g geometry.Geometry) error {
	if err := a.pad.Reinit(g); err != nil {
		return err
	}
	if err := a.tof.Reinit(g); err != nil {
		return err
	}
	a.geom = g
	a.padStale = false
	a.tofStale = false
	a.status.XRes = g.Width
	a.status.YRes = g.Height
	a.status.TRes = g.StoredImages()
	a.status.Compression = g.PseudoCompression
	a.log.Debug("Stores reallocated", zap.Stringer("geometry", g))
	return nil
}

func (a *Adapter) handleStatus(st Status) StatusUpdated {
	if stop, ok := st.Int("stop"); ok {
		a.status.Running = stop == 0
	}
	if t, ok := st.Float("time"); ok {
		a.status.Time = t
	}
	if m, ok := st.String("mode"); ok {
		if mode := ParseMode(m); mode != ModeUnknown {
			a.status.Mode = mode
		}
	}
	if n, ok := st.Int("ext_count"); ok {
		a.status.ExtCount = n
	}
	if n, ok := st.Int("clients"); ok {
		a.status.Clients = n
	}

	g := a.geom.Clone()
	changed := false
	if n, ok := st.Int("xres"); ok {
		g = g.WithImageSize(n, g.Height)
		changed = true
	}
	if n, ok := st.Int("yres"); ok {
		g = g.WithImageSize(g.Width, n)
		changed = true
	}
	if n, ok := st.Int("tres"); ok {
		g = g.WithImageCount(n)
		changed = true
	}
	if n, ok := st.Int("comp"); ok {
		g.PseudoCompression = n != 0
		changed = true
	}

	reinit := false
	if changed {
		if err := g.Validate(); err != nil {
			a.log.Warn("Ignoring invalid geometry from server", zap.Error(err))
		} else if err := a.adopt(g); err != nil {
			a.log.Error("Failed to reallocate stores", zap.Error(err))
		} else {
			reinit = true
		}
	}

	a.log.Debug("Status updated",
		zap.Bool("running", a.status.Running),
		zap.Float64("time", a.status.Time),
		zap.Stringer("mode", a.status.Mode),
		zap.Bool("reinit", reinit))
	return StatusUpdated{Status: a.status, Reinit: reinit}
}
