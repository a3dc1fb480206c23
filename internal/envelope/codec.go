package envelope

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// A frame on the wire is a uvarint byte length followed by that many bytes:
// one Kind byte and the msgpack-encoded payload (nothing for Empty).

const MaxFrameSize = 1 << 20

var (
	ErrFrameTooLarge = errors.New("envelope frame exceeds maximum size")
	ErrUnknownKind   = errors.New("unknown envelope kind")
	ErrNoKind        = errors.New("envelope frame has no kind byte")
	ErrEmptyPayload  = errors.New("empty envelope carries a payload")
	ErrTrailingBytes = errors.New("trailing bytes after envelope payload")
)

// DecodeError reports a frame that was read in full but could not be
// decoded. The stream stays in sync, so reading may continue.
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s envelope: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Marshal encodes e as a kind byte plus payload, without the length prefix.
func Marshal(e Envelope) ([]byte, error) {
	if e == nil {
		e = Empty{}
	}
	if e.Kind() == KindEmpty {
		return []byte{byte(KindEmpty)}, nil
	}
	body, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", e.Kind(), err)
	}
	return append([]byte{byte(e.Kind())}, body...), nil
}

// Unmarshal is the inverse of Marshal. Failures are *DecodeError.
func Unmarshal(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return nil, &DecodeError{Err: ErrNoKind}
	}
	kind, body := Kind(b[0]), b[1:]

	var err error
	switch kind {
	case KindEmpty:
		if len(body) != 0 {
			return nil, &DecodeError{Kind: kind, Err: ErrEmptyPayload}
		}
		return Empty{}, nil
	case KindWatchdog:
		var w Watchdog
		if err = decodeBody(body, &w); err == nil {
			return w, nil
		}
	case KindTelemetry:
		var t Telemetry
		if err = decodeBody(body, &t); err == nil {
			return t, nil
		}
	case KindFlightPlan:
		var p FlightPlan
		if err = decodeBody(body, &p); err == nil {
			return p, nil
		}
	case KindCountdown:
		var c Countdown
		if err = decodeBody(body, &c); err == nil {
			return c, nil
		}
	default:
		err = ErrUnknownKind
	}
	return nil, &DecodeError{Kind: kind, Err: err}
}

// decodeBody decodes a whole payload into v. Fields v does not know and
// bytes left over after the payload are errors, so a body sent under the
// wrong kind tag is rejected.
func decodeBody(body []byte, v any) error {
	r := bytes.NewReader(body)
	dec := msgpack.NewDecoder(r)
	dec.DisallowUnknownFields(true)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if r.Len() > 0 {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, r.Len())
	}
	return nil
}

// Encoder writes length-delimited envelopes. It is safe for concurrent use.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (enc *Encoder) Encode(e Envelope) error {
	body, err := Marshal(e)
	if err != nil {
		return err
	}

	frame := binary.AppendUvarint(make([]byte, 0, len(body)+binary.MaxVarintLen32), uint64(len(body)))
	frame = append(frame, body...)

	enc.mu.Lock()
	defer enc.mu.Unlock()
	_, err = enc.w.Write(frame)
	return err
}

// Decoder reads length-delimited envelopes from a stream.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads the next frame. It returns io.EOF at a clean end of stream,
// a *DecodeError for a complete but malformed frame (the next call reads the
// following frame), and any other error when the stream itself is broken.
func (d *Decoder) Decode() (Envelope, error) {
	n, err := binary.ReadUvarint(d.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame length: %w", err)
	}
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return Unmarshal(buf)
}
