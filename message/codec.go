package message

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrDecode marks payloads that cannot be turned back into a Message:
// unknown tag, truncated or malformed fields, oversized frames
var ErrDecode = errors.New("cannot decode message")

const (
	// MaxPayloadSize limits a single encoded message, 1 MB
	MaxPayloadSize = 1024 * 1024

	frameHeaderLen = 4
)

// Encode serializes a message into a payload
/*
	payload format:
	[0]    - kind tag
	[1..]  - fields in declaration order

	field encodings:
	string - [0..3] length (uint32), [4..] bytes
	int    - [0..3] value as uint32 (two's complement)
	bool   - [0] 0x00 or 0x01
*/
func Encode(msg Message) ([]byte, error) {
	var enc encoder

	switch m := msg.(type) {
	case ReadRequest:
		enc.putKind(KindReadRequest)
		enc.putString(m.Username)

	case ReadResponse:
		enc.putKind(KindReadResponse)
		enc.putString(m.Username)
		enc.putBool(m.Found)
		enc.putString(m.SSN)

	case WriteRequest:
		enc.putKind(KindWriteRequest)
		enc.putString(m.Username)
		enc.putString(m.SSN)

	case Acknowledgment:
		enc.putKind(KindAcknowledgment)
		enc.putString(m.Text)

	case ErrorMessage:
		enc.putKind(KindErrorMessage)
		enc.putString(m.Text)

	case ReplicationMessage:
		enc.putKind(KindReplication)
		enc.putString(m.Username)
		enc.putString(m.SSN)

	case TokenRequest:
		enc.putKind(KindTokenRequest)
		enc.putInt(m.RequesterID)

	case TokenGrant:
		enc.putKind(KindTokenGrant)

	case TokenHolderUpdate:
		enc.putKind(KindTokenHolderUpdate)
		enc.putInt(m.NewHolderID)

	default:
		return nil, fmt.Errorf("unsupported message type: %T", msg)
	}

	if enc.err != nil {
		return nil, fmt.Errorf("cannot encode %s: %w", msg.Kind(), enc.err)
	}

	if len(enc.buf) > MaxPayloadSize {
		return nil, fmt.Errorf("message too large: %d bytes", len(enc.buf))
	}

	return enc.buf, nil
}

// Decode reconstructs a message from a payload produced by Encode
func Decode(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	var (
		kind = Kind(payload[0])
		dec  = decoder{buf: payload, off: 1}
		msg  Message
	)

	switch kind {
	case KindReadRequest:
		msg = ReadRequest{Username: dec.string()}

	case KindReadResponse:
		var resp ReadResponse
		resp.Username = dec.string()
		resp.Found = dec.bool()
		resp.SSN = dec.string()
		msg = resp

	case KindWriteRequest:
		var req WriteRequest
		req.Username = dec.string()
		req.SSN = dec.string()
		msg = req

	case KindAcknowledgment:
		msg = Acknowledgment{Text: dec.string()}

	case KindErrorMessage:
		msg = ErrorMessage{Text: dec.string()}

	case KindReplication:
		var rep ReplicationMessage
		rep.Username = dec.string()
		rep.SSN = dec.string()
		msg = rep

	case KindTokenRequest:
		msg = TokenRequest{RequesterID: dec.int()}

	case KindTokenGrant:
		msg = TokenGrant{}

	case KindTokenHolderUpdate:
		msg = TokenHolderUpdate{NewHolderID: dec.int()}

	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrDecode, payload[0])
	}

	if dec.err != nil {
		return nil, fmt.Errorf("%s: %w", kind, dec.err)
	}

	if dec.off != len(payload) {
		return nil, fmt.Errorf("%w: %s: %d trailing bytes", ErrDecode, kind, len(payload)-dec.off)
	}

	return msg, nil
}

// WriteFrame writes msg prefixed with its payload length (uint32)
func WriteFrame(w io.Writer, msg Message) error {
	payload, err := Encode(msg)
	if err != nil {
		return err
	}

	var frame = make([]byte, frameHeaderLen+len(payload))
	binary.BigEndian.PutUint32(frame[0:frameHeaderLen], uint32(len(payload)))
	copy(frame[frameHeaderLen:], payload)

	if _, err = w.Write(frame); err != nil {
		return fmt.Errorf("cannot write %s frame: %w", msg.Kind(), err)
	}

	return nil
}

// ReadFrame reads exactly one frame written by WriteFrame.
// A stream that ends before the header returns an error wrapping io.EOF.
func ReadFrame(r io.Reader) (Message, error) {
	var header = make([]byte, frameHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("cannot read frame header: %w", err)
	}

	var size = binary.BigEndian.Uint32(header)
	if size == 0 || size > MaxPayloadSize {
		return nil, fmt.Errorf("%w: invalid payload length: %d", ErrDecode, size)
	}

	var payload = make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: truncated payload: %w", ErrDecode, err)
	}

	return Decode(payload)
}

// encoder keeps the first error, like decoder
type encoder struct {
	buf []byte
	err error
}

func (e *encoder) putKind(k Kind) {
	e.buf = append(e.buf, byte(k))
}

func (e *encoder) putString(s string) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) putInt(v int) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		if e.err == nil {
			e.err = fmt.Errorf("int %d does not fit in 32 bits", v)
		}
		return
	}
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(int32(v)))
}

func (e *encoder) putBool(b bool) {
	if b {
		e.buf = append(e.buf, 1)
		return
	}
	e.buf = append(e.buf, 0)
}

// decoder keeps the first error, later reads become no-ops
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) uint32() uint32 {
	if d.err != nil {
		return 0
	}

	if len(d.buf)-d.off < 4 {
		d.err = fmt.Errorf("%w: need 4 bytes at offset %d, got %d", ErrDecode, d.off, len(d.buf)-d.off)
		return 0
	}

	var v = binary.BigEndian.Uint32(d.buf[d.off : d.off+4])
	d.off += 4

	return v
}

func (d *decoder) int() int {
	return int(int32(d.uint32()))
}

func (d *decoder) string() string {
	var n = d.uint32()
	if d.err != nil {
		return ""
	}

	if uint64(n) > uint64(len(d.buf)-d.off) {
		d.err = fmt.Errorf("%w: string of %d bytes at offset %d exceeds payload", ErrDecode, n, d.off)
		return ""
	}

	var s = string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)

	return s
}

func (d *decoder) bool() bool {
	if d.err != nil {
		return false
	}

	if d.off >= len(d.buf) {
		d.err = fmt.Errorf("%w: missing bool at offset %d", ErrDecode, d.off)
		return false
	}

	var b = d.buf[d.off]
	d.off++

	switch b {
	case 0:
		return false
	case 1:
		return true
	}

	d.err = fmt.Errorf("%w: invalid bool value 0x%02x", ErrDecode, b)
	return false
}
