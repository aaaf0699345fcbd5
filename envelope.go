package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Envelope is the outer protocol message carrying exactly one payload
// variant. Encoding is a stable, length-delimited binary format with
// the schema version pinned at 1.
type Envelope struct {
	ProtocolVersion uint32
	SessionID       string
	Seq             uint64
	Ack             uint64
	MonoMs          uint64
	WallUnixMs      uint64
	Payload         Payload
}

// codecError wraps a decode/encode failure as the CODEC_ERROR kind.
type codecError struct {
	msg string
}

func (e *codecError) Error() string { return "codec: " + e.msg }

func newCodecError(format string, args ...any) error {
	return &codecError{msg: fmt.Sprintf(format, args...)}
}

func isCodecError(err error) bool {
	_, ok := err.(*codecError)
	return ok
}

// unsupportedPayloadError is returned by decode when the wire payload kind
// byte is not one this build knows; the caller downgrades this to
// ErrorFrame{UNSUPPORTED_PAYLOAD} rather than closing the session.
type unsupportedPayloadError struct {
	kind uint8
}

func (e *unsupportedPayloadError) Error() string {
	return fmt.Sprintf("codec: unsupported payload kind %d", e.kind)
}

// encodeEnvelope serializes env into a length-prefixed frame: a 4-byte
// big-endian length followed by the body. maxFrameBytes bounds the body
// size; 0 disables the check.
func encodeEnvelope(env *Envelope, maxFrameBytes int) ([]byte, error) {
	var body bytes.Buffer
	if err := writeUint32(&body, env.ProtocolVersion); err != nil {
		return nil, err
	}
	if err := writeString(&body, env.SessionID); err != nil {
		return nil, err
	}
	if err := writeUint64(&body, env.Seq); err != nil {
		return nil, err
	}
	if err := writeUint64(&body, env.Ack); err != nil {
		return nil, err
	}
	if err := writeUint64(&body, env.MonoMs); err != nil {
		return nil, err
	}
	if err := writeUint64(&body, env.WallUnixMs); err != nil {
		return nil, err
	}
	if env.Payload == nil {
		return nil, newCodecError("envelope has no payload")
	}
	kind := env.Payload.payloadKind()
	if err := body.WriteByte(byte(kind)); err != nil {
		return nil, newCodecError("writing payload kind: %v", err)
	}
	if err := encodePayload(&body, env.Payload); err != nil {
		return nil, err
	}

	if maxFrameBytes > 0 && body.Len() > maxFrameBytes {
		return nil, newCodecError("envelope body %d bytes exceeds frame ceiling %d", body.Len(), maxFrameBytes)
	}

	out := make([]byte, 4+body.Len())
	binary.BigEndian.PutUint32(out[:4], uint32(body.Len()))
	copy(out[4:], body.Bytes())
	return out, nil
}

// decodeEnvelope reads one length-prefixed frame from r. maxFrameBytes
// bounds the accepted body size; exceeding it is a CODEC_ERROR.
func decodeEnvelope(r io.Reader, maxFrameBytes int) (*Envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err // EOF / transport error, propagated as-is
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if maxFrameBytes > 0 && int(n) > maxFrameBytes {
		return nil, newCodecError("frame length %d exceeds ceiling %d", n, maxFrameBytes)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, newCodecError("short read on body: %v", err)
	}
	return decodeEnvelopeBody(body)
}

func decodeEnvelopeBody(body []byte) (*Envelope, error) {
	r := bytes.NewReader(body)
	env := &Envelope{}

	var err error
	if env.ProtocolVersion, err = readUint32(r); err != nil {
		return nil, newCodecError("protocol_version: %v", err)
	}
	if env.SessionID, err = readString(r); err != nil {
		return nil, newCodecError("session_id: %v", err)
	}
	if env.Seq, err = readUint64(r); err != nil {
		return nil, newCodecError("seq: %v", err)
	}
	if env.Ack, err = readUint64(r); err != nil {
		return nil, newCodecError("ack: %v", err)
	}
	if env.MonoMs, err = readUint64(r); err != nil {
		return nil, newCodecError("mono_ms: %v", err)
	}
	if env.WallUnixMs, err = readUint64(r); err != nil {
		return nil, newCodecError("wall_unix_ms: %v", err)
	}

	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, newCodecError("payload kind: %v", err)
	}
	payload, err := decodePayload(r, PayloadKind(kindByte))
	if err != nil {
		return nil, err
	}
	env.Payload = payload
	return env, nil
}

// --- primitive helpers -------------------------------------------------

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeFloat64(w io.Writer, v float64) error {
	return writeUint64(w, math.Float64bits(v))
}

func writeFloat32(w io.Writer, v float32) error {
	return writeUint32(w, math.Float32bits(v))
}

func writeBool(w io.Writer, v bool) error {
	var b byte
	if v {
		b = 1
	}
	_, err := w.Write([]byte{b})
	return err
}

func writeString(w io.Writer, s string) error {
	if len(s) > 0xFFFF {
		return newCodecError("string field too long: %d bytes", len(s))
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func writeStringSlice(w io.Writer, ss []string) error {
	if len(ss) > 0xFF {
		return newCodecError("string slice too long: %d", len(ss))
	}
	if _, err := w.Write([]byte{byte(len(ss))}); err != nil {
		return err
	}
	for _, s := range ss {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readFloat64(r io.Reader) (float64, error) {
	v, err := readUint64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func readFloat32(r io.Reader) (float32, error) {
	v, err := readUint32(r)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func readBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func readString(r io.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readStringSlice(r io.Reader) ([]string, error) {
	var nBuf [1]byte
	if _, err := io.ReadFull(r, nBuf[:]); err != nil {
		return nil, err
	}
	out := make([]string, 0, nBuf[0])
	for i := byte(0); i < nBuf[0]; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
