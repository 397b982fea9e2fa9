package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeError reports a frame that could not be turned into a message.
// The connection is unaffected; callers log and drop the frame.
type DecodeError struct {
	Frame string // possibly truncated
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame %q: %v", e.Frame, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var (
	errMissingType = errors.New("missing type")
	errNotObject   = errors.New("frame is not a JSON object")
	errMissingID   = errors.New("progress data without id")
)

const maxFrameEcho = 256

// Encode serializes msg as a single JSON object with its type inlined.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("encode: nil message")
	}
	if _, ok := msg.(Unknown); ok {
		return nil, fmt.Errorf("encode: refusing unknown message type %q", msg.MessageType())
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.MessageType(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: %w", msg.MessageType(), errNotObject)
	}
	typ, _ := json.Marshal(string(msg.MessageType()))

	var buf bytes.Buffer
	buf.Grow(len(body) + len(typ) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Decode parses one inbound frame. Unknown types come back as Unknown so
// the router can ignore them; anything unparseable is a *DecodeError.
func Decode(frame []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, newDecodeError(frame, err)
	}
	if envelope.Type == "" {
		return nil, newDecodeError(frame, errMissingType)
	}

	switch MessageType(envelope.Type) {
	case TypeProgress:
		var m Progress
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, newDecodeError(frame, err)
		}
		if m.Data.ID == "" {
			return nil, newDecodeError(frame, errMissingID)
		}
		return m, nil
	case TypeHello:
		var m Hello
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, newDecodeError(frame, err)
		}
		return m, nil
	case TypeDownload:
		var m Download
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, newDecodeError(frame, err)
		}
		return m, nil
	case TypeHeartbeatCookies:
		var m HeartbeatCookies
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, newDecodeError(frame, err)
		}
		return m, nil
	case TypeDebug:
		var m Debug
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, newDecodeError(frame, err)
		}
		return m, nil
	default:
		return Unknown{Type: envelope.Type}, nil
	}
}

func newDecodeError(frame []byte, err error) *DecodeError {
	s := string(frame)
	if len(s) > maxFrameEcho {
		s = s[:maxFrameEcho] + "..."
	}
	return &DecodeError{Frame: s, Err: err}
}
