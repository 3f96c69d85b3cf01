package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Encode renders m as a single JSON text frame with its "type" tag first.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, &EncodingError{Err: errors.New("nil message")}
	}
	if u, ok := m.(Unknown); ok {
		if !json.Valid(u.Raw) {
			return nil, &EncodingError{Type: u.Type, Err: errors.New("raw frame is not valid JSON")}
		}
		return append([]byte(nil), u.Raw...), nil
	}

	body, err := json.Marshal(m)
	if err != nil {
		return nil, &EncodingError{Type: m.MessageType(), Err: err}
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, &EncodingError{Type: m.MessageType(), Err: fmt.Errorf("body is not a JSON object: %s", body)}
	}
	tag, err := json.Marshal(string(m.MessageType()))
	if err != nil {
		return nil, &EncodingError{Type: m.MessageType(), Err: err}
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tag) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if !bytes.Equal(body, []byte("{}")) {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Decode parses one inbound or outbound frame. Frames with an unmodelled
// type decode to Unknown.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &DecodingError{Err: err}
	}
	if head.Type == nil || *head.Type == "" {
		return nil, &DecodingError{Err: errors.New("missing type tag")}
	}

	t := MessageType(*head.Type)
	var msg Message
	var err error
	switch t {
	case TypeMeasurements:
		msg, err = decodeAs[Measurements](data)
	case TypeEvents:
		msg, err = decodeAs[Events](data)
	case TypeCommandUpdate:
		msg, err = decodeAs[CommandUpdate](data)
	case TypeTransmitBlob:
		msg, err = decodeAs[TransmitBlob](data)
	case TypeCommandDefinitionsUpdate:
		msg, err = decodeAs[CommandDefinitionsUpdate](data)
	case TypeFileList:
		msg, err = decodeAs[FileList](data)
	case TypeCommand:
		msg, err = decodeAs[CommandMessage](data)
	case TypeCancel:
		msg, err = decodeAs[Cancel](data)
	case TypeError:
		msg, err = decodeAs[ServerError](data)
	case TypeRateLimit:
		msg, err = decodeAs[RateLimit](data)
	case TypeTransit:
		msg, err = decodeAs[Transit](data)
	case TypeReceivedBlob:
		msg, err = decodeAs[ReceivedBlob](data)
	case TypeHello:
		msg, err = decodeAs[Hello](data)
	default:
		msg = Unknown{Type: t, Raw: append(json.RawMessage(nil), data...)}
	}
	if err != nil {
		return nil, &DecodingError{Type: t, Err: err}
	}
	return msg, nil
}

func decodeAs[T Message](data []byte) (Message, error) {
	var v T
	if err := unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// unmarshal is json.Unmarshal with numbers in untyped values kept as
// json.Number, so integers survive beyond 2^53.
func unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("invalid character after top-level value")
	}
	return nil
}
