package internal

import (
	"encoding/json"
	"errors"

	"google.golang.org/protobuf/proto"
)

// ErrNilHolder is returned when Unmarshal is given nowhere to decode into.
var ErrNilHolder = errors.New("unmarshal holder is nil")

// Marshal encodes a result payload for transports that only move bytes.
// Raw bytes and strings pass through untouched, protobuf messages use the
// binary wire format and everything else falls back to json.
func Marshal(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	case proto.Message:
		return proto.Marshal(v)
	default:
		return json.Marshal(payload)
	}
}

// Unmarshal is the inverse of Marshal, holder must be a pointer.
func Unmarshal(data []byte, holder any) error {
	switch v := holder.(type) {
	case nil:
		return ErrNilHolder
	case *[]byte:
		*v = append((*v)[:0], data...)
		return nil
	case *json.RawMessage:
		*v = append((*v)[:0], data...)
		return nil
	case *string:
		*v = string(data)
		return nil
	case proto.Message:
		return proto.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, holder)
	}
}
