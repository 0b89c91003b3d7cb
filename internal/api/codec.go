package api

import (
	"encoding/json"
	"fmt"
)

// jsonCodec serializes plain Go structs for Connect. Registering it under
// the "json" name replaces the protobuf-backed default, which lets the
// handlers exchange ordinary structs with any Connect or plain-HTTP client
// speaking application/json.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(message any) ([]byte, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("json codec: %w", err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, message any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, message); err != nil {
		return fmt.Errorf("json codec: %w", err)
	}
	return nil
}
