package service

import (
	"encoding/json"
	"fmt"
)

// jsonCodec lets connect carry plain Go structs, connect's own json codec only
// accepts protobuf messages.
type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(message any) ([]byte, error) {
	out, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", message, err)
	}
	return out, nil
}

func (jsonCodec) Unmarshal(data []byte, message any) error {
	err := json.Unmarshal(data, message)
	if err != nil {
		return fmt.Errorf("unmarshal %T: %w", message, err)
	}
	return nil
}
