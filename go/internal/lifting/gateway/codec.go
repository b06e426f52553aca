package gateway

import (
	"encoding/json"
	"fmt"
)

// JSONCodec lets Connect carry plain Go structs as JSON bodies.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode json body: %w", err)
	}
	return nil
}
