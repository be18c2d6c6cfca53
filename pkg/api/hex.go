package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// hexBytes is the wire representation of opaque byte fields; the API
// carries them as lowercase hex. Go's []byte marshals to base64 by
// default, so every nonce/hash/token field in a JSON payload uses this
// type instead.
type hexBytes []byte

func (h hexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *hexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex field: %w", err)
	}
	*h = decoded
	return nil
}
