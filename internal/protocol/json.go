package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedJSON is returned by DecodeJSON when the payload is not valid
// JSON for the target type.
var ErrMalformedJSON = errors.New("protocol: malformed json")

// DecodeJSON unmarshals a message payload into v. Unknown fields are
// ignored; missing optional fields take their Go zero value.
func DecodeJSON(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return nil
}

// EncodeJSON marshals v for use as a message payload.
func EncodeJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
