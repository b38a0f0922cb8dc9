// ABOUTME: Parsing of inbound WebSocket documents
// ABOUTME: Anything but an object with string "type" and "token" fields is malformed

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed marks an inbound document that violates the protocol. The
// session that sent it is closed.
var ErrMalformed = errors.New("malformed message")

// Request is an inbound client message.
type Request struct {
	Type  Kind
	Token string
}

// ParseRequest decodes an inbound document. Extra fields are ignored.
func ParseRequest(data []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Request{}, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}
	if fields == nil {
		return Request{}, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}

	typ, err := stringField(fields, "type")
	if err != nil {
		return Request{}, err
	}
	token, err := stringField(fields, "token")
	if err != nil {
		return Request{}, err
	}
	return Request{Type: Kind(typ), Token: token}, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrMalformed, name)
	}
	var s string
	if string(raw) == "null" {
		return "", fmt.Errorf("%w: %q must be a string", ErrMalformed, name)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %q must be a string", ErrMalformed, name)
	}
	return s, nil
}
