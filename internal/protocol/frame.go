// ABOUTME: Frame is an outbound message encoded once and shared by every recipient
// ABOUTME: Audience decides whether standard sessions may receive it

package protocol

import (
	"encoding/json"
	"fmt"
)

// Audience selects which authenticated sessions receive a broadcast.
type Audience int

const (
	// All delivers to every authenticated session.
	All Audience = iota
	// PrivilegedOnly delivers only to sessions of privileged users.
	PrivilegedOnly
)

func (a Audience) String() string {
	switch a {
	case All:
		return "all"
	case PrivilegedOnly:
		return "privileged"
	default:
		return fmt.Sprintf("Audience(%d)", int(a))
	}
}

// Allows reports whether a session with the given privilege may receive
// frames for this audience.
func (a Audience) Allows(privileged bool) bool {
	return a == All || privileged
}

// Message is any outbound document. Kind must match the encoded "type" field.
type Message interface {
	Kind() Kind
}

// Frame is an immutable, already-encoded outbound message.
type Frame struct {
	kind     Kind
	audience Audience
	data     []byte
}

// Encode serializes msg into a Frame.
func Encode(audience Audience, msg Message) (Frame, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding %s: %w", msg.Kind(), err)
	}
	return Frame{kind: msg.Kind(), audience: audience, data: data}, nil
}

// MustEncode is Encode for messages built from plain data, where encoding
// cannot fail. It panics on error.
func MustEncode(audience Audience, msg Message) Frame {
	f, err := Encode(audience, msg)
	if err != nil {
		panic(err)
	}
	return f
}

// Kind returns the message kind.
func (f Frame) Kind() Kind { return f.kind }

// Audience returns who may receive the frame.
func (f Frame) Audience() Audience { return f.audience }

// Bytes returns the encoded document. The slice is shared by every
// recipient and must not be modified.
func (f Frame) Bytes() []byte { return f.data }

// IsZero reports whether f was never encoded.
func (f Frame) IsZero() bool { return f.data == nil }

func (f Frame) String() string { return string(f.data) }
