// Package payload extracts the JSON scene document handed to the renderer
// on the command line.
//
// The payload travels as a single argument of the form <key>=<json>. The
// turntable entry point takes a second, space-delimited argument carrying
// is360=<0|1> and steps=<n>.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrArgumentParse is returned when the command line does not carry a usable payload
var ErrArgumentParse = errors.New("argument parse error")

// ArgumentError describes a rejected argument
type ArgumentError struct {
	Arg    string // Offending argument, truncated for display
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Arg == "" {
		return fmt.Sprintf("%v: %s", ErrArgumentParse, e.Reason)
	}
	return fmt.Sprintf("%v: %q: %s", ErrArgumentParse, e.Arg, e.Reason)
}

func (e *ArgumentError) Unwrap() error { return ErrArgumentParse }

// Document is a decoded JSON object
type Document map[string]any

// Payload is the raw key/value pair found on the command line
type Payload struct {
	Key string
	Raw []byte
}

// Extract locates the <key>=<json> argument. Arguments are scanned from
// last to first since launchers append the payload after their own flags.
func Extract(args []string) (Payload, error) {
	var rejected *ArgumentError
	for i := len(args) - 1; i >= 0; i-- {
		key, value, ok := strings.Cut(args[i], "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if !strings.HasPrefix(value, "{") {
			continue
		}
		if !json.Valid([]byte(value)) {
			if rejected == nil {
				rejected = &ArgumentError{Arg: shorten(args[i]), Reason: "value is not valid JSON"}
			}
			continue
		}
		return Payload{Key: key, Raw: []byte(value)}, nil
	}
	if rejected != nil {
		return Payload{}, rejected
	}
	return Payload{}, &ArgumentError{Reason: "no <key>=<json> argument found"}
}

// FromJSON wraps a document fetched from somewhere other than the command line
func FromJSON(key string, raw []byte) Payload {
	return Payload{Key: key, Raw: raw}
}

// Decode parses the payload into a generic document
func (p Payload) Decode() (Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(p.Raw))
	if err := dec.Decode(&doc); err != nil {
		return nil, &ArgumentError{Arg: p.Key, Reason: fmt.Sprintf("decoding JSON: %v", err)}
	}
	if doc == nil {
		return nil, &ArgumentError{Arg: p.Key, Reason: "payload is not a JSON object"}
	}
	return doc, nil
}

func shorten(s string) string {
	const limit = 64
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
