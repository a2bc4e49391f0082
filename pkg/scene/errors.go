package scene

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField is returned when a required key is absent or has the wrong type
	ErrMissingField = errors.New("missing field")
	// ErrMalformedTransform is returned when a transform vector is not three numbers
	ErrMalformedTransform = errors.New("malformed transform")
)

// FieldError locates a validation failure inside the payload
type FieldError struct {
	Path   string // JSON path, e.g. sceneList[0].cameras[1].fov
	Err    error  // ErrMissingField or ErrMalformedTransform
	Detail string
}

func (e *FieldError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("scene: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("scene: %s: %v: %s", e.Path, e.Err, e.Detail)
}

func (e *FieldError) Unwrap() error { return e.Err }

func missing(path, detail string) error {
	return &FieldError{Path: path, Err: ErrMissingField, Detail: detail}
}

func malformed(path, detail string) error {
	return &FieldError{Path: path, Err: ErrMalformedTransform, Detail: detail}
}
