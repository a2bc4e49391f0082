package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNoNewObject is returned when a creation call left the scene unchanged
	ErrNoNewObject = errors.New("no new object after creation call")
	// ErrAmbiguousObject is returned when a creation call produced more than one object
	ErrAmbiguousObject = errors.New("more than one new object after creation call")
)

// NewObject returns the single object present in after but not in before.
// Every creation call must add exactly one object.
func NewObject(before, after []ObjectInfo) (Handle, error) {
	prior := make(map[Handle]bool, len(before))
	for _, obj := range before {
		prior[obj.Name] = true
	}

	var added []Handle
	for _, obj := range after {
		if !prior[obj.Name] {
			added = append(added, obj.Name)
		}
	}

	switch len(added) {
	case 1:
		return added[0], nil
	case 0:
		return "", ErrNoNewObject
	default:
		names := make([]string, len(added))
		for i, h := range added {
			names[i] = string(h)
		}
		sort.Strings(names)
		return "", fmt.Errorf("%w: %s", ErrAmbiguousObject, strings.Join(names, ", "))
	}
}

// Create runs a creation call and returns the handle of the object it added
func Create(ctx context.Context, s Session, create func() error) (Handle, error) {
	before, err := s.Objects(ctx)
	if err != nil {
		return "", err
	}
	if err := create(); err != nil {
		return "", err
	}
	after, err := s.Objects(ctx)
	if err != nil {
		return "", err
	}
	return NewObject(before, after)
}
