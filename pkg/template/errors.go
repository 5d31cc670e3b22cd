// errors.go - Template loading and rendering errors.
package template

import "errors"

var (
	ErrInvalidPreset = errors.New("invalid preset")
	ErrNilNode       = errors.New("nil node")
	ErrEmptyNode     = errors.New("node has no area")
)
