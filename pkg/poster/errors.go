// errors.go - Rejection and validation errors.
package poster

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrUnsupportedType   = errors.New("unsupported image type")
	ErrTooLarge          = errors.New("image too large")
	ErrSuperseded        = errors.New("ingestion superseded by a newer file")
	ErrValidationMissing = errors.New("required field missing")
	ErrValidationRange   = errors.New("field out of range")
	ErrInvalidValue      = errors.New("invalid field value")
	ErrInvalidDataURI    = errors.New("invalid data URI")
)

// RejectionReason says why an avatar file was refused.
type RejectionReason int

// Rejection reasons.
const (
	UnsupportedType RejectionReason = iota + 1
	TooLarge
)

func (r RejectionReason) String() string {
	switch r {
	case UnsupportedType:
		return "unsupported_type"
	case TooLarge:
		return "too_large"
	}
	return "unknown"
}

// RejectionError is returned when an avatar file fails validation.
type RejectionError struct {
	Reason RejectionReason
	Name   string
	Type   string
	Size   int64
}

func (e *RejectionError) Error() string {
	switch e.Reason {
	case UnsupportedType:
		return fmt.Sprintf("%s: %q has type %q", ErrUnsupportedType, e.Name, e.Type)
	case TooLarge:
		return fmt.Sprintf("%s: %q is %d bytes", ErrTooLarge, e.Name, e.Size)
	}
	return "avatar rejected"
}

// Is matches ErrUnsupportedType and ErrTooLarge.
func (e *RejectionError) Is(target error) bool {
	switch e.Reason {
	case UnsupportedType:
		return target == ErrUnsupportedType
	case TooLarge:
		return target == ErrTooLarge
	}
	return false
}

// Message is the text shown to the user.
func (e *RejectionError) Message() string {
	switch e.Reason {
	case UnsupportedType:
		return "只能上传 JPG/PNG 类型的图片"
	case TooLarge:
		return "图片不能超过 2MB"
	}
	return "图片无法使用"
}

// Rejections unpacks every RejectionError carried by err.
func Rejections(err error) []*RejectionError {
	var out []*RejectionError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if re, ok := e.(*RejectionError); ok {
			out = append(out, re)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

// FieldProblem is one failed check on one field.
type FieldProblem struct {
	Field   Field  `json:"field"`
	Message string `json:"message"`
	Missing bool   `json:"missing"`
}

// ValidationError lists every field that blocks an export.
type ValidationError struct {
	Problems []FieldProblem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = string(p.Field) + ": " + p.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is matches ErrValidationMissing and ErrValidationRange when any problem
// of that kind is present.
func (e *ValidationError) Is(target error) bool {
	for _, p := range e.Problems {
		if p.Missing && target == ErrValidationMissing {
			return true
		}
		if !p.Missing && target == ErrValidationRange {
			return true
		}
	}
	return false
}

// Messages returns the user-facing messages keyed by field.
func (e *ValidationError) Messages() map[Field]string {
	m := make(map[Field]string, len(e.Problems))
	for _, p := range e.Problems {
		m[p.Field] = p.Message
	}
	return m
}
