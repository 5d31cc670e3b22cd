// errors.go - Capture failures tagged with the stage that failed.
package export

import (
	"errors"
	"fmt"
)

var (
	ErrCaptureFailed = errors.New("capture failed")
	ErrNodeNotFound  = errors.New("node not found")
	ErrNoSaver       = errors.New("no saver configured")
)

// Stage names the export step that failed.
type Stage string

const (
	StageRasterize Stage = "rasterize"
	StageEncode    Stage = "encode"
	StageSave      Stage = "save"
)

// CaptureError reports a failed export. It matches ErrCaptureFailed and
// unwraps to the underlying cause.
type CaptureError struct {
	Stage Stage
	Err   error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture failed at %s: %v", e.Stage, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

func (e *CaptureError) Is(target error) bool { return target == ErrCaptureFailed }
