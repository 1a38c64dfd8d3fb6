package camera

import (
	"errors"
	"fmt"
)

// Sentinel errors for camera failures. Sources wrap them with detail;
// callers match with errors.Is.
var (
	ErrPermissionDenied = errors.New("camera: permission denied")
	ErrDeviceNotFound   = errors.New("camera: device not found")
	ErrDeviceBusy       = errors.New("camera: device busy")
	ErrUnsupported      = errors.New("camera: unsupported environment")
	ErrFrameUnavailable = errors.New("camera: frame unavailable")
	ErrNotActive        = errors.New("camera: not active")
)

// Error codes reported by remote producers (see ErrorFromCode).
const (
	CodePermissionDenied = "permission_denied"
	CodeDeviceNotFound   = "not_found"
	CodeDeviceBusy       = "busy"
	CodeUnsupported      = "unsupported"
)

// ErrorFromCode maps a producer error code to a sentinel error.
// Unknown codes become a generic start failure carrying the code.
func ErrorFromCode(code, detail string) error {
	var base error
	switch code {
	case CodePermissionDenied:
		base = ErrPermissionDenied
	case CodeDeviceNotFound:
		base = ErrDeviceNotFound
	case CodeDeviceBusy:
		base = ErrDeviceBusy
	case CodeUnsupported:
		base = ErrUnsupported
	default:
		return fmt.Errorf("camera: %s: %s", code, detail)
	}
	if detail == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, detail)
}

// Describe returns the message shown to the operator for a camera error.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Please allow camera access to use this feature"
	case errors.Is(err, ErrDeviceNotFound):
		return "No camera device was found"
	case errors.Is(err, ErrDeviceBusy):
		return "The camera is in use by another application"
	case errors.Is(err, ErrUnsupported):
		return "Camera capture is not supported here; use a modern browser over HTTPS"
	case errors.Is(err, ErrFrameUnavailable):
		return "Unable to capture a frame, check that the camera is working"
	case errors.Is(err, ErrNotActive):
		return "The camera is not started"
	}
	return fmt.Sprintf("Camera failed to start: %v", err)
}
