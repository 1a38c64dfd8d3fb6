package camera

import (
	"context"
	"sync"
	"time"
)

// Frame is one captured image.
type Frame struct {
	ID         uint64
	Width      int
	Height     int
	JPEG       []byte
	CapturedAt time.Time
}

// Source is a camera that can be started, stopped and sampled.
type Source interface {
	// Start acquires the camera with the given facing mode.
	Start(ctx context.Context, facing Facing) error

	// Stop releases the camera. Stopping an inactive source is a no-op.
	Stop() error

	// Active reports whether the camera is acquired.
	Active() bool

	// CaptureFrame returns the current frame, or ErrFrameUnavailable if the
	// source has nothing with valid dimensions yet.
	CaptureFrame() (*Frame, error)
}

// Controller owns the facing mode and drives a Source.
type Controller struct {
	mu     sync.Mutex
	source Source
	facing Facing
}

// NewController creates a controller starting with the given facing mode.
func NewController(source Source, facing Facing) *Controller {
	if !facing.Valid() {
		facing = FacingEnvironment
	}
	return &Controller{source: source, facing: facing}
}

// Start acquires the camera with the current facing mode.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source.Start(ctx, c.facing)
}

// Stop releases the camera.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source.Stop()
}

// SwitchFacing toggles the facing mode. If the camera is running, the old
// stream is fully released before the new one is acquired.
func (c *Controller) SwitchFacing(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.facing = c.facing.Toggle()
	if !c.source.Active() {
		return nil
	}
	if err := c.source.Stop(); err != nil {
		return err
	}
	return c.source.Start(ctx, c.facing)
}

// SetFacing sets the facing mode used on the next start.
func (c *Controller) SetFacing(f Facing) {
	if !f.Valid() {
		return
	}
	c.mu.Lock()
	c.facing = f
	c.mu.Unlock()
}

// Facing returns the current facing mode.
func (c *Controller) Facing() Facing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facing
}

// Active reports whether the camera is running.
func (c *Controller) Active() bool {
	return c.source.Active()
}

// CaptureFrame returns the current frame of a running camera.
func (c *Controller) CaptureFrame() (*Frame, error) {
	if !c.source.Active() {
		return nil, ErrNotActive
	}
	return c.source.CaptureFrame()
}
