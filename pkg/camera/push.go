package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG for DecodeConfig
	"sync"
	"time"
)

// PushSource is a Source fed by remote producers (browser over WebSocket,
// WebRTC data channel). It keeps only the most recent frame.
type PushSource struct {
	mu        sync.RWMutex
	active    bool
	facing    Facing
	latest    *Frame
	nextID    uint64
	producers int

	// OnFacing is called when the camera starts so producers can open the
	// matching device.
	OnFacing func(Facing)

	// OnRelease is called when an active source stops.
	OnRelease func()
}

// NewPushSource creates an inactive push source.
func NewPushSource() *PushSource {
	return &PushSource{}
}

// Attach registers a producer. The returned func detaches it. When the
// last producer detaches the buffered frame is dropped, so an active
// source reports ErrFrameUnavailable until a producer returns.
func (p *PushSource) Attach() (detach func()) {
	p.mu.Lock()
	p.producers++
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.producers--
			if p.producers == 0 {
				p.latest = nil
			}
			p.mu.Unlock()
		})
	}
}

// Producers returns the number of attached producers.
func (p *PushSource) Producers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.producers
}

// Start activates the source. It fails with ErrDeviceNotFound while no
// producer is attached.
func (p *PushSource) Start(ctx context.Context, facing Facing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.producers == 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: no frame producer connected", ErrDeviceNotFound)
	}
	p.active = true
	p.facing = facing
	p.latest = nil
	callback := p.OnFacing
	p.mu.Unlock()

	if callback != nil {
		callback(facing)
	}
	return nil
}

// Stop deactivates the source and drops the buffered frame.
func (p *PushSource) Stop() error {
	p.mu.Lock()
	wasActive := p.active
	p.active = false
	p.latest = nil
	callback := p.OnRelease
	p.mu.Unlock()

	if wasActive && callback != nil {
		callback()
	}
	return nil
}

// Active reports whether the source has been started.
func (p *PushSource) Active() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Facing returns the facing mode of the last start.
func (p *PushSource) Facing() Facing {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.facing
}

// Push stores a JPEG frame. Zero dimensions are read from the JPEG header.
// Frames pushed while inactive are rejected with ErrNotActive.
func (p *PushSource) Push(data []byte, width, height int) (*Frame, error) {
	if width <= 0 || height <= 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFrameUnavailable, err)
		}
		width, height = cfg.Width, cfg.Height
	}
	if width <= 0 || height <= 0 {
		return nil, ErrFrameUnavailable
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return nil, ErrNotActive
	}
	p.nextID++
	f := &Frame{
		ID:         p.nextID,
		Width:      width,
		Height:     height,
		JPEG:       data,
		CapturedAt: time.Now(),
	}
	p.latest = f
	return f, nil
}

// CaptureFrame returns the most recent frame.
func (p *PushSource) CaptureFrame() (*Frame, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.active {
		return nil, ErrNotActive
	}
	if p.latest == nil {
		return nil, ErrFrameUnavailable
	}
	return p.latest, nil
}
