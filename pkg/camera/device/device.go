// Package device captures frames from a local camera through OpenCV.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"sync"
	"syscall"
	"time"

	"gocv.io/x/gocv"

	"github.com/lilin454/setcam-bot/internal/log"
	"github.com/lilin454/setcam-bot/pkg/camera"
)

// Source is a camera.Source backed by gocv.VideoCapture.
type Source struct {
	mu      sync.Mutex // Protects capture
	cfg     camera.Config
	capture *gocv.VideoCapture
	nextID  uint64
}

// New creates an idle device source.
func New(cfg camera.Config) *Source {
	return &Source{cfg: cfg}
}

// ApplyConfig replaces the configuration used on the next start.
// Suitable as a camera.Manager OnConfigChange callback.
func (s *Source) ApplyConfig(cfg camera.Config) error {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// Start opens the device mapped to facing.
func (s *Source) Start(ctx context.Context, facing camera.Facing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture != nil {
		return nil
	}

	idx := s.cfg.DeviceFor(facing)
	if err := probe(idx); err != nil {
		return err
	}

	capture, err := gocv.OpenVideoCapture(idx)
	if err != nil {
		return fmt.Errorf("%w: open device %d: %v", camera.ErrDeviceBusy, idx, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("%w: device %d did not open", camera.ErrDeviceBusy, idx)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(s.cfg.IdealWidth))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(s.cfg.IdealHeight))
	capture.Set(gocv.VideoCaptureFPS, float64(s.cfg.Framerate))

	w := int(capture.Get(gocv.VideoCaptureFrameWidth))
	h := int(capture.Get(gocv.VideoCaptureFrameHeight))
	if w < s.cfg.MinWidth || h < s.cfg.MinHeight {
		capture.Close()
		return fmt.Errorf("%w: device %d offers %dx%d, need at least %dx%d",
			camera.ErrUnsupported, idx, w, h, s.cfg.MinWidth, s.cfg.MinHeight)
	}

	s.capture = capture
	log.Info("camera device opened", "device", idx, "facing", facing, "width", w, "height", h)
	return nil
}

// Stop closes the device.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	s.capture = nil
	return err
}

// Active reports whether a device is open.
func (s *Source) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture != nil
}

// CaptureFrame reads one frame and encodes it as JPEG.
func (s *Source) CaptureFrame() (*camera.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil, camera.ErrNotActive
	}

	img := gocv.NewMat()
	defer img.Close()

	if ok := s.capture.Read(&img); !ok || img.Empty() {
		return nil, camera.ErrFrameUnavailable
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, s.cfg.Quality})
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", camera.ErrFrameUnavailable, err)
	}
	defer buf.Close()

	s.nextID++
	return &camera.Frame{
		ID:         s.nextID,
		Width:      img.Cols(),
		Height:     img.Rows(),
		JPEG:       bytes.Clone(buf.GetBytes()),
		CapturedAt: time.Now(),
	}, nil
}

// probe classifies why a device node cannot be used. Only Linux exposes
// device nodes; elsewhere OpenVideoCapture reports the failure.
func probe(idx int) error {
	if runtime.GOOS != "linux" {
		return nil
	}
	return classify(os.OpenFile(fmt.Sprintf("/dev/video%d", idx), os.O_RDWR, 0))
}

func classify(f *os.File, err error) error {
	if err == nil {
		return f.Close()
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", camera.ErrDeviceNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", camera.ErrPermissionDenied, err)
	case errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%w: %v", camera.ErrDeviceBusy, err)
	}
	return err
}
