// Package contour finds card-shaped regions with OpenCV and hands each
// crop to a Classifier for attribute recognition.
package contour

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"

	"gocv.io/x/gocv"

	"github.com/lilin454/setcam-bot/pkg/camera"
	"github.com/lilin454/setcam-bot/pkg/setgame"
)

// ErrNoClassifier is returned by Detect when no Classifier is configured.
var ErrNoClassifier = errors.New("contour: no classifier configured")

// Classifier recognizes the attributes of one card crop.
type Classifier interface {
	Classify(ctx context.Context, crop gocv.Mat) (setgame.Card, error)
}

// Config holds region finder configuration
type Config struct {
	BlurSize     int     // Gaussian kernel size (odd)
	MinAreaRatio float64 // Minimum card area as a fraction of the frame
	MinAspect    float64 // Long side / short side lower bound
	MaxAspect    float64 // Long side / short side upper bound
	Epsilon      float64 // Polygon approximation, fraction of perimeter
}

// DefaultConfig returns defaults tuned for cards on a dark table.
func DefaultConfig() Config {
	return Config{
		BlurSize:     5,
		MinAreaRatio: 0.005,
		MinAspect:    1.2,
		MaxAspect:    1.8,
		Epsilon:      0.02,
	}
}

// Detector implements detection.Detector on top of a Classifier.
type Detector struct {
	config     Config
	classifier Classifier
	mu         sync.Mutex // Protects OpenCV calls
}

// New creates a contour detector. classifier may be nil, in which case
// Detect fails with ErrNoClassifier but Regions still works.
func New(cfg Config, classifier Classifier) *Detector {
	return &Detector{config: cfg, classifier: classifier}
}

// Detect finds card regions and classifies each.
func (d *Detector) Detect(ctx context.Context, frame *camera.Frame) ([]setgame.Card, error) {
	if d.classifier == nil {
		return nil, ErrNoClassifier
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(frame.JPEG, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	rects := d.findRegions(img)
	cards := make([]setgame.Card, 0, len(rects))
	for _, r := range rects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		crop := img.Region(r)
		card, err := d.classifier.Classify(ctx, crop)
		crop.Close()
		if err != nil {
			return nil, fmt.Errorf("classify region %v: %w", r, err)
		}
		card.Region = toRegion(r)
		cards = append(cards, card)
	}
	return cards, nil
}

// Regions returns the card-shaped regions in a JPEG image, top to bottom
// then left to right.
func (d *Detector) Regions(jpeg []byte) ([]setgame.Region, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	rects := d.findRegions(img)
	regions := make([]setgame.Region, len(rects))
	for i, r := range rects {
		regions[i] = toRegion(r)
	}
	return regions, nil
}

// Close releases resources
func (d *Detector) Close() error {
	return nil
}

func (d *Detector) findRegions(img gocv.Mat) []image.Rectangle {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	k := d.config.BlurSize
	if k > 0 {
		if k%2 == 0 {
			k++
		}
		gocv.GaussianBlur(gray, &gray, image.Pt(k, k), 0, 0, gocv.BorderDefault)
	}

	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(gray, &bin, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	contours := gocv.FindContours(bin, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	minArea := d.config.MinAreaRatio * float64(img.Cols()*img.Rows())

	var rects []image.Rectangle
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		if gocv.ContourArea(c) < minArea {
			continue
		}

		approx := gocv.ApproxPolyDP(c, d.config.Epsilon*gocv.ArcLength(c, true), true)
		corners := approx.Size()
		approx.Close()
		if corners != 4 {
			continue
		}

		r := gocv.BoundingRect(c)
		if !d.cardAspect(r) {
			continue
		}
		rects = append(rects, r)
	}

	slices.SortFunc(rects, func(a, b image.Rectangle) int {
		if n := cmp.Compare(a.Min.Y, b.Min.Y); n != 0 {
			return n
		}
		return cmp.Compare(a.Min.X, b.Min.X)
	})
	return rects
}

func (d *Detector) cardAspect(r image.Rectangle) bool {
	w, h := float64(r.Dx()), float64(r.Dy())
	if w == 0 || h == 0 {
		return false
	}
	ratio := max(w, h) / min(w, h)
	return ratio >= d.config.MinAspect && ratio <= d.config.MaxAspect
}

func toRegion(r image.Rectangle) setgame.Region {
	return setgame.Region{
		X:      float64(r.Min.X),
		Y:      float64(r.Min.Y),
		Width:  float64(r.Dx()),
		Height: float64(r.Dy()),
	}
}
