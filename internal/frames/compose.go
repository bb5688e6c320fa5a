package frames

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/bdougie/motionctrl/internal/keyframes"
	"github.com/bdougie/motionctrl/internal/tensor"
)

const (
	gridPadding = 2
	dotRadius   = 3
	// trajectoryScale maps the 1024 reference space onto a 256 pixel frame
	trajectoryScale = 4
)

var (
	currentDot = color.RGBA{R: 255, A: 255}
	otherDot   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Overlay selects what is drawn on top of the composed frames
type Overlay struct {
	Trajectory     keyframes.Keyframes // per-frame points in the 1024 reference space
	Poses          keyframes.Poses
	DrawTrajectory bool
	DrawCamera     bool
}

// Compositor lays decoded variants out side by side and draws motion overlays
type Compositor struct {
	Camera *CameraRenderer
	// Thumbnail is the side of the camera inset in pixels
	Thumbnail int
	logger    *slog.Logger
}

// NewCompositor creates a compositor with the default camera renderer
func NewCompositor(logger *slog.Logger) *Compositor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{
		Camera:    NewCameraRenderer(),
		Thumbnail: 96,
		logger:    logger,
	}
}

// Compose converts (n, 3, T, H, W) decoded video in [-1, 1] into a (1, T, H', W', 3)
// batch in [0, 1]. Variants share one row: a single variant is used as is, several
// are separated by a 2 pixel border of mid grey.
func (c *Compositor) Compose(decoded *tensor.Tensor, ov Overlay) (*Batch, error) {
	if decoded == nil || decoded.Rank() != 5 || decoded.Shape[1] != 3 {
		var shape []int
		if decoded != nil {
			shape = decoded.Shape
		}
		return nil, fmt.Errorf("decoded video must be (n, 3, T, H, W), got %v", shape)
	}
	video := decoded.Clone().Clamp(-1, 1)
	n, frames, h, w := video.Shape[0], video.Shape[2], video.Shape[3], video.Shape[4]

	pad := 0
	if n > 1 {
		pad = gridPadding
	}
	gridH := h + 2*pad
	gridW := n*(w+pad) + pad

	images := make([]*image.RGBA, frames)
	for t := 0; t < frames; t++ {
		img := gridFrame(video, t, pad, gridW, gridH)
		if ov.DrawTrajectory && len(ov.Trajectory) > 0 {
			drawTrajectory(img, ov.Trajectory, frames, t)
		}
		if ov.DrawCamera && len(ov.Poses) > 0 {
			c.drawCamera(img, ov.Poses, t)
		}
		images[t] = img
	}

	c.logger.Debug("composed frames",
		"variants", n,
		"frames", frames,
		"size", fmt.Sprintf("%dx%d", gridW, gridH))
	return stackFrames(images)
}

// gridFrame quantizes frame t of every variant into one image with truncation
func gridFrame(video *tensor.Tensor, t, pad, gridW, gridH int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, gridW, gridH))
	if pad > 0 {
		grey := quantize(0)
		draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: grey, G: grey, B: grey, A: 255}}, image.Point{}, draw.Src)
	}
	n, h, w := video.Shape[0], video.Shape[3], video.Shape[4]
	for v := 0; v < n; v++ {
		ox := pad + v*(w+pad)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetRGBA(ox+x, pad+y, color.RGBA{
					R: quantize(video.At(v, 0, t, y, x)),
					G: quantize(video.At(v, 1, t, y, x)),
					B: quantize(video.At(v, 2, t, y, x)),
					A: 255,
				})
			}
		}
	}
	return img
}

// quantize maps [-1, 1] to [0, 255], truncating
func quantize(v float32) uint8 {
	return uint8((v + 1) / 2 * 255)
}

// drawTrajectory marks every frame's point in frame order; the point of the
// current frame is red, the rest of the trail white
func drawTrajectory(img *image.RGBA, points keyframes.Keyframes, frames, current int) {
	dc := gg.NewContextForRGBA(img)
	for j := 0; j < frames; j++ {
		p := points[len(points)-1]
		if j < len(points) {
			p = points[j]
		}
		if len(p) < 2 {
			continue
		}
		if j == current {
			dc.SetColor(currentDot)
		} else {
			dc.SetColor(otherDot)
		}
		dc.DrawCircle(p[0]/trajectoryScale, p[1]/trajectoryScale, dotRadius)
		dc.Fill()
	}
}

// drawCamera scales the rendered camera path into the top-left corner
func (c *Compositor) drawCamera(img *image.RGBA, poses keyframes.Poses, current int) {
	inset := c.Camera.Render(poses, current)
	side := min(c.Thumbnail, img.Bounds().Dx(), img.Bounds().Dy())
	if side <= 0 {
		return
	}
	draw.CatmullRom.Scale(img, image.Rect(0, 0, side, side), inset, inset.Bounds(), draw.Over, nil)
}

func stackFrames(images []*image.RGBA) (*Batch, error) {
	b, err := BatchFromImages(images)
	if err != nil {
		return nil, fmt.Errorf("failed to stack composed frames: %w", err)
	}
	return b, nil
}
