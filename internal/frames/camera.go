package frames

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"

	"github.com/bdougie/motionctrl/internal/keyframes"
)

// CameraRenderer draws a top-down view of a camera path on a transparent square
type CameraRenderer struct {
	Size    int     // output side in pixels
	Margin  float64 // border kept free of geometry, in pixels
	Frustum float64 // frustum depth relative to the path extent

	Path    color.Color
	Camera  color.Color
	Current color.Color
}

// NewCameraRenderer returns a renderer with the default 256 pixel canvas
func NewCameraRenderer() *CameraRenderer {
	return &CameraRenderer{
		Size:    256,
		Margin:  24,
		Frustum: 0.12,
		Path:    color.NRGBA{R: 200, G: 200, B: 200, A: 200},
		Camera:  color.NRGBA{R: 80, G: 160, B: 255, A: 180},
		Current: color.NRGBA{R: 255, G: 0, B: 0, A: 255},
	}
}

type vec2 struct{ X, Z float64 }

// projected is one pose reduced to the x/z plane
type projected struct {
	center  vec2
	forward vec2
	right   vec2
}

// Render draws every pose of the path and highlights poses[current].
// Poses are world-to-camera extrinsics; the camera centre is -R^T t.
func (r *CameraRenderer) Render(poses keyframes.Poses, current int) *image.RGBA {
	dc := gg.NewContext(r.Size, r.Size)
	if len(poses) == 0 {
		return dc.Image().(*image.RGBA)
	}

	proj := make([]projected, len(poses))
	for i, p := range poses {
		proj[i] = project(p)
	}

	minX, maxX, minZ, maxZ := math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)
	for _, p := range proj {
		minX, maxX = math.Min(minX, p.center.X), math.Max(maxX, p.center.X)
		minZ, maxZ = math.Min(minZ, p.center.Z), math.Max(maxZ, p.center.Z)
	}
	extent := math.Max(maxX-minX, maxZ-minZ)
	if extent < 1e-6 {
		extent = 1
	}
	depth := extent * r.Frustum
	// leave room for frusta sticking out of the path bounds
	span := extent + 2*depth
	scale := (float64(r.Size) - 2*r.Margin) / span
	midX, midZ := (minX+maxX)/2, (minZ+maxZ)/2
	toCanvas := func(v vec2) (float64, float64) {
		return float64(r.Size)/2 + (v.X-midX)*scale, float64(r.Size)/2 - (v.Z-midZ)*scale
	}

	dc.SetColor(r.Path)
	dc.SetLineWidth(2)
	for i, p := range proj {
		x, y := toCanvas(p.center)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.Stroke()

	for i, p := range proj {
		if i == current {
			continue
		}
		r.drawFrustum(dc, p, depth, toCanvas, r.Camera, 1)
	}
	if current >= 0 && current < len(proj) {
		r.drawFrustum(dc, proj[current], depth, toCanvas, r.Current, 2.5)
	}
	return dc.Image().(*image.RGBA)
}

func (r *CameraRenderer) drawFrustum(dc *gg.Context, p projected, depth float64, toCanvas func(vec2) (float64, float64), c color.Color, width float64) {
	ax, ay := toCanvas(p.center)
	half := depth / 2
	left := vec2{
		X: p.center.X + depth*p.forward.X - half*p.right.X,
		Z: p.center.Z + depth*p.forward.Z - half*p.right.Z,
	}
	right := vec2{
		X: p.center.X + depth*p.forward.X + half*p.right.X,
		Z: p.center.Z + depth*p.forward.Z + half*p.right.Z,
	}
	lx, ly := toCanvas(left)
	rx, ry := toCanvas(right)

	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.MoveTo(ax, ay)
	dc.LineTo(lx, ly)
	dc.LineTo(rx, ry)
	dc.ClosePath()
	dc.Stroke()
	dc.DrawCircle(ax, ay, width+1)
	dc.Fill()
}

// project returns the camera centre and its viewing axes in the x/z plane
func project(p keyframes.Pose) projected {
	t := p.Translation()
	var center [3]float64
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			center[c] -= p[r][c] * t[r]
		}
	}
	// rows of R are the camera axes in world coordinates
	forward := normalize(vec2{X: p[2][0], Z: p[2][2]})
	right := normalize(vec2{X: p[0][0], Z: p[0][2]})
	return projected{
		center:  vec2{X: center[0], Z: center[2]},
		forward: forward,
		right:   right,
	}
}

func normalize(v vec2) vec2 {
	n := math.Hypot(v.X, v.Z)
	if n < 1e-9 {
		return vec2{X: 0, Z: 1}
	}
	return vec2{X: v.X / n, Z: v.Z / n}
}
