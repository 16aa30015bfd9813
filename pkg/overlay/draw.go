// Package overlay draws pose keypoints over camera frames and hands the
// result to one or more displays.
package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/vector"

	"github.com/teslashibe/go-posecam/pkg/pose"
)

// Magenta is the default marker color.
var Magenta = color.RGBA{R: 0xff, G: 0x00, B: 0xff, A: 0xff}

// MarkerStyle describes the dot drawn at each keypoint.
type MarkerStyle struct {
	Radius int
	Color  color.Color
}

// DefaultMarkerStyle is a filled magenta circle of radius 4.
func DefaultMarkerStyle() MarkerStyle {
	return MarkerStyle{Radius: 4, Color: Magenta}
}

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847498

// circleMask rasterizes a filled circle of radius r centered on pixel
// (r, r) of a (2r+1)-pixel square alpha mask.
func circleMask(r int) *image.Alpha {
	if r < 1 {
		r = 1
	}
	size := 2*r + 1
	c := float32(r) + 0.5
	rad := float32(r)
	k := rad * kappa

	z := vector.NewRasterizer(size, size)
	z.MoveTo(c+rad, c)
	z.CubeTo(c+rad, c+k, c+k, c+rad, c, c+rad)
	z.CubeTo(c-k, c+rad, c-rad, c+k, c-rad, c)
	z.CubeTo(c-rad, c-k, c-k, c-rad, c, c-rad)
	z.CubeTo(c+k, c-rad, c+rad, c-k, c+rad, c)
	z.ClosePath()

	mask := image.NewAlpha(image.Rect(0, 0, size, size))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

// Marker stamps one style onto images. Build it once and reuse it.
type Marker struct {
	style MarkerStyle
	mask  *image.Alpha
	src   *image.Uniform
}

// NewMarker prepares the mask for style.
func NewMarker(style MarkerStyle) *Marker {
	if style.Color == nil {
		style.Color = Magenta
	}
	return &Marker{
		style: style,
		mask:  circleMask(style.Radius),
		src:   image.NewUniform(style.Color),
	}
}

// Style returns the marker style.
func (m *Marker) Style() MarkerStyle {
	return m.style
}

// Stamp draws one marker centered on pixel pt. Markers are clipped at the
// image edge.
func (m *Marker) Stamp(dst draw.Image, pt image.Point) {
	half := m.mask.Bounds().Dx() / 2
	origin := pt.Sub(image.Pt(half, half))
	r := image.Rectangle{Min: origin, Max: origin.Add(m.mask.Bounds().Size())}
	draw.DrawMask(dst, r, m.src, image.Point{}, m.mask, image.Point{}, draw.Over)
}

// Render returns a copy of frame with every keypoint whose confidence is
// above zero marked. With no observations the copy is undecorated.
func (m *Marker) Render(frame image.Image, observations []pose.Observation) *image.RGBA {
	b := frame.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), frame, b.Min, draw.Src)

	w, h := b.Dx(), b.Dy()
	for _, obs := range observations {
		for _, kp := range obs.Visible() {
			m.Stamp(out, pose.ImagePoint(kp.Location, w, h))
		}
	}
	return out
}

// Render marks observations on a copy of frame with the default style.
func Render(frame image.Image, observations []pose.Observation) *image.RGBA {
	return defaultMarker.Render(frame, observations)
}

var defaultMarker = NewMarker(DefaultMarkerStyle())
