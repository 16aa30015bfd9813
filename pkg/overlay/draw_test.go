package overlay

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/teslashibe/go-posecam/pkg/pose"
)

// grayFrame returns a w×h frame filled with one gray level.
func grayFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 0x40, 0x40, 0x40, 0xff
	}
	return img
}

func isMagenta(c color.RGBA) bool {
	return c.R > 0xf0 && c.G < 0x10 && c.B > 0xf0
}

func TestRender_NoObservationsIsUndecorated(t *testing.T) {
	src := grayFrame(64, 48)
	for _, obs := range [][]pose.Observation{nil, {}} {
		out := Render(src, obs)
		if !bytes.Equal(out.Pix, src.Pix) {
			t.Error("output differs from input frame")
		}
		if &out.Pix[0] == &src.Pix[0] {
			t.Error("Render must not alias the input")
		}
	}
}

func TestRender_SkipsZeroConfidence(t *testing.T) {
	src := grayFrame(640, 480)
	obs := pose.NewObservation(
		pose.Keypoint{Joint: pose.JointNose, Location: pose.Point{X: 0.25, Y: 0.25}, Confidence: 0.9},
		pose.Keypoint{Joint: pose.JointNeck, Location: pose.Point{X: 0.5, Y: 0.5}, Confidence: 0.0},
		pose.Keypoint{Joint: pose.JointRoot, Location: pose.Point{X: 0.75, Y: 0.75}, Confidence: 0.5},
	)

	out := Render(src, []pose.Observation{obs})

	if c := out.RGBAAt(160, 120); !isMagenta(c) {
		t.Errorf("expected marker at (160,120), got %v", c)
	}
	if c := out.RGBAAt(480, 360); !isMagenta(c) {
		t.Errorf("expected marker at (480,360), got %v", c)
	}
	if c := out.RGBAAt(320, 240); isMagenta(c) {
		t.Errorf("unexpected marker at (320,240) for zero confidence")
	}

	// Count changed pixels: exactly two radius-4 blobs.
	changed := 0
	for i := 0; i < len(out.Pix); i += 4 {
		if !bytes.Equal(out.Pix[i:i+4], src.Pix[i:i+4]) {
			changed++
		}
	}
	if changed < 2*40 || changed > 2*81 {
		t.Errorf("changed %d pixels, want two radius-4 markers", changed)
	}
}

func TestRender_CenterOfVGA(t *testing.T) {
	src := grayFrame(640, 480)
	obs := pose.NewObservation(pose.Keypoint{Joint: pose.JointNose, Location: pose.Point{X: 0.5, Y: 0.5}, Confidence: 1})
	out := Render(src, []pose.Observation{obs})

	if c := out.RGBAAt(320, 240); !isMagenta(c) {
		t.Errorf("expected marker at (320,240), got %v", c)
	}
	// Radius 4: four pixels away is on the rim, six is outside.
	if c := out.RGBAAt(320, 246); c != src.RGBAAt(320, 246) {
		t.Errorf("marker too large: %v at (320,246)", c)
	}
	if c := out.RGBAAt(323, 240); !isMagenta(c) {
		t.Errorf("marker too small: %v at (323,240)", c)
	}
}

func TestRender_ClipsAtEdges(t *testing.T) {
	src := grayFrame(20, 20)
	obs := pose.NewObservation(
		pose.Keypoint{Joint: pose.JointNose, Location: pose.Point{X: 0, Y: 0}, Confidence: 1},
		pose.Keypoint{Joint: pose.JointLeftAnkle, Location: pose.Point{X: 1, Y: 1}, Confidence: 1},
		pose.Keypoint{Joint: pose.JointRightAnkle, Location: pose.Point{X: 3, Y: -2}, Confidence: 1},
	)
	out := Render(src, []pose.Observation{obs})
	if c := out.RGBAAt(0, 0); !isMagenta(c) {
		t.Errorf("expected marker at corner, got %v", c)
	}
}

func TestRender_MultipleObservations(t *testing.T) {
	src := grayFrame(100, 100)
	a := pose.NewObservation(pose.Keypoint{Joint: pose.JointNose, Location: pose.Point{X: 0.2, Y: 0.2}, Confidence: 0.6})
	b := pose.NewObservation(pose.Keypoint{Joint: pose.JointNose, Location: pose.Point{X: 0.8, Y: 0.8}, Confidence: 0.7})
	out := Render(src, []pose.Observation{a, b})
	if !isMagenta(out.RGBAAt(20, 20)) || !isMagenta(out.RGBAAt(80, 80)) {
		t.Error("expected a marker for each observation")
	}
}

func TestMarker_CustomStyle(t *testing.T) {
	green := color.RGBA{G: 0xff, A: 0xff}
	m := NewMarker(MarkerStyle{Radius: 2, Color: green})
	if got := m.Style().Radius; got != 2 {
		t.Errorf("radius: got %d", got)
	}
	out := m.Render(grayFrame(10, 10), []pose.Observation{
		pose.NewObservation(pose.Keypoint{Joint: pose.JointNose, Location: pose.Point{X: 0.5, Y: 0.5}, Confidence: 1}),
	})
	if c := out.RGBAAt(5, 5); c != green {
		t.Errorf("center: got %v, want %v", c, green)
	}
	if c := out.RGBAAt(5, 9); c == green {
		t.Error("radius 2 marker reached 4 pixels out")
	}
}
