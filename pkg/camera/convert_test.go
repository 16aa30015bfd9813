package camera

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

// quadrants builds a 4x2 image with distinct left and right halves
// so rotations can be told apart.
func quadrants() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			c := color.RGBA{R: 250, A: 0xff}
			if x >= 2 {
				c = color.RGBA{B: 250, A: 0xff}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d > -6 && d < 6
}

func TestConvert_BGR24(t *testing.T) {
	data := []byte{
		10, 20, 30, 40, 50, 60, 0, 0, // row 0 plus 2 bytes padding
		70, 80, 90, 100, 110, 120, 0, 0,
	}
	img, err := Convert(EncodeBGR24(data, 2, 2, 8), OrientationLandscapeRight)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	got := img.RGBAAt(1, 1)
	want := color.RGBA{R: 120, G: 110, B: 100, A: 0xff}
	if got != want {
		t.Errorf("pixel (1,1): got %v, want %v", got, want)
	}
}

func TestConvert_NV12RoundTrip(t *testing.T) {
	src := quadrants()
	img, err := Convert(EncodeNV12(src), OrientationLandscapeRight)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	for _, pt := range []image.Point{{0, 0}, {3, 1}} {
		got, want := img.RGBAAt(pt.X, pt.Y), src.RGBAAt(pt.X, pt.Y)
		if !near(got.R, want.R) || !near(got.G, want.G) || !near(got.B, want.B) {
			t.Errorf("pixel %v: got %v, want about %v", pt, got, want)
		}
	}
}

func TestConvert_Orientation(t *testing.T) {
	tests := []struct {
		name   string
		o      Orientation
		w, h   int
		redAt  image.Point // where source pixel (0,0) lands
		blueAt image.Point // where source pixel (3,0) lands
	}{
		{"landscape right", OrientationLandscapeRight, 4, 2, image.Pt(0, 0), image.Pt(3, 0)},
		{"portrait", OrientationPortrait, 2, 4, image.Pt(1, 0), image.Pt(1, 3)},
		{"portrait upside down", OrientationPortraitUpsideDown, 2, 4, image.Pt(0, 3), image.Pt(0, 0)},
		{"landscape left", OrientationLandscapeLeft, 4, 2, image.Pt(3, 1), image.Pt(0, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := quadrants()
			img, err := Convert(rgbaToBGR24(src), tt.o)
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if b := img.Bounds(); b.Dx() != tt.w || b.Dy() != tt.h {
				t.Fatalf("size: got %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.w, tt.h)
			}
			if c := img.RGBAAt(tt.redAt.X, tt.redAt.Y); c.R != 250 {
				t.Errorf("expected red at %v, got %v", tt.redAt, c)
			}
			if c := img.RGBAAt(tt.blueAt.X, tt.blueAt.Y); c.B != 250 {
				t.Errorf("expected blue at %v, got %v", tt.blueAt, c)
			}
		})
	}
}

func TestConvert_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  RawBuffer
		want error
	}{
		{"zero size", RawBuffer{Format: PixelFormatNV12}, ErrInvalidSize},
		{"unknown format", RawBuffer{Width: 2, Height: 2, Format: "yuyv", Planes: [][]byte{make([]byte, 8)}, Strides: []int{4}}, ErrUnsupportedFormat},
		{"missing chroma plane", RawBuffer{Width: 2, Height: 2, Format: PixelFormatNV12, Planes: [][]byte{make([]byte, 4)}, Strides: []int{2}}, ErrShortBuffer},
		{"short luma plane", RawBuffer{Width: 2, Height: 2, Format: PixelFormatNV12, Planes: [][]byte{make([]byte, 3), make([]byte, 2)}, Strides: []int{2, 2}}, ErrShortBuffer},
		{"stride too small", EncodeBGR24(make([]byte, 12), 2, 2, 4), ErrShortBuffer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Convert(tt.raw, OrientationPortrait)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncodeNV12_OddSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	raw := EncodeNV12(img)
	if raw.Strides[1] != 4 {
		t.Errorf("chroma stride: got %d, want 4", raw.Strides[1])
	}
	if _, err := Convert(raw, OrientationPortrait); err != nil {
		t.Errorf("Convert odd-sized NV12: %v", err)
	}
}

// toYCrCb lays img out the way OpenCV's BGR2YCrCb does.
func toYCrCb(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			yy, cb, cr := color.RGBToYCbCr(c.R, c.G, c.B)
			out = append(out, yy, cr, cb)
		}
	}
	return out
}

func TestPackNV12_RoundTrip(t *testing.T) {
	src := quadrants()
	img, err := Convert(PackNV12(toYCrCb(src), 4, 2, 12), OrientationPortrait)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	// Portrait moves source (0,0) to (1,0) and source (3,1) to (0,3).
	checks := map[image.Point]image.Point{{1, 0}: {0, 0}, {0, 3}: {3, 1}}
	for dst, s := range checks {
		got, want := img.RGBAAt(dst.X, dst.Y), src.RGBAAt(s.X, s.Y)
		if !near(got.R, want.R) || !near(got.G, want.G) || !near(got.B, want.B) {
			t.Errorf("pixel %v: got %v, want about %v", dst, got, want)
		}
	}
}

func TestPackNV12_AveragesChroma(t *testing.T) {
	// 3x3: one full 2x2 block, a 1x2 and a 2x1 edge block, a 1x1 corner.
	w, h := 3, 3
	data := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		data[i*3] = byte(10 * i)
		data[i*3+1] = byte(100 + i) // Cr
		data[i*3+2] = byte(200 - i) // Cb
	}
	raw := PackNV12(data, w, h, w*3)

	if raw.Strides[0] != 3 || raw.Strides[1] != 4 {
		t.Fatalf("strides: got %v", raw.Strides)
	}
	if raw.Planes[0][4] != 40 {
		t.Errorf("luma (1,1): got %d, want 40", raw.Planes[0][4])
	}

	uv := raw.Planes[1]
	// Block (0,0) covers samples 0, 1, 3, 4.
	if uv[0] != 198 || uv[1] != 102 {
		t.Errorf("block (0,0): got Cb=%d Cr=%d, want 198 102", uv[0], uv[1])
	}
	// Block (2,0) covers samples 2 and 5.
	if uv[2] != 197 || uv[3] != 104 {
		t.Errorf("block (2,0): got Cb=%d Cr=%d, want 197 104", uv[2], uv[3])
	}
	// Corner block covers sample 8 only.
	if uv[6] != 192 || uv[7] != 108 {
		t.Errorf("corner block: got Cb=%d Cr=%d, want 192 108", uv[6], uv[7])
	}

	if _, err := Convert(raw, OrientationLandscapeLeft); err != nil {
		t.Errorf("Convert odd size: %v", err)
	}
}
