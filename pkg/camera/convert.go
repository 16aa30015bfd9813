package camera

import (
	"fmt"
	"image"
	"image/color"
)

// Convert decodes a raw buffer into an RGBA image rotated for orientation o.
// NV12 is treated as full range (JFIF) Y'CbCr.
func Convert(raw RawBuffer, o Orientation) (*image.RGBA, error) {
	w, h := raw.Width, raw.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	if !o.Valid() {
		o = OrientationLandscapeRight
	}

	dw, dh := w, h
	if o == OrientationPortrait || o == OrientationPortraitUpsideDown {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	base, xstep, ystep := orient(dst.Stride, w, h, o)
	pix := dst.Pix

	switch raw.Format {
	case PixelFormatNV12:
		if err := checkPlanes(raw, 2, []int{w, w + w%2}, []int{h, (h + 1) / 2}); err != nil {
			return nil, err
		}
		yp, uv := raw.Planes[0], raw.Planes[1]
		ys, uvs := raw.Strides[0], raw.Strides[1]
		for y := 0; y < h; y++ {
			yrow := yp[y*ys : y*ys+w]
			uvrow := uv[(y/2)*uvs:]
			i := base + y*ystep
			for x, yy := range yrow {
				c := x &^ 1
				r, g, b := color.YCbCrToRGB(yy, uvrow[c], uvrow[c+1])
				pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, 0xff
				i += xstep
			}
		}
	case PixelFormatBGR24:
		if err := checkPlanes(raw, 1, []int{w * 3}, []int{h}); err != nil {
			return nil, err
		}
		p, s := raw.Planes[0], raw.Strides[0]
		for y := 0; y < h; y++ {
			row := p[y*s : y*s+w*3]
			i := base + y*ystep
			for x := 0; x < len(row); x += 3 {
				pix[i], pix[i+1], pix[i+2], pix[i+3] = row[x+2], row[x+1], row[x], 0xff
				i += xstep
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw.Format)
	}

	return dst, nil
}

// checkPlanes verifies plane count, strides and lengths.
// minStride and rows are per plane.
func checkPlanes(raw RawBuffer, n int, minStride, rows []int) error {
	if len(raw.Planes) < n || len(raw.Strides) < n {
		return fmt.Errorf("%w: %s needs %d planes", ErrShortBuffer, raw.Format, n)
	}
	for i := 0; i < n; i++ {
		s := raw.Strides[i]
		if s < minStride[i] {
			return fmt.Errorf("%w: plane %d stride %d < %d", ErrShortBuffer, i, s, minStride[i])
		}
		need := s*(rows[i]-1) + minStride[i]
		if len(raw.Planes[i]) < need {
			return fmt.Errorf("%w: plane %d has %d bytes, need %d", ErrShortBuffer, i, len(raw.Planes[i]), need)
		}
	}
	return nil
}

// orient returns where source pixel (0, 0) of a w×h buffer lands in a
// destination with the given stride, and the byte steps for +1 in source
// x and in source y.
func orient(stride, w, h int, o Orientation) (base, xstep, ystep int) {
	switch o {
	case OrientationPortrait:
		return (h - 1) * 4, stride, -4
	case OrientationPortraitUpsideDown:
		return (w - 1) * stride, -stride, 4
	case OrientationLandscapeLeft:
		return (h-1)*stride + (w-1)*4, -4, -stride
	default:
		return 0, 4, stride
	}
}

// EncodeNV12 converts an RGBA image to a full range NV12 raw buffer.
// Chroma is taken from the top-left pixel of each 2×2 block.
func EncodeNV12(img *image.RGBA) RawBuffer {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	uvs := w + w%2
	yp := make([]byte, w*h)
	uv := make([]byte, uvs*((h+1)/2))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			yy, cb, cr := color.RGBToYCbCr(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
			yp[y*w+x] = yy
			if y%2 == 0 && x%2 == 0 {
				j := (y/2)*uvs + x
				uv[j] = cb
				uv[j+1] = cr
			}
		}
	}

	return RawBuffer{
		Width:   w,
		Height:  h,
		Format:  PixelFormatNV12,
		Planes:  [][]byte{yp, uv},
		Strides: []int{w, uvs},
	}
}

// PackNV12 builds a full range NV12 buffer from interleaved Y, Cr, Cb
// samples (OpenCV's YCrCb layout) with the given row stride. Chroma is the
// mean of each 2×2 block.
func PackNV12(ycrcb []byte, w, h, stride int) RawBuffer {
	uvs := w + w%2
	yp := make([]byte, w*h)
	uv := make([]byte, uvs*((h+1)/2))

	for y := 0; y < h; y++ {
		row := ycrcb[y*stride : y*stride+w*3]
		out := yp[y*w : y*w+w]
		for x := range out {
			out[x] = row[x*3]
		}
	}

	for by := 0; by < h; by += 2 {
		rows := 1
		if by+1 < h {
			rows = 2
		}
		dst := uv[(by/2)*uvs:]
		for bx := 0; bx < w; bx += 2 {
			cols := 1
			if bx+1 < w {
				cols = 2
			}
			var cr, cb, n int
			for dy := 0; dy < rows; dy++ {
				row := ycrcb[(by+dy)*stride:]
				for dx := 0; dx < cols; dx++ {
					i := (bx + dx) * 3
					cr += int(row[i+1])
					cb += int(row[i+2])
					n++
				}
			}
			dst[bx] = uint8((cb + n/2) / n)
			dst[bx+1] = uint8((cr + n/2) / n)
		}
	}

	return RawBuffer{
		Width:   w,
		Height:  h,
		Format:  PixelFormatNV12,
		Planes:  [][]byte{yp, uv},
		Strides: []int{w, uvs},
	}
}

// EncodeBGR24 packs BGR bytes with the given stride into a raw buffer.
func EncodeBGR24(data []byte, w, h, stride int) RawBuffer {
	return RawBuffer{
		Width:   w,
		Height:  h,
		Format:  PixelFormatBGR24,
		Planes:  [][]byte{data},
		Strides: []int{stride},
	}
}
