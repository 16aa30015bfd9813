package web

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/nfnt/resize"
	"go.uber.org/zap"
)

// preview is the most recent displayed frame with its lazily encoded JPEG.
type preview struct {
	img  image.Image
	at   time.Time
	once sync.Once
	data []byte
	err  error
}

func (p *preview) jpeg(width uint, quality int) ([]byte, error) {
	p.once.Do(func() {
		p.data, p.err = encodeJPEG(p.img, width, quality)
	})
	return p.data, p.err
}

// encodeJPEG downscales img to width (keeping aspect) when it is wider,
// then encodes it.
func encodeJPEG(img image.Image, width uint, quality int) ([]byte, error) {
	if width > 0 && uint(img.Bounds().Dx()) > width {
		img = resize.Resize(width, 0, img, resize.Bilinear)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Show implements overlay.Display. The frame becomes the snapshot and,
// when anyone is watching, is pushed to preview clients.
func (s *Server) Show(img image.Image) {
	p := &preview{img: img, at: time.Now()}
	s.frameMu.Lock()
	s.frame = p
	s.frameMu.Unlock()

	if s.previewHub.ClientCount() == 0 {
		return
	}
	data, err := p.jpeg(s.config.PreviewWidth, s.quality())
	if err != nil {
		s.logger.Warn("preview encode failed", zap.Error(err))
		return
	}
	s.previewHub.BroadcastBinary(data)
}

// quality is the camera config's preview quality when a manager is
// attached, else the server default.
func (s *Server) quality() int {
	if s.manager != nil {
		if q := s.manager.GetConfig().Quality; q > 0 && q <= 100 {
			return q
		}
	}
	return s.config.Quality
}

// Snapshot returns the latest displayed frame as JPEG.
func (s *Server) Snapshot() ([]byte, time.Time, bool) {
	s.frameMu.RLock()
	p := s.frame
	s.frameMu.RUnlock()
	if p == nil {
		return nil, time.Time{}, false
	}
	data, err := p.jpeg(s.config.PreviewWidth, s.quality())
	if err != nil {
		s.logger.Warn("snapshot encode failed", zap.Error(err))
		return nil, time.Time{}, false
	}
	return data, p.at, true
}
