package framesource

import (
	"io"
	"math"
	"time"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/types"
)

// SyntheticConfig describes a generated video. Length 0 makes a live source
// that never ends; otherwise the source behaves like a file of Length frames.
type SyntheticConfig struct {
	Width  int
	Height int
	FPS    float64
	Length int
}

type syntheticCapture struct {
	cfg      SyntheticConfig
	interval time.Duration
	pos      int
	seq      uint64
	closed   bool
}

func NewSynthetic(cfg SyntheticConfig) Capture {
	if cfg.Width < 1 {
		cfg.Width = 160
	}
	if cfg.Height < 1 {
		cfg.Height = 120
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	return &syntheticCapture{
		cfg:      cfg,
		interval: time.Duration(float64(time.Second) / cfg.FPS),
	}
}

func (c *syntheticCapture) Read() (*types.Frame, error) {
	if c.closed {
		return nil, ErrReadFailed
	}
	if c.cfg.Length > 0 && c.pos >= c.cfg.Length {
		return nil, io.EOF
	}
	if c.cfg.Length == 0 {
		time.Sleep(c.interval)
	}

	w, h := c.cfg.Width, c.cfg.Height
	data := make([]byte, w*h*3)
	phase := float64(c.pos) / 10
	cx := float64(w) / 2 * (1 + 0.5*math.Cos(phase))
	cy := float64(h) / 2 * (1 + 0.5*math.Sin(phase))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			v := 255 * math.Exp(-(dx*dx+dy*dy)/float64(w*h/20))
			i := (y*w + x) * 3
			data[i] = byte(v)
			data[i+1] = byte(v * 0.7)
			data[i+2] = byte(c.pos)
		}
	}

	c.seq++
	frame := &types.Frame{
		Seq:       c.seq,
		Timestamp: time.Now(),
		Width:     w,
		Height:    h,
		Channels:  3,
		Data:      data,
	}
	c.pos++
	return frame, nil
}

func (c *syntheticCapture) Rewind() error {
	c.pos = 0
	return nil
}

func (c *syntheticCapture) Live() bool {
	return c.cfg.Length == 0
}

func (c *syntheticCapture) FrameInterval() time.Duration {
	if c.Live() {
		return 0
	}
	return c.interval
}

func (c *syntheticCapture) Close() error {
	c.closed = true
	return nil
}
