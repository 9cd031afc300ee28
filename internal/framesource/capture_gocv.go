//go:build gocv

package framesource

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/types"
)

const defaultFPS = 30

type videoCapture struct {
	vc       *gocv.VideoCapture
	mat      gocv.Mat
	live     bool
	interval time.Duration
	seq      uint64
}

// OpenVideo opens a camera index ("0"), a stream URL or a video file with
// OpenCV. Camera indexes and URLs are live; files loop.
func OpenVideo(target string) (Capture, error) {
	var device any = target
	live := strings.Contains(target, "://")
	if index, err := strconv.Atoi(target); err == nil {
		device = index
		live = true
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open video %q: %w", target, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("open video %q: device not opened", target)
	}

	c := &videoCapture{
		vc:   vc,
		mat:  gocv.NewMat(),
		live: live,
	}
	if !live {
		fps := int(vc.Get(gocv.VideoCaptureFPS))
		if fps <= 0 {
			fps = defaultFPS
		}
		c.interval = time.Second / time.Duration(fps)
	}
	return c, nil
}

func (c *videoCapture) Read() (*types.Frame, error) {
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		if c.live {
			return nil, ErrReadFailed
		}
		return nil, io.EOF
	}
	c.seq++
	return &types.Frame{
		Seq:       c.seq,
		Timestamp: time.Now(),
		Width:     c.mat.Cols(),
		Height:    c.mat.Rows(),
		Channels:  c.mat.Channels(),
		Data:      c.mat.ToBytes(),
	}, nil
}

func (c *videoCapture) Rewind() error {
	c.vc.Set(gocv.VideoCapturePosFrames, 0)
	return nil
}

func (c *videoCapture) Live() bool {
	return c.live
}

func (c *videoCapture) FrameInterval() time.Duration {
	return c.interval
}

func (c *videoCapture) Close() error {
	_ = c.mat.Close()
	return c.vc.Close()
}
