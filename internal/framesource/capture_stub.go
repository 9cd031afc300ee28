//go:build !gocv

package framesource

import "errors"

// OpenVideo needs OpenCV; build with -tags gocv to enable it.
func OpenVideo(target string) (Capture, error) {
	return nil, errors.New("video capture not available: rebuild with -tags gocv")
}
