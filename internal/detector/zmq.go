package detector

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pebbe/zmq4"
	"golang.org/x/time/rate"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/types"
)

// Remote sends frames to a landmark sidecar over a ZMQ REQ socket and waits
// for the reply. A request that times out leaves REQ in an unusable state, so
// the socket is rebuilt before the next request.
type Remote struct {
	endpoint string
	cfg      Config
	names    []string
	timeout  time.Duration

	socket *zmq4.Socket
	resets rate.Sometimes
}

func NewRemote(endpoint string, cfg Config, names []string, timeout time.Duration) (*Remote, error) {
	if timeout <= 0 {
		timeout = time.Second
	}
	r := &Remote{
		endpoint: endpoint,
		cfg:      cfg,
		names:    append([]string(nil), names...),
		timeout:  timeout,
		resets:   rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	if err := r.connect(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Remote) connect() error {
	socket, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		return err
	}
	if err := socket.SetLinger(0); err != nil {
		_ = socket.Close()
		return err
	}
	if err := socket.SetRcvtimeo(r.timeout); err != nil {
		_ = socket.Close()
		return err
	}
	if err := socket.SetSndtimeo(r.timeout); err != nil {
		_ = socket.Close()
		return err
	}
	if err := socket.Connect(r.endpoint); err != nil {
		_ = socket.Close()
		return fmt.Errorf("connect %s: %w", r.endpoint, err)
	}
	r.socket = socket
	return nil
}

func (r *Remote) reset(cause error) {
	r.resets.Do(func() {
		log.Printf("detector: resetting sidecar connection after %v", cause)
	})
	if r.socket != nil {
		_ = r.socket.Close()
		r.socket = nil
	}
}

func (r *Remote) Detect(ctx context.Context, frame *types.Frame) (types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return types.Detection{}, err
	}
	if r.socket == nil {
		if err := r.connect(); err != nil {
			return types.Detection{}, err
		}
	}

	req, err := encodeRequest(frame, r.cfg)
	if err != nil {
		return types.Detection{}, err
	}
	if _, err := r.socket.SendBytes(req, 0); err != nil {
		r.reset(err)
		return types.Detection{}, fmt.Errorf("send frame: %w", err)
	}

	reply, err := r.socket.RecvBytes(0)
	if err != nil {
		r.reset(err)
		return types.Detection{}, fmt.Errorf("receive landmarks: %w", err)
	}
	return decodeReply(reply, r.names)
}

func (r *Remote) Close() error {
	if r.socket == nil {
		return nil
	}
	err := r.socket.Close()
	r.socket = nil
	return err
}
