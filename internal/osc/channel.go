package osc

import (
	"context"
	"errors"
)

type Config struct {
	Host       string
	SendPort   int
	ListenPort int
}

// Channel pairs a Client sending to the peer's port with a Server listening
// for the peer's replies on a second port.
type Channel struct {
	client *Client
	server *Server
}

func Open(cfg Config) (*Channel, error) {
	client, err := NewClient(cfg.Host, cfg.SendPort)
	if err != nil {
		return nil, err
	}
	server, err := Listen(cfg.Host, cfg.ListenPort)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Channel{client: client, server: server}, nil
}

func (c *Channel) Send(address string, args ...any) error {
	return c.client.Send(address, args...)
}

func (c *Channel) Register(pattern string, handler Handler) HandlerID {
	return c.server.Register(pattern, handler)
}

func (c *Channel) Unregister(pattern string, id HandlerID) bool {
	return c.server.Unregister(pattern, id)
}

func (c *Channel) AwaitOne(ctx context.Context) error {
	return c.server.AwaitOne(ctx)
}

func (c *Channel) SetRecorder(r Recorder) {
	c.client.SetRecorder(r)
	c.server.SetRecorder(r)
}

func (c *Channel) Client() *Client {
	return c.client
}

func (c *Channel) Server() *Server {
	return c.server
}

func (c *Channel) Stats() map[string]any {
	stats := c.client.Stats()
	for k, v := range c.server.Stats() {
		stats[k] = v
	}
	return stats
}

func (c *Channel) Close() error {
	return errors.Join(c.server.Close(), c.client.Close())
}
