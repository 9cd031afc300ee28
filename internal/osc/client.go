// Package osc sends and receives addressed OSC messages over UDP.
package osc

import (
	"encoding/json"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"
)

// Recorder receives a copy of every message passing through a client or
// server. Direction is "out" or "in".
type Recorder interface {
	RecordMessage(direction string, address string, args []any) error
}

// Client sends messages to one peer. Sends are fire-and-forget: there is no
// delivery confirmation and no retry.
type Client struct {
	conn     *net.UDPConn
	peer     *net.UDPAddr
	recorder atomic.Pointer[recorderBox]

	sent   atomic.Uint64
	bytes  atomic.Uint64
	errors atomic.Uint64
}

type recorderBox struct {
	r Recorder
}

func NewClient(host string, port int) (*Client, error) {
	peer, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve peer: %w", err)
	}
	// Unconnected so ICMP port-unreachable from an absent listener does not
	// surface as write errors.
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("open client socket: %w", err)
	}
	return &Client{conn: conn, peer: peer}, nil
}

func (c *Client) SetRecorder(r Recorder) {
	if r == nil {
		c.recorder.Store(nil)
		return
	}
	c.recorder.Store(&recorderBox{r: r})
}

// Send encodes one message and writes it as a single datagram.
func (c *Client) Send(address string, args ...any) error {
	msg, flat, err := buildMessage(address, args)
	if err != nil {
		c.errors.Add(1)
		return err
	}
	data, err := msg.MarshalBinary()
	if err != nil {
		c.errors.Add(1)
		return fmt.Errorf("encode %s: %w", address, err)
	}
	n, err := c.conn.WriteToUDP(data, c.peer)
	if err != nil {
		c.errors.Add(1)
		return fmt.Errorf("send %s: %w", address, err)
	}
	c.sent.Add(1)
	c.bytes.Add(uint64(n))
	if box := c.recorder.Load(); box != nil {
		_ = box.r.RecordMessage("out", address, flat)
	}
	return nil
}

func (c *Client) Peer() *net.UDPAddr {
	return c.peer
}

func (c *Client) Stats() map[string]any {
	return map[string]any{
		"osc_sent_total":       c.sent.Load(),
		"osc_sent_bytes_total": c.bytes.Load(),
		"osc_send_err_total":   c.errors.Load(),
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func buildMessage(address string, args []any) (*osc.Message, []any, error) {
	if address == "" || address[0] != '/' {
		return nil, nil, fmt.Errorf("invalid OSC address %q", address)
	}
	msg := osc.NewMessage(address)
	flat := make([]any, 0, len(args))
	for _, arg := range args {
		converted, err := convertArg(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", address, err)
		}
		flat = append(flat, converted...)
	}
	msg.Append(flat...)
	return msg, flat, nil
}

// convertArg maps Go values onto OSC argument types. Slices are spread into
// one argument per element; maps and structs travel as JSON strings.
func convertArg(arg any) ([]any, error) {
	switch v := arg.(type) {
	case nil:
		return []any{nil}, nil
	case bool, string, float32, int32, int64, []byte:
		return []any{v}, nil
	case float64:
		return []any{float32(v)}, nil
	case int:
		return []any{int32(v)}, nil
	case []float64:
		out := make([]any, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out, nil
	case []float32:
		out := make([]any, len(v))
		for i, f := range v {
			out[i] = f
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			converted, err := convertArg(item)
			if err != nil {
				return nil, err
			}
			out = append(out, converted...)
		}
		return out, nil
	case json.RawMessage:
		return []any{string(v)}, nil
	}

	kind := reflect.Indirect(reflect.ValueOf(arg)).Kind()
	if kind == reflect.Map || kind == reflect.Struct {
		payload, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("encode structured argument: %w", err)
		}
		return []any{string(payload)}, nil
	}
	return nil, fmt.Errorf("unsupported argument type %T", arg)
}
