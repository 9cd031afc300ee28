package osc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"path"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"golang.org/x/time/rate"
)

var ErrClosed = errors.New("osc server closed")

const maxDatagram = 65535

type Message struct {
	Address string
	Args    []any
	From    net.Addr
}

type Handler func(Message)

type HandlerID uint64

type registration struct {
	id      HandlerID
	pattern string
	handler Handler
}

// Server receives datagrams on one port and dispatches them to handlers
// registered for matching address patterns. It only receives when AwaitOne is
// called; there is no background read loop.
type Server struct {
	conn net.PacketConn

	mu       sync.Mutex
	handlers []registration
	nextID   HandlerID

	recvMu   sync.Mutex
	buf      []byte
	closed   atomic.Bool
	recorder atomic.Pointer[recorderBox]

	received  atomic.Uint64
	discarded atomic.Uint64
	malformed rate.Sometimes
}

func Listen(host string, port int) (*Server, error) {
	conn, err := net.ListenPacket("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("listen udp %s:%d: %w", host, port, err)
	}
	return &Server{
		conn:      conn,
		buf:       make([]byte, maxDatagram),
		malformed: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}, nil
}

func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Server) SetRecorder(r Recorder) {
	if r == nil {
		s.recorder.Store(nil)
		return
	}
	s.recorder.Store(&recorderBox{r: r})
}

// Register adds handler for pattern. Patterns are exact addresses or
// path.Match globs such as "/left_hand/*/xyz".
func (s *Server) Register(pattern string, handler Handler) HandlerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.handlers = append(s.handlers, registration{id: s.nextID, pattern: pattern, handler: handler})
	return s.nextID
}

// Unregister removes the handler registered under id for pattern. It reports
// whether a handler was removed.
func (s *Server) Unregister(pattern string, id HandlerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, reg := range s.handlers {
		if reg.id == id && reg.pattern == pattern {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Server) matching(address string) []Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Handler
	for _, reg := range s.handlers {
		if matchAddress(reg.pattern, address) {
			out = append(out, reg.handler)
		}
	}
	return out
}

// AnyAddress registers a handler for every incoming message.
const AnyAddress = "*"

func matchAddress(pattern, address string) bool {
	if pattern == address || pattern == AnyAddress {
		return true
	}
	ok, err := path.Match(pattern, address)
	return err == nil && ok
}

// AwaitOne blocks until one datagram carrying a message that matches a
// registered pattern has been received and dispatched. Datagrams nobody is
// registered for are discarded. The wait ends early when ctx is done.
//
// AwaitOne is for one-shot exchanges such as the handshake, not for
// steady-state streaming.
func (s *Server) AwaitOne(ctx context.Context) error {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return err
		}
	} else {
		_ = s.conn.SetReadDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		n, from, err := s.conn.ReadFrom(s.buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.closed.Load() {
				return ErrClosed
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return context.DeadlineExceeded
			}
			return fmt.Errorf("receive: %w", err)
		}
		s.received.Add(1)

		messages, err := decodeDatagram(s.buf[:n])
		if err != nil {
			s.discarded.Add(1)
			s.malformed.Do(func() {
				log.Printf("osc: discarding malformed datagram from %v: %v", from, err)
			})
			continue
		}

		dispatched := false
		for _, msg := range messages {
			handlers := s.matching(msg.Address)
			if len(handlers) == 0 {
				continue
			}
			msg.From = from
			if box := s.recorder.Load(); box != nil {
				_ = box.r.RecordMessage("in", msg.Address, msg.Args)
			}
			for _, h := range handlers {
				h(msg)
			}
			dispatched = true
		}
		if dispatched {
			return nil
		}
		s.discarded.Add(1)
	}
}

func decodeDatagram(data []byte) ([]Message, error) {
	packet, err := osc.ParsePacket(string(data))
	if err != nil {
		return nil, err
	}
	var out []Message
	flatten(packet, &out)
	return out, nil
}

func flatten(packet osc.Packet, out *[]Message) {
	switch p := packet.(type) {
	case *osc.Message:
		*out = append(*out, Message{Address: p.Address, Args: append([]any(nil), p.Arguments...)})
	case *osc.Bundle:
		for _, m := range p.Messages {
			flatten(m, out)
		}
		for _, b := range p.Bundles {
			flatten(b, out)
		}
	}
}

func (s *Server) Stats() map[string]any {
	return map[string]any{
		"osc_received_total":  s.received.Load(),
		"osc_discarded_total": s.discarded.Load(),
	}
}

func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close()
}
