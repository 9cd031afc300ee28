// Package handshake verifies that the OSC peer is alive and speaks the
// expected /connect schema before any telemetry is streamed to it.
//
// The exchange is: register a handler on the connect address, send a probe
// carrying {"connected": false}, wait for exactly one reply, validate it and
// unregister the handler. The peer confirms by answering {"connected": true};
// it may instead report its own problems in an "errors" field.
package handshake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/osc"
)

const (
	DefaultAddress = "/connect"
	DefaultTimeout = 5 * time.Second
)

type State int

const (
	Idle State = iota
	AwaitingAck
	Confirmed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingAck:
		return "awaiting_ack"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Channel is the part of osc.Channel the handshake needs.
type Channel interface {
	Send(address string, args ...any) error
	Register(pattern string, handler osc.Handler) osc.HandlerID
	Unregister(pattern string, id osc.HandlerID) bool
	AwaitOne(ctx context.Context) error
}

type Config struct {
	Address string
	// PeerPort is only used in diagnostics.
	PeerPort int
	Timeout  time.Duration
}

func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

type Result struct {
	State State
	// Errors are schema violations and transport failures found locally.
	Errors []string
	// PeerErrors are reported by the peer itself, verbatim.
	PeerErrors []string
}

// Err returns nil for a confirmed handshake and every collected error
// otherwise.
func (r Result) Err() error {
	if r.State == Confirmed {
		return nil
	}
	errs := make([]error, 0, len(r.Errors)+len(r.PeerErrors))
	for _, e := range r.PeerErrors {
		errs = append(errs, fmt.Errorf("peer: %s", e))
	}
	for _, e := range r.Errors {
		errs = append(errs, errors.New(e))
	}
	if len(errs) == 0 {
		return fmt.Errorf("handshake %s", r.State)
	}
	return errors.Join(errs...)
}

// Run performs the handshake. It never exits the process; callers decide
// what a failed Result means.
func Run(ctx context.Context, ch Channel, cfg Config) Result {
	cfg.SetDefaults()

	var reply *osc.Message
	id := ch.Register(cfg.Address, func(msg osc.Message) {
		if reply == nil {
			m := msg
			reply = &m
		}
	})
	defer ch.Unregister(cfg.Address, id)

	if err := ch.Send(cfg.Address, map[string]any{"connected": false}); err != nil {
		return Result{State: Failed, Errors: []string{fmt.Sprintf("send probe: %v", err)}}
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := ch.AwaitOne(waitCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Result{State: Failed, Errors: []string{fmt.Sprintf("no reply from peer within %s", cfg.Timeout)}}
		}
		return Result{State: Failed, Errors: []string{fmt.Sprintf("await reply: %v", err)}}
	}
	if reply == nil {
		return Result{State: Failed, Errors: []string{"no reply dispatched"}}
	}

	return Validate(cfg, reply.Address, reply.Args)
}

var objectPattern = regexp.MustCompile(`\{([^}]+)\}`)

// Validate checks one reply against the /connect schema. Every violation is
// collected; validation never stops at the first one.
func Validate(cfg Config, address string, args []any) Result {
	cfg.SetDefaults()
	res := Result{State: AwaitingAck}

	if address != cfg.Address {
		res.Errors = append(res.Errors, fmt.Sprintf("address pattern must be %s, got %s", cfg.Address, address))
	}

	switch {
	case len(args) == 0:
		res.Errors = append(res.Errors, "argument must not be empty")
	case len(args) > 1:
		res.Errors = append(res.Errors, fmt.Sprintf("argument count must be exactly 1, got %d", len(args)))
	}

	var text string
	if len(args) > 0 {
		s, ok := args[0].(string)
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("argument must be of type string, got %T", args[0]))
		}
		text = s
	}

	connected := false
	if !objectPattern.MatchString(text) {
		res.Errors = append(res.Errors, "argument must be a structured object")
	} else {
		var payload map[string]any
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("argument must be a structured object: %v", err))
		} else {
			if raw, ok := payload["errors"]; ok {
				res.PeerErrors = append(res.PeerErrors, peerErrors(raw)...)
			}
			value, ok := payload["connected"].(bool)
			if !ok && len(res.PeerErrors) == 0 {
				res.Errors = append(res.Errors, "connected must be of type boolean")
			}
			connected = ok && value
		}
	}

	if !connected && len(res.PeerErrors) == 0 {
		res.Errors = append(res.Errors, fmt.Sprintf("peer did not confirm connection on port %d", cfg.PeerPort))
	}

	if connected && len(res.Errors) == 0 && len(res.PeerErrors) == 0 {
		res.State = Confirmed
	} else {
		res.State = Failed
	}
	return res
}

func peerErrors(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return strings.Split(v, ", ")
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}
