package handshake

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/osc"
)

// fakeChannel answers the probe with a canned reply.
type fakeChannel struct {
	reply      *osc.Message
	sent       []osc.Message
	handlers   map[osc.HandlerID]osc.Handler
	nextID     osc.HandlerID
	unregister int
}

func newFakeChannel(reply *osc.Message) *fakeChannel {
	return &fakeChannel{reply: reply, handlers: map[osc.HandlerID]osc.Handler{}}
}

func (f *fakeChannel) Send(address string, args ...any) error {
	f.sent = append(f.sent, osc.Message{Address: address, Args: args})
	return nil
}

func (f *fakeChannel) Register(_ string, h osc.Handler) osc.HandlerID {
	f.nextID++
	f.handlers[f.nextID] = h
	return f.nextID
}

func (f *fakeChannel) Unregister(_ string, id osc.HandlerID) bool {
	f.unregister++
	_, ok := f.handlers[id]
	delete(f.handlers, id)
	return ok
}

func (f *fakeChannel) AwaitOne(ctx context.Context) error {
	if f.reply == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for _, h := range f.handlers {
		h(*f.reply)
	}
	return nil
}

func reply(args ...any) *osc.Message {
	return &osc.Message{Address: "/connect", Args: args}
}

func TestRunConfirmed(t *testing.T) {
	ch := newFakeChannel(reply(`{"connected": true}`))
	res := Run(context.Background(), ch, Config{PeerPort: 9100})

	assert.Equal(t, Confirmed, res.State)
	assert.Empty(t, res.Errors)
	assert.NoError(t, res.Err())
	assert.Equal(t, 1, ch.unregister)
	assert.Empty(t, ch.handlers)

	require.Len(t, ch.sent, 1)
	assert.Equal(t, "/connect", ch.sent[0].Address)
	assert.Equal(t, map[string]any{"connected": false}, ch.sent[0].Args[0])
}

func TestRunNotConfirmed(t *testing.T) {
	ch := newFakeChannel(reply(`{"connected": false}`))
	res := Run(context.Background(), ch, Config{PeerPort: 9100})

	assert.Equal(t, Failed, res.State)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "port 9100")
	assert.Error(t, res.Err())
	assert.Empty(t, ch.handlers)
}

func TestRunTimeoutUnregisters(t *testing.T) {
	ch := newFakeChannel(nil)
	res := Run(context.Background(), ch, Config{Timeout: 20 * time.Millisecond})

	assert.Equal(t, Failed, res.State)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "no reply from peer")
	assert.Equal(t, 1, ch.unregister)
}

func TestValidateNonJSON(t *testing.T) {
	res := Validate(Config{}, "/connect", []any{"hello"})
	assert.Equal(t, Failed, res.State)
	assert.True(t, containsError(res.Errors, "must be a structured object"), res.Errors)
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	res := Validate(Config{PeerPort: 9100}, "/connect", []any{float32(1.5), "x"})

	assert.Equal(t, Failed, res.State)
	assert.True(t, containsError(res.Errors, "argument count"), res.Errors)
	assert.True(t, containsError(res.Errors, "of type string"), res.Errors)
	assert.True(t, containsError(res.Errors, "must be a structured object"), res.Errors)
	assert.True(t, containsError(res.Errors, "did not confirm"), res.Errors)
}

func TestValidateTwoArgumentsWithValidObject(t *testing.T) {
	res := Validate(Config{}, "/connect", []any{`{"connected": true}`, "extra"})
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, []string{"argument count must be exactly 1, got 2"}, res.Errors)
}

func TestValidateWrongAddress(t *testing.T) {
	res := Validate(Config{}, "/hello", []any{`{"connected": true}`})
	assert.Equal(t, Failed, res.State)
	assert.True(t, containsError(res.Errors, "address pattern must be /connect"), res.Errors)
}

func TestValidateEmptyArguments(t *testing.T) {
	res := Validate(Config{}, "/connect", nil)
	assert.Equal(t, Failed, res.State)
	assert.True(t, containsError(res.Errors, "must not be empty"), res.Errors)
}

func TestValidateConnectedNotBoolean(t *testing.T) {
	res := Validate(Config{}, "/connect", []any{`{"connected": "yes"}`})
	assert.Equal(t, Failed, res.State)
	assert.True(t, containsError(res.Errors, "connected must be of type boolean"), res.Errors)
}

func TestValidatePeerErrors(t *testing.T) {
	res := Validate(Config{}, "/connect", []any{`{"errors": "OSC argument must not be empty, OSC argument must be of type string"}`})
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, []string{"OSC argument must not be empty", "OSC argument must be of type string"}, res.PeerErrors)
	assert.Contains(t, res.Err().Error(), "peer: OSC argument must not be empty")
}

func TestValidateEmptyPeerErrorsAreIgnored(t *testing.T) {
	for _, payload := range []string{
		`{"connected": true, "errors": []}`,
		`{"connected": true, "errors": ""}`,
		`{"connected": true, "errors": null}`,
	} {
		res := Validate(Config{}, "/connect", []any{payload})
		assert.Equal(t, Confirmed, res.State, payload)
		assert.Empty(t, res.PeerErrors, payload)
		assert.NoError(t, res.Err(), payload)
	}

	res := Validate(Config{PeerPort: 9100}, "/connect", []any{`{"connected": false, "errors": []}`})
	assert.Equal(t, Failed, res.State)
	assert.True(t, containsError(res.Errors, "peer did not confirm connection on port 9100"), res.Errors)
}

func TestRunOverLoopback(t *testing.T) {
	peer, err := osc.Listen("127.0.0.1", 0)
	require.NoError(t, err)
	defer peer.Close()

	ch, err := osc.Open(osc.Config{Host: "127.0.0.1", SendPort: peer.Addr().(*net.UDPAddr).Port, ListenPort: 0})
	require.NoError(t, err)
	defer ch.Close()

	replyTo, err := osc.NewClient("127.0.0.1", ch.Server().Addr().(*net.UDPAddr).Port)
	require.NoError(t, err)
	defer replyTo.Close()

	peer.Register("/connect", func(osc.Message) {
		_ = replyTo.Send("/connect", `{"connected": true}`)
	})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = peer.AwaitOne(ctx)
	}()

	res := Run(context.Background(), ch, Config{Timeout: 2 * time.Second})
	require.Equal(t, Confirmed, res.State, res.Errors)

	// A later reply on the same address finds no handler.
	_ = replyTo.Send("/connect", `{"connected": true}`)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ch.AwaitOne(ctx), context.DeadlineExceeded)
}

func containsError(errs []string, fragment string) bool {
	for _, e := range errs {
		if strings.Contains(e, fragment) {
			return true
		}
	}
	return false
}
