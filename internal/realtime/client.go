package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/GriffinCanCode/voicebridge/internal/audio"
	apperrors "github.com/GriffinCanCode/voicebridge/internal/errors"
	"github.com/GriffinCanCode/voicebridge/internal/trace"
)

// Options configures one endpoint session.
type Options struct {
	URL          string
	APIKey       string
	Model        string
	Voice        string
	Locale       string
	Instructions string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	EventBuffer      int
	HTTPClient       *http.Client
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	return o
}

// Client is one live endpoint session. It never retries; any socket
// failure is reported once on Events and the channel is closed.
type Client struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	events       chan Event

	ctx       context.Context
	cancel    context.CancelFunc
	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens the socket and sends the session configuration.
// Failures to reach the endpoint are endpoint_unreachable;
// failures after the socket opened are handshake_failed.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	if opts.APIKey == "" {
		return nil, apperrors.New(apperrors.CodeConfigMissing, "realtime API key is not set")
	}

	target, err := endpointURL(opts.URL, opts.Model)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.HandshakeTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+opts.APIKey)
	for k, v := range trace.OutgoingHeaders(ctx) {
		header.Set(k, v)
	}

	ws, resp, err := websocket.Dial(dialCtx, target, &websocket.DialOptions{
		HTTPClient: opts.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeHandshakeFailed, "realtime endpoint rejected upgrade: %s", resp.Status)
		}
		return nil, dialError(ctx, err, apperrors.CodeEndpointUnreachable, "realtime endpoint unreachable")
	}
	ws.SetReadLimit(MaxMessageBytes)

	runCtx, runCancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Client{
		ws:           ws,
		writeTimeout: opts.WriteTimeout,
		events:       make(chan Event, opts.EventBuffer),
		ctx:          runCtx,
		cancel:       runCancel,
		done:         make(chan struct{}),
	}

	if err := c.send(dialCtx, sessionUpdate{
		Type:    typeSessionUpdate,
		EventID: newEventID(),
		Session: sessionConfig{
			Model:             opts.Model,
			Modalities:        []string{"audio", "text"},
			Voice:             opts.Voice,
			Locale:            opts.Locale,
			Instructions:      opts.Instructions,
			InputAudioFormat:  realtimeFormat(),
			OutputAudioFormat: realtimeFormat(),
		},
	}); err != nil {
		runCancel()
		_ = ws.CloseNow()
		return nil, dialError(ctx, err, apperrors.CodeHandshakeFailed, "session configuration not accepted")
	}

	go c.readLoop()
	trace.Logger(ctx).Debug("realtime session opened", "model", opts.Model, "voice", opts.Voice, "locale", opts.Locale)
	return c, nil
}

// dialError classifies a failed open. A caller that gave up is cancelled,
// a caller deadline is a timeout, anything else is code.
func dialError(ctx context.Context, err error, code apperrors.Code, msg string) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return apperrors.Wrap(err, apperrors.CodeCancelled, "realtime dial abandoned by caller")
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.CodeTimeout, "realtime dial timed out")
	}
	return apperrors.Wrap(err, code, msg)
}

func endpointURL(raw, model string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", apperrors.Newf(apperrors.CodeConfigMissing, "invalid realtime URL %q", raw)
	}
	switch u.Scheme {
	case "wss", "ws", "https", "http":
	default:
		return "", apperrors.Newf(apperrors.CodeConfigMissing, "unsupported realtime URL scheme %q", u.Scheme)
	}
	if model != "" {
		q := u.Query()
		q.Set("model", model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func realtimeFormat() audioFormat {
	return audioFormat{
		Type:     pcmFormatType,
		Rate:     audio.FormatRealtime.SampleRate,
		Channels: audio.FormatRealtime.Channels,
	}
}

func newEventID() string {
	return "evt_" + uuid.NewString()
}

// Events delivers endpoint events in receipt order. KindError events carry
// an AppError: decode_failed for an unreadable message, remote_error for an
// endpoint-sent error, and a final leg_closed when the socket fails. The
// channel is closed after the socket fails or Close is called.
func (c *Client) Events() <-chan Event { return c.events }

// SubmitAudio appends one realtime-format frame to the endpoint's input buffer.
func (c *Client) SubmitAudio(ctx context.Context, f audio.Frame) error {
	if f.Format() != audio.FormatRealtime {
		return apperrors.Newf(apperrors.CodeUnsupportedFormat, "submitted audio must be %s, got %s", audio.FormatRealtime, f.Format())
	}
	return c.send(ctx, bufferAppend{
		Type:    typeBufferAppend,
		EventID: newEventID(),
		Audio:   base64.StdEncoding.EncodeToString(f.Bytes()),
	})
}

// RequestResponse closes the current input chunk and asks for a spoken reply.
func (c *Client) RequestResponse(ctx context.Context) error {
	if err := c.send(ctx, clientEvent{Type: typeBufferCommit, EventID: newEventID()}); err != nil {
		return err
	}
	return c.send(ctx, clientEvent{
		Type:     typeResponseNew,
		EventID:  newEventID(),
		Response: &response{Modalities: []string{"audio", "text"}},
	})
}

// Close tears the socket down and waits for the reader to exit. Safe to call repeatedly.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		err = c.ws.Close(websocket.StatusNormalClosure, "session closed")
		c.cancel()
		<-c.done
	})
	return err
}

func (c *Client) send(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "encode realtime message")
	}
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, payload); err != nil {
		return apperrors.Wrap(err, apperrors.CodeWriteFailed, "realtime write failed")
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.events)

	log := trace.Logger(c.ctx)
	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			if !c.closing.Load() {
				c.emit(Event{Kind: KindError, Err: apperrors.Wrap(err, apperrors.CodeLegClosed, "realtime socket closed")})
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		evt, err := ParseEvent(data)
		if err != nil {
			// Decode failures are surfaced so the consumer can count them.
			evt = Event{Kind: KindError, Err: err}
		}
		if evt.Kind == KindUnknown {
			log.Debug("realtime event ignored", "type", evt.Type)
			continue
		}
		if !c.emit(evt) {
			return
		}
	}
}

// emit blocks until the consumer takes evt or the client is closed.
func (c *Client) emit(evt Event) bool {
	select {
	case c.events <- evt:
		return true
	case <-c.ctx.Done():
		return false
	}
}
