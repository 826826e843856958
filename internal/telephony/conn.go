package telephony

import (
	"context"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/GriffinCanCode/voicebridge/internal/audio"
	apperrors "github.com/GriffinCanCode/voicebridge/internal/errors"
)

// Conn is the telephony leg of one call over an accepted WebSocket.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

// NewConn wraps an accepted WebSocket. The caller hands over ownership.
func NewConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	ws.SetReadLimit(MaxMessageBytes)
	return &Conn{ws: ws, writeTimeout: writeTimeout}
}

// Read blocks for the next event. A closed socket is a leg_closed error;
// a malformed message is a decode_failed error and the connection stays usable.
func (c *Conn) Read(ctx context.Context) (Event, error) {
	typ, data, err := c.ws.Read(ctx)
	if err != nil {
		return Event{}, legClosed(err)
	}
	if typ != websocket.MessageText {
		return Event{}, apperrors.New(apperrors.CodeDecodeFailed, "binary frame on telephony socket")
	}
	return Parse(data)
}

// WriteMedia sends one outbound media event. Failures are fatal for the leg.
func (c *Conn) WriteMedia(ctx context.Context, streamSID string, f audio.Frame) error {
	payload, err := EncodeMedia(streamSID, f)
	if err != nil {
		return err
	}
	return c.write(ctx, payload)
}

// WriteMark sends one outbound mark event.
func (c *Conn) WriteMark(ctx context.Context, streamSID, name string) error {
	payload, err := EncodeMark(streamSID, name)
	if err != nil {
		return err
	}
	return c.write(ctx, payload)
}

func (c *Conn) write(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, payload); err != nil {
		return apperrors.Wrap(err, apperrors.CodeWriteFailed, "telephony write failed")
	}
	return nil
}

// Ping checks liveness; it requires a concurrent Read to receive the pong.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.ws.Ping(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CodeLegClosed, "telephony ping failed")
	}
	return nil
}

// Close performs the closing handshake with a short reason.
func (c *Conn) Close(reason string) error {
	if len(reason) > MaxCloseReason {
		reason = reason[:MaxCloseReason]
	}
	return c.ws.Close(websocket.StatusNormalClosure, reason)
}

// legClosed tags a read failure with the peer's close code when it sent one.
func legClosed(err error) error {
	e := apperrors.Wrap(err, apperrors.CodeLegClosed, "telephony socket read failed")
	if status := websocket.CloseStatus(err); status != -1 {
		e = e.WithMetadata("close_status", strconv.Itoa(int(status)))
	}
	return e
}
