package telemetry

import (
	"context"
	"net/http"
	"time"

	events "github.com/docker/go-events"
	"github.com/gorilla/websocket"
	E "github.com/sagernet/sing/common/exceptions"
)

const webSocketWriteTimeout = time.Second

var _ events.Sink = (*WebSocketSink)(nil)

// WebSocketSink pushes each sample to a collector as a text frame.
type WebSocketSink struct {
	conn *websocket.Conn
}

func DialWebSocketSink(ctx context.Context, url string, header http.Header) (*WebSocketSink, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, E.Cause(err, "dial telemetry collector ", url)
	}
	return &WebSocketSink{conn: conn}, nil
}

// Write must not be called concurrently.
func (s *WebSocketSink) Write(event events.Event) error {
	content, err := EncodeSample(event)
	if err != nil {
		return err
	}
	err = s.conn.SetWriteDeadline(time.Now().Add(webSocketWriteTimeout))
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, content)
}

func (s *WebSocketSink) Close() error {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(webSocketWriteTimeout))
	return s.conn.Close()
}
