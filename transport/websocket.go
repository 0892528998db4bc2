package transport

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"go-pianola/device"
)

const writeWait = 2 * time.Second

// WebSocket sends JSON envelopes to the piano controller's /ws endpoint and
// reads battery telemetry back.
type WebSocket struct {
	conn      *websocket.Conn
	q         *queue
	telemetry chan device.Battery
	logger    *log.Logger
	readDone  chan struct{}
}

// DialWebSocket connects to url, e.g. ws://pianola.local/ws.
func DialWebSocket(ctx context.Context, url string, queueSize int, logger *log.Logger) (*WebSocket, error) {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("ws")

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	logger.Info("connected", "url", url)

	w := &WebSocket{
		conn:      conn,
		telemetry: make(chan device.Battery, 8),
		logger:    logger,
		readDone:  make(chan struct{}),
	}
	w.q = newQueue(queueSize, w.write, logger)
	go w.readLoop()
	return w, nil
}

func (w *WebSocket) write(b []byte) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, b)
}

// Send queues m. It never blocks.
func (w *WebSocket) Send(m device.Message) error {
	b, err := device.Marshal(m)
	if err != nil {
		return err
	}
	return w.q.enqueue(b)
}

// Telemetry delivers battery reports. Reports are dropped if nobody reads.
func (w *WebSocket) Telemetry() <-chan device.Battery {
	return w.telemetry
}

func (w *WebSocket) readLoop() {
	defer close(w.readDone)
	defer close(w.telemetry)
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.q.fail(err)
			}
			return
		}
		b, ok, err := device.ParseTelemetry(data)
		if err != nil {
			w.logger.Debug("ignoring message", "data", string(data), "err", err)
			continue
		}
		if !ok {
			continue
		}
		select {
		case w.telemetry <- b:
		default:
		}
	}
}

// Close flushes queued messages and closes the connection.
func (w *WebSocket) Close() error {
	w.q.close()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))

	select {
	case <-w.readDone:
	case <-time.After(writeWait):
	}
	return w.conn.Close()
}
