package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"go-pianola/device"
)

func quiet() *log.Logger {
	return log.New(io.Discard)
}

type fakePort struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func splitFrames(t *testing.T, b []byte) []device.Message {
	t.Helper()
	var out []device.Message
	for len(b) > 0 {
		if len(b) < 3 {
			t.Fatalf("trailing bytes % x", b)
		}
		n := int(b[2]) + 4
		m, err := device.DecodeFrame(b[:n])
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, m)
		b = b[n:]
	}
	return out
}

func TestSerialWritesFrames(t *testing.T) {
	port := &fakePort{}
	s := newSerial(port, 16, quiet())
	msgs := []device.Message{
		device.TrackInfoMsg{TicksPerBeat: 480, Tempo: 120, TrackCount: 1},
		device.ResumeMsg{Time: 0},
		device.NoteMsg{Time: 1000, Key: 39, Velocity: 200, Duration: 50, On: 1},
		device.NoteMsg{Time: 1050, Key: 39},
		device.PauseMsg{},
	}
	for _, m := range msgs {
		if err := s.Send(m); err != nil {
			t.Fatalf("Send(%T): %v", m, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !port.closed {
		t.Fatal("port not closed")
	}

	got := splitFrames(t, port.buf.Bytes())
	if len(got) != len(msgs) {
		t.Fatalf("got %d frames, want %d", len(got), len(msgs))
	}
	for i := range msgs {
		if got[i] != msgs[i] {
			t.Fatalf("frame %d = %+v; want %+v", i, got[i], msgs[i])
		}
	}

	if err := s.Send(device.PauseMsg{}); !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("send after close: %v", err)
	}
}

func TestQueueFullDrops(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	q := newQueue(1, func([]byte) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}, quiet())

	if err := q.enqueue([]byte("a")); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	<-started // writer is busy with a
	if err := q.enqueue([]byte("b")); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}
	if err := q.enqueue([]byte("c")); !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("expected ErrChannelUnavailable, got %v", err)
	}
	close(release)
	q.close()
}

func TestQueueLinkFailure(t *testing.T) {
	q := newQueue(4, func([]byte) error { return io.ErrClosedPipe }, quiet())
	q.enqueue([]byte("a"))

	deadline := time.Now().Add(2 * time.Second)
	for q.failed() == nil {
		if time.Now().After(deadline) {
			t.Fatal("write failure never recorded")
		}
		time.Sleep(time.Millisecond)
	}
	if err := q.enqueue([]byte("b")); !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("expected ErrChannelUnavailable, got %v", err)
	}
	q.close()
}

func TestWebSocketRoundTrip(t *testing.T) {
	received := make(chan device.Message, 8)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"battery","percentage":77,"voltage":"14000.5"}`))
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			m, err := device.Unmarshal(data)
			if err != nil {
				t.Errorf("server decode: %v", err)
				return
			}
			received <- m
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, err := DialWebSocket(ctx, url, 16, quiet())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ws.Close()

	sent := []device.Message{
		device.NoteMsg{Time: 1000, Key: 39, Velocity: 255, Duration: 100, On: 1},
		device.PauseMsg{},
	}
	for _, m := range sent {
		if err := ws.Send(m); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	for i, want := range sent {
		select {
		case got := <-received:
			if got != want {
				t.Fatalf("message %d = %+v; want %+v", i, got, want)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for message %d", i)
		}
	}

	select {
	case b := <-ws.Telemetry():
		if b.Percentage != 77 || b.Millivolts() != 14000.5 {
			t.Fatalf("unexpected telemetry %+v", b)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for telemetry")
	}
}

func TestWebSocketDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := DialWebSocket(ctx, "ws://127.0.0.1:1/ws", 0, quiet()); err == nil {
		t.Fatal("expected dial error")
	}
}

type failing struct{ n int }

func (f *failing) Send(device.Message) error {
	f.n++
	return ErrChannelUnavailable
}

type counting struct{ n int }

func (c *counting) Send(device.Message) error {
	c.n++
	return nil
}

func TestTee(t *testing.T) {
	a, b, c := &counting{}, &failing{}, &counting{}
	tee := Tee{a, b, c}
	err := tee.Send(device.RestartMsg{})
	if !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("expected first error, got %v", err)
	}
	if a.n != 1 || b.n != 1 || c.n != 1 {
		t.Fatalf("not every sink saw the message: %d %d %d", a.n, b.n, c.n)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(log.New(&buf))
	l.Send(device.NoteMsg{Time: 5, Key: 3, Velocity: 9, On: 1})
	l.Send(device.PauseMsg{})
	out := buf.String()
	if !strings.Contains(out, "note on") || !strings.Contains(out, "pause") {
		t.Fatalf("unexpected log output:\n%s", out)
	}
}
