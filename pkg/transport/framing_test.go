package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/georgejecook/roku-test-automation/pkg/log"
)

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"small message", []byte("hello")},
		{"medium message", bytes.Repeat([]byte("x"), 1000)},
		{"max size message", bytes.Repeat([]byte("y"), 2048)},
		{"single byte", []byte{0x42}},
		{"binary data", []byte{0x00, 0xFF, 0x7F, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			if err := NewFrameWriterWithMaxSize(buf, 2048).WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if buf.Len() != FrameSize(len(tt.payload)) {
				t.Errorf("frame size: got %d, want %d", buf.Len(), FrameSize(len(tt.payload)))
			}
			if got := binary.BigEndian.Uint32(buf.Bytes()[:LengthPrefixSize]); got != uint32(len(tt.payload)) {
				t.Errorf("length prefix: got %d, want %d", got, len(tt.payload))
			}

			got, err := NewFrameReaderWithMaxSize(buf, 2048).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d bytes", len(got), len(tt.payload))
			}
		})
	}
}

func prefixed(length uint32, payload []byte) *bytes.Buffer {
	buf := new(bytes.Buffer)
	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], length)
	buf.Write(lengthBuf[:])
	buf.Write(payload)
	return buf
}

func TestFrameErrors(t *testing.T) {
	if err := NewFrameWriter(new(bytes.Buffer)).WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("empty write: got %v, want ErrMessageEmpty", err)
	}
	if err := NewFrameWriterWithMaxSize(new(bytes.Buffer), 10).WriteFrame(make([]byte, 11)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("large write: got %v, want ErrMessageTooLarge", err)
	}

	tests := []struct {
		name string
		in   io.Reader
		want error
	}{
		{"too large", prefixed(1000, nil), ErrMessageTooLarge},
		{"zero length", prefixed(0, nil), ErrMessageEmpty},
		{"truncated prefix", bytes.NewReader([]byte{0x00, 0x00}), ErrFrameTruncated},
		{"truncated payload", prefixed(100, make([]byte, 50)), ErrFrameTruncated},
		{"clean EOF", bytes.NewReader(nil), io.EOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameReaderWithMaxSize(tt.in, 100).ReadFrame()
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFramerConcurrentWriters(t *testing.T) {
	buf := new(bytes.Buffer)
	w := NewFrameWriter(&lockedWriter{w: buf})

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				w.WriteFrame(bytes.Repeat([]byte{byte(i)}, 10+i))
			}
		}(i)
	}
	wg.Wait()

	r := NewFrameReader(buf)
	count := 0
	for {
		frame, err := r.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame failed after %d frames: %v", count, err)
		}
		if len(frame) != 10+int(frame[0]) {
			t.Fatalf("interleaved frame: %d bytes tagged %d", len(frame), frame[0])
		}
		count++
	}
	if count != writers*perWriter {
		t.Errorf("got %d frames, want %d", count, writers*perWriter)
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// capturingLogger captures log events for testing.
type capturingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *capturingLogger) Log(event log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *capturingLogger) Events() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}

func (l *capturingLogger) Frames() []log.Event {
	var out []log.Event
	for _, e := range l.Events() {
		if e.Frame != nil {
			out = append(out, e)
		}
	}
	return out
}

func TestFramerLogsFrames(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := &capturingLogger{}
	framer := NewFramer(buf)
	framer.SetLogger(logger, "conn-1")

	big := bytes.Repeat([]byte("z"), MaxLogFrameDataSize+10)
	if err := framer.WriteFrame([]byte("hi")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if err := framer.WriteFrame(big); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if _, err := framer.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	events := logger.Frames()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	out, trunc, in := events[0], events[1], events[2]
	if out.Direction != log.DirectionOut || out.ConnectionID != "conn-1" || out.Layer != log.LayerTransport {
		t.Errorf("unexpected write event: %+v", out)
	}
	if out.Frame.Size != FrameSize(2) {
		t.Errorf("frame size: got %d, want %d", out.Frame.Size, FrameSize(2))
	}
	if !trunc.Frame.Truncated || len(trunc.Frame.Data) != MaxLogFrameDataSize {
		t.Errorf("large frame not truncated: %d bytes, truncated=%v", len(trunc.Frame.Data), trunc.Frame.Truncated)
	}
	if in.Direction != log.DirectionIn {
		t.Errorf("read event direction: got %s", in.Direction)
	}
	if in.LocalRole != log.RoleDevice {
		t.Errorf("default role: got %s", in.LocalRole)
	}

	framer.SetRole(log.RoleClient)
	if err := framer.WriteFrame([]byte("again")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	events = logger.Frames()
	if got := events[len(events)-1].LocalRole; got != log.RoleClient {
		t.Errorf("role after SetRole: got %s", got)
	}
}

func TestFramerNoLoggerNoPanic(t *testing.T) {
	buf := new(bytes.Buffer)
	framer := NewFramer(buf)
	framer.SetLogger(nil, "")
	if err := framer.WriteFrame([]byte("x")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if _, err := framer.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
}

func BenchmarkFrameWrite(b *testing.B) {
	buf := new(bytes.Buffer)
	writer := NewFrameWriter(buf)
	payload := bytes.Repeat([]byte("x"), 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		writer.WriteFrame(payload)
	}
}
