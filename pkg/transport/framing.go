package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/georgejecook/roku-test-automation/pkg/log"
)

// A frame is a 4-byte big-endian payload length followed by the payload.
const (
	LengthPrefixSize = 4

	// DefaultMaxMessageSize bounds a single payload. Serialized scene
	// subtrees are large.
	DefaultMaxMessageSize = 4 << 20

	MinMessageSize = 1

	// MaxLogFrameDataSize caps the payload bytes copied into a frame event.
	MaxLogFrameDataSize = 4096
)

var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMessageEmpty    = errors.New("message is empty")
	ErrFrameTruncated  = errors.New("frame truncated")
)

// FrameSize returns the on-wire size of a frame carrying payloadSize bytes.
func FrameSize(payloadSize int) int {
	return LengthPrefixSize + payloadSize
}

func checkSize(n int, limit uint32) error {
	if n < MinMessageSize {
		return ErrMessageEmpty
	}
	if uint64(n) > uint64(limit) {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, n, limit)
	}
	return nil
}

// frameTap reports frames to a protocol logger.
type frameTap struct {
	logger log.Logger
	connID string
	role   log.Role
}

func (t *frameTap) emit(dir log.Direction, payload []byte) {
	if t.logger == nil {
		return
	}
	data, truncated := payload, false
	if len(data) > MaxLogFrameDataSize {
		data, truncated = data[:MaxLogFrameDataSize], true
	}
	t.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: t.connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		LocalRole:    t.role,
		Frame: &log.FrameEvent{
			Size:      FrameSize(len(payload)),
			Data:      data,
			Truncated: truncated,
		},
	})
}

// FrameWriter writes frames. It is safe for concurrent use.
type FrameWriter struct {
	mu    sync.Mutex
	w     io.Writer
	limit uint32
	tap   frameTap
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return NewFrameWriterWithMaxSize(w, DefaultMaxMessageSize)
}

func NewFrameWriterWithMaxSize(w io.Writer, maxSize uint32) *FrameWriter {
	return &FrameWriter{w: w, limit: maxSize}
}

// SetLogger reports written frames to logger; nil turns reporting off.
func (fw *FrameWriter) SetLogger(logger log.Logger, connID string) {
	fw.tap.logger, fw.tap.connID = logger, connID
}

// WriteFrame writes data as one frame, prefix and payload in a single
// Write call.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if err := checkSize(len(data), fw.limit); err != nil {
		return err
	}

	frame := make([]byte, FrameSize(len(data)))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[LengthPrefixSize:], data)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	fw.tap.emit(log.DirectionOut, data)
	return nil
}

// FrameReader reads frames. It is not safe for concurrent use.
type FrameReader struct {
	r      io.Reader
	limit  uint32
	header [LengthPrefixSize]byte
	tap    frameTap
}

func NewFrameReader(r io.Reader) *FrameReader {
	return NewFrameReaderWithMaxSize(r, DefaultMaxMessageSize)
}

func NewFrameReaderWithMaxSize(r io.Reader, maxSize uint32) *FrameReader {
	return &FrameReader{r: r, limit: maxSize}
}

// SetLogger reports read frames to logger; nil turns reporting off.
func (fr *FrameReader) SetLogger(logger log.Logger, connID string) {
	fr.tap.logger, fr.tap.connID = logger, connID
}

func (fr *FrameReader) SetMaxMessageSize(size uint32) {
	fr.limit = size
}

// ReadFrame returns the next payload. A stream that ends cleanly between
// frames yields io.EOF; one that ends inside a frame yields
// ErrFrameTruncated.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	switch _, err := io.ReadFull(fr.r, fr.header[:]); {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, ErrFrameTruncated
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("read length prefix: %w", err)
	}

	n := binary.BigEndian.Uint32(fr.header[:])
	if err := checkSize(int(n), fr.limit); err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	fr.tap.emit(log.DirectionIn, payload)
	return payload, nil
}

// Framer reads and writes frames on one stream.
type Framer struct {
	*FrameReader
	*FrameWriter
}

func NewFramer(rw io.ReadWriter) *Framer {
	return NewFramerWithMaxSize(rw, DefaultMaxMessageSize)
}

func NewFramerWithMaxSize(rw io.ReadWriter, maxSize uint32) *Framer {
	return &Framer{
		FrameReader: NewFrameReaderWithMaxSize(rw, maxSize),
		FrameWriter: NewFrameWriterWithMaxSize(rw, maxSize),
	}
}

func (f *Framer) SetLogger(logger log.Logger, connID string) {
	f.FrameReader.SetLogger(logger, connID)
	f.FrameWriter.SetLogger(logger, connID)
}

// SetRole sets the role recorded in frame events. The default is
// log.RoleDevice.
func (f *Framer) SetRole(role log.Role) {
	f.FrameReader.tap.role = role
	f.FrameWriter.tap.role = role
}
