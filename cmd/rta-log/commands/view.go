// Package commands implements the rta-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/georgejecook/roku-test-automation/pkg/log"
	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

// formatEvent writes a human-readable representation of event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var label string
	switch {
	case event.Frame != nil:
		label = "Frame"
	case event.Message != nil:
		label = event.Message.Type.String()
	case event.StateChange != nil:
		label = "State"
	case event.Error != nil:
		label = "Error"
	default:
		label = "Unknown"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s %s\n",
		ts, shortenConnID(event.ConnectionID), event.Direction, event.LocalRole, event.Layer, label)

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  ID: %d\n", msg.ID)

	switch msg.Type {
	case wire.MessageTypeRequest:
		if msg.Kind != nil {
			fmt.Fprintf(w, "  Kind: %s\n", msg.Kind)
		}
	case wire.MessageTypeResponse, wire.MessageTypeEvent:
		if msg.Success != nil {
			fmt.Fprintf(w, "  Success: %t\n", *msg.Success)
		}
		if msg.ErrorKind != nil {
			fmt.Fprintf(w, "  Error: %s\n", msg.ErrorKind)
		}
		if msg.TimeTaken != nil {
			fmt.Fprintf(w, "  TimeTaken: %s\n", formatDuration(*msg.TimeTaken))
		}
	}

	if len(msg.Payload) > 0 {
		fmt.Fprintf(w, "  Payload: %s\n", diagnose(msg.Payload))
	}
}

// diagnose renders CBOR in diagnostic notation, falling back to hex.
func diagnose(data []byte) string {
	s, err := cbor.Diagnose(data)
	if err != nil {
		return hex.EncodeToString(data)
	}
	return s
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "dispatch":
		return log.LayerDispatch, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or dispatch)", s)
	}
}

// ParseDirection parses a direction name (case-insensitive).
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
	}
}

// RunView writes every event of the log at path that matches filter.
func RunView(path string, filter log.Filter, w io.Writer) error {
	return each(path, filter, func(event log.Event) error {
		formatEvent(w, event)
		return nil
	})
}

// each calls fn for every matching event of the log at path.
func each(path string, filter log.Filter, fn func(log.Event) error) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}
