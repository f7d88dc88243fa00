package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/georgejecook/roku-test-automation/pkg/log"
)

// RunExport writes the events of the log at path to output (stdout when
// empty) as jsonl or csv.
func RunExport(path, format, output string, filter log.Filter) error {
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return Export(path, format, filter, w)
}

// Export writes the events of the log at path to w.
func Export(path, format string, filter log.Filter, w io.Writer) error {
	switch format {
	case "jsonl":
		enc := json.NewEncoder(w)
		return each(path, filter, func(event log.Event) error {
			if err := enc.Encode(event); err != nil {
				return fmt.Errorf("encode event: %w", err)
			}
			return nil
		})
	case "csv":
		cw := csv.NewWriter(w)
		header := []string{"timestamp", "connection_id", "role", "direction", "layer", "category", "type", "id", "kind", "error"}
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		err := each(path, filter, func(event log.Event) error {
			if err := cw.Write(csvRow(event)); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
			return nil
		})
		cw.Flush()
		if err != nil {
			return err
		}
		return cw.Error()
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func csvRow(event log.Event) []string {
	eventType := "unknown"
	var id, kind, errKind string
	switch {
	case event.Frame != nil:
		eventType = "frame"
	case event.Message != nil:
		m := event.Message
		eventType = m.Type.String()
		id = strconv.FormatUint(m.ID, 10)
		if m.Kind != nil {
			kind = m.Kind.String()
		}
		if m.ErrorKind != nil {
			errKind = m.ErrorKind.String()
		}
	case event.StateChange != nil:
		eventType = "state"
	case event.Error != nil:
		eventType = "error"
		errKind = event.Error.Message
	}

	return []string{
		event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		event.ConnectionID,
		event.LocalRole.String(),
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		eventType,
		id,
		kind,
		errKind,
	}
}
