// Package log captures protocol events of the component bridge.
//
// The transport and the dispatcher report every frame, decoded message,
// connection state change and discarded reply as an Event. Events are
// independent of operational logging (log/slog): they describe what went
// over the wire, not what the program decided.
//
// A Logger is passed through transport.Config:
//
//	file, err := log.NewFileLogger("run.rlog")
//	if err != nil {
//		return err
//	}
//	defer file.Close()
//
//	conn, err := transport.Dial(ctx, addr, transport.Config{
//		Logger: log.NewMultiLogger(file, log.NewSlogAdapter(slog.Default())),
//	})
//
// # Layers
//
//   - Transport: raw frames (FrameEvent), connection state (StateChangeEvent)
//   - Wire: malformed messages (ErrorEventData)
//   - Dispatch: requests, responses and events (MessageEvent), discarded
//     replies (ErrorEventData)
//
// # File format
//
// A log file is a stream of CBOR-encoded events appended in order. Reader
// iterates over a file with an optional Filter; the rta-log command views,
// summarizes and exports them.
package log
