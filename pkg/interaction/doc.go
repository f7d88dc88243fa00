// Package interaction implements the client and reference device sides of the
// on-device component bridge.
//
// Every operation is one request carrying a correlation id. The device answers
// with a response, or for observations usually with a later event carrying the
// same id. The Dispatcher matches both to the waiting caller:
//
//   - ids start at 1 and increase monotonically; 0 is never used
//   - any number of requests may be in flight, answered in any order
//   - each pending request resolves exactly once: by reply, timeout or Close
//   - a reply for an id that is no longer pending is discarded with
//     ErrUnexpectedReply
//
// # Client Usage
//
//	conn, err := transport.Dial(ctx, "192.168.1.20:9000", transport.Config{})
//	client := interaction.NewClient(conn, interaction.ClientConfig{})
//	go conn.Run(ctx, client)
//
//	// Read a value
//	res, err := client.GetValue(ctx, model.BaseGlobal, "AuthManager.isLoggedIn")
//
//	// Wait for a field to change
//	pending, err := client.GoObserveField(interaction.ObserveOptions{
//	    KeyPath: "stringValue",
//	    Match:   wire.LiteralMatch(model.String("done")),
//	})
//	// ... trigger the change ...
//	obs, err := pending.Wait(ctx)
//
// Device failures are returned as *RemoteError and match the package
// sentinels with errors.Is:
//
//	if errors.Is(err, interaction.ErrFuncNotFound) { ... }
//
// # Server Usage
//
// Server is an in-memory device for tests and local tooling. It answers the
// same requests as the on-device component:
//
//	srv := interaction.NewServer(interaction.ServerConfig{Roots: roots})
//	srv.RegisterFunc("AuthManager", "loginUser", loginUser)
//	err := transport.Serve(ctx, conn, transport.ServerConfig{Handler: srv})
//
// Observations are connection-scoped. When a connection ends its pending
// observations are dropped.
package interaction
