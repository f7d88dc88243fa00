// Package observe implements device-side field observation.
//
// A watch is registered under the correlation id of the observeField request
// that created it. After every mutation of the device state the owner calls
// Notify, which re-resolves each watched key path and compares it with the
// last observed value. A change evaluates the watch's match condition:
//
//   - no match: the first change satisfies the watch
//   - literal match: the new value of the observed field must equal the match value
//   - field match: the field at the match key path must equal the match value
//
// Each registration produces exactly one Outcome. Outcomes decided at
// registration (invalid key path, match already satisfied) are returned from
// Observe directly; all others are delivered through Config.OnOutcome, after
// which the watch is gone.
//
// # Timeouts
//
// Every watch carries a timer of retryTimeout milliseconds, defaulting to
// Config.DefaultTimeout. Expiry produces an Outcome with ErrTimeout.
//
// # Locking
//
// The registry calls the Resolver while holding its own lock. Owners must not
// hold a lock the Resolver needs when calling Observe or Notify.
package observe
