// Package progress defines how an update run reports to its observers.
//
// A run calls Starting once with the number of targets, then Start once per
// target in configured order. Start hands back a Session scoped to that target
// which receives exactly one terminal call: CompleteWithCriticalUpdate,
// CompleteWithNonCriticalUpdate, CompleteNoUpdate or Fail. Finished is called
// once after every target has reached its terminal call.
//
// Implementations are not expected to validate the order or count of calls;
// behavior for a caller breaking the sequence is unspecified.
package progress
