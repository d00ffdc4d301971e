// Package events fans engine lifecycle events out to subscribers.
//
// Publish delivers synchronously to every subscriber in registration order.
// A subscriber that returns an error or panics is logged and skipped; the
// publisher and the remaining subscribers never see the failure. The engine
// publishes only after releasing its lock, so subscribers may call back into
// read-only engine methods.
package events
