// Package transport owns connection lifecycle and the server-side registry.
//
// Ownership boundary:
// - per-connection read/listen loop over wire.Decoder
// - id-keyed live-connection registry
// - accept loop, broadcast, coordinated teardown
package transport
