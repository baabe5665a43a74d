// Package protocol owns the bridge packet wire contract.
//
// Ownership boundary:
// - SEND / SEND_AND_CALL packet layouts
// - bounds-checked cursor primitives
// - adapter parameter blobs handed to the transport
//
// The byte layout is the cross-endpoint compatibility surface. Any change to it
// requires a new packet type discriminant.
package protocol
