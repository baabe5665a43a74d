// Package bridge moves value between endpoints by emitting and applying
// instruction packets.
//
// Ownership boundaries:
// - outbound path: dust removal, ledger debit, packet encode, transport dispatch
// - inbound dispatcher: trusted source check, decode, credit or escrow, bounded
//   receiver callback
// - retry manager: commitment-checked replay of a failed callback, exactly once
//
// The failed-callback table is the only state shared between the dispatcher
// and the retry manager. It lives in an injected store.KV.
package bridge
