package bridge

import (
	"encoding/hex"
	"sync"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// Event is a notification observers use to reconcile bridge state.
type Event interface {
	Kind() string
}

// Sink receives every event a bridge emits, in emission order.
type Sink interface {
	Emit(e Event)
}

type SendToEndpoint struct {
	Dst    uint16
	From   account.Address
	To     []byte
	Amount *uint256.Int
}

type ReceiveFromEndpoint struct {
	Src    uint16
	To     account.Address
	Amount *uint256.Int
}

// InvalidReceiver reports receiver bytes that did not resolve to an account.
type InvalidReceiver struct {
	Src   uint16
	Nonce uint64
	Raw   []byte
}

// NonCallableReceiver reports a callback packet whose receiver has no hook.
type NonCallableReceiver struct {
	Src   uint16
	Nonce uint64
	To    account.Address
}

type CallReceivedSuccess struct {
	Src        uint16
	SrcAddress []byte
	Nonce      uint64
	Hash       Hash
}

type MessageFailed struct {
	Src        uint16
	SrcAddress []byte
	Nonce      uint64
	Hash       Hash
	Reason     string
}

type RetryMessageSuccess struct {
	Src        uint16
	SrcAddress []byte
	Nonce      uint64
	Hash       Hash
}

type EscrowRecovered struct {
	To     account.Address
	Amount *uint256.Int
}

func (SendToEndpoint) Kind() string      { return "send_to_endpoint" }
func (ReceiveFromEndpoint) Kind() string { return "receive_from_endpoint" }
func (InvalidReceiver) Kind() string     { return "invalid_receiver" }
func (NonCallableReceiver) Kind() string { return "non_callable_receiver" }
func (CallReceivedSuccess) Kind() string { return "call_received_success" }
func (MessageFailed) Kind() string       { return "message_failed" }
func (RetryMessageSuccess) Kind() string { return "retry_message_success" }
func (EscrowRecovered) Kind() string     { return "escrow_recovered" }

func (e SendToEndpoint) MarshalZerologObject(ev *zerolog.Event) {
	ev.Uint16("dst", e.Dst).Stringer("from", e.From).Str("to", hex.EncodeToString(e.To)).Str("amount", decString(e.Amount))
}

func (e ReceiveFromEndpoint) MarshalZerologObject(ev *zerolog.Event) {
	ev.Uint16("src", e.Src).Stringer("to", e.To).Str("amount", decString(e.Amount))
}

func (e InvalidReceiver) MarshalZerologObject(ev *zerolog.Event) {
	ev.Uint16("src", e.Src).Uint64("nonce", e.Nonce).Str("raw", hex.EncodeToString(e.Raw))
}

func (e NonCallableReceiver) MarshalZerologObject(ev *zerolog.Event) {
	ev.Uint16("src", e.Src).Uint64("nonce", e.Nonce).Stringer("to", e.To)
}

func (e CallReceivedSuccess) MarshalZerologObject(ev *zerolog.Event) {
	ev.Uint16("src", e.Src).Str("src_address", hex.EncodeToString(e.SrcAddress)).Uint64("nonce", e.Nonce).Stringer("hash", e.Hash)
}

func (e MessageFailed) MarshalZerologObject(ev *zerolog.Event) {
	ev.Uint16("src", e.Src).Str("src_address", hex.EncodeToString(e.SrcAddress)).Uint64("nonce", e.Nonce).
		Stringer("hash", e.Hash).Str("reason", e.Reason)
}

func (e RetryMessageSuccess) MarshalZerologObject(ev *zerolog.Event) {
	ev.Uint16("src", e.Src).Str("src_address", hex.EncodeToString(e.SrcAddress)).Uint64("nonce", e.Nonce).Stringer("hash", e.Hash)
}

func (e EscrowRecovered) MarshalZerologObject(ev *zerolog.Event) {
	ev.Stringer("to", e.To).Str("amount", decString(e.Amount))
}

func decString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// LogSink writes events to a zerolog logger.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Emit(e Event) {
	ev := s.Logger.Info()
	switch e.(type) {
	case MessageFailed, InvalidReceiver, NonCallableReceiver:
		ev = s.Logger.Warn()
	}
	if m, ok := e.(zerolog.LogObjectMarshaler); ok {
		ev = ev.EmbedObject(m)
	}
	ev.Str("kind", e.Kind()).Msg("bridge event")
}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind())
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}
