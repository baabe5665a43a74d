package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/danmuck/bridgectl/internal/protocol/frame"
	"github.com/danmuck/bridgectl/internal/store"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// FeeModel prices a packet as Base + PerByte*len(packet) + GasPrice*gas, where
// gas comes from the adapter params when present.
type FeeModel struct {
	Base     uint64
	PerByte  uint64
	GasPrice uint64
	// AltTokenFee is the flat alt token fee. Zero disables alt token quotes.
	AltTokenFee uint64
}

type LoopbackConfig struct {
	Fees      FeeModel
	Limits    frame.Limits
	// Redeliver retries stored payloads from Run on a backoff schedule.
	Redeliver BackoffConfig
	// Nonces persists the last outbound nonce per path. Without it nonces
	// restart at 1 with every new Loopback.
	Nonces    store.KV
	Logger    zerolog.Logger
}

// StoredPayload is a delivery that failed and now blocks its path.
type StoredPayload struct {
	SrcEndpoint uint16
	DstEndpoint uint16
	SrcAddress  []byte
	Nonce       uint64
	Packet      []byte
	Reason      string
	// Attempts counts failed deliveries, including the first one.
	Attempts    int
	NextAttempt time.Time

	inFlight bool
	corrupt  bool
}

type pathKey struct {
	src  uint16
	dst  uint16
	addr string
}

func (k pathKey) less(o pathKey) bool {
	if k.src != o.src {
		return k.src < o.src
	}
	if k.dst != o.dst {
		return k.dst < o.dst
	}
	return k.addr < o.addr
}

// Loopback is an in-process Transport. Dispatch frames and queues a packet;
// Flush or Run deliver queued frames in nonce order per path.
type Loopback struct {
	mu        sync.Mutex
	cfg       LoopbackConfig
	endpoints map[uint16]Inbound
	nonces    map[pathKey]uint64
	queues    map[pathKey][][]byte
	stored    map[pathKey]StoredPayload
	collected *uint256.Int
	notify    chan struct{}
	rng       *rand.Rand
	now       func() time.Time
}

var _ Transport = (*Loopback)(nil)

func NewLoopback(cfg LoopbackConfig) *Loopback {
	if cfg.Limits == (frame.Limits{}) {
		cfg.Limits = frame.DefaultLimits()
	}
	return &Loopback{
		cfg:       cfg,
		endpoints: make(map[uint16]Inbound),
		nonces:    make(map[pathKey]uint64),
		queues:    make(map[pathKey][][]byte),
		stored:    make(map[pathKey]StoredPayload),
		collected: new(uint256.Int),
		notify:    make(chan struct{}, 1),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

func (l *Loopback) Register(id uint16, in Inbound) error {
	if in == nil {
		return fmt.Errorf("%w: nil inbound for endpoint %d", ErrInvalidDispatch, id)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.endpoints[id]; ok {
		return fmt.Errorf("%w: %d", ErrEndpointExists, id)
	}
	l.endpoints[id] = in
	return nil
}

func (l *Loopback) EstimateFee(_ context.Context, q FeeQuery) (Fee, error) {
	l.mu.Lock()
	_, ok := l.endpoints[q.DstEndpoint]
	l.mu.Unlock()
	if !ok {
		return Fee{}, fmt.Errorf("%w: %d", ErrUnknownEndpoint, q.DstEndpoint)
	}
	return l.quote(q)
}

func (l *Loopback) quote(q FeeQuery) (Fee, error) {
	m := l.cfg.Fees
	native := uint256.NewInt(m.PerByte)
	native.Mul(native, uint256.NewInt(uint64(len(q.Packet))))
	native.Add(native, uint256.NewInt(m.Base))
	if len(q.AdapterParams) > 0 {
		params, err := protocol.DecodeAdapterParams(q.AdapterParams)
		if err != nil {
			return Fee{}, err
		}
		gasFee := new(uint256.Int).Mul(params.Gas, uint256.NewInt(m.GasPrice))
		native.Add(native, gasFee)
		if params.NativeForDst != nil {
			native.Add(native, params.NativeForDst)
		}
	}
	fee := Fee{Native: native, AltToken: new(uint256.Int)}
	if q.PayInAltToken {
		if m.AltTokenFee == 0 {
			return Fee{}, ErrAltTokenNotPriced
		}
		fee.AltToken = uint256.NewInt(m.AltTokenFee)
	}
	return fee, nil
}

func (l *Loopback) Dispatch(_ context.Context, d Dispatch) error {
	if len(d.Packet) == 0 {
		return fmt.Errorf("%w: empty packet", ErrInvalidDispatch)
	}
	fee, err := l.quote(FeeQuery{
		SrcEndpoint:   d.SrcEndpoint,
		DstEndpoint:   d.DstEndpoint,
		SrcAddress:    d.SrcAddress,
		Packet:        d.Packet,
		PayInAltToken: !d.AltFeeToken.IsZero(),
		AdapterParams: d.AdapterParams,
	})
	if err != nil {
		return err
	}
	paid := d.NativeFee
	if paid == nil {
		paid = new(uint256.Int)
	}
	if paid.Lt(fee.Native) {
		return fmt.Errorf("%w: paid %s, quote %s", ErrInsufficientFee, paid.Dec(), fee.Native.Dec())
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.endpoints[d.DstEndpoint]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEndpoint, d.DstEndpoint)
	}
	key := pathKey{src: d.SrcEndpoint, dst: d.DstEndpoint, addr: string(d.SrcAddress)}
	last, err := l.lastNonceLocked(key)
	if err != nil {
		return err
	}
	nonce := last + 1

	var buf bytes.Buffer
	err = frame.WriteFrame(&buf, frame.Frame{
		Header: frame.Header{
			Nonce:       nonce,
			SrcEndpoint: d.SrcEndpoint,
			DstEndpoint: d.DstEndpoint,
		},
		Path:    d.SrcAddress,
		Payload: d.Packet,
	}, l.cfg.Limits)
	if err != nil {
		return fmt.Errorf("transport: frame packet: %w", err)
	}

	if l.cfg.Nonces != nil {
		if err := l.cfg.Nonces.Put(nonceStoreKey(key), binary.BigEndian.AppendUint64(nil, nonce)); err != nil {
			return fmt.Errorf("transport: persist nonce: %w", err)
		}
	}
	l.nonces[key] = nonce
	l.queues[key] = append(l.queues[key], buf.Bytes())
	l.collected.Add(l.collected, paid)
	l.cfg.Logger.Debug().
		Uint16("src", d.SrcEndpoint).
		Uint16("dst", d.DstEndpoint).
		Uint64("nonce", nonce).
		Int("bytes", buf.Len()).
		Msg("loopback: queued")
	l.signal()
	return nil
}

// nonceStoreKey encodes a path as u16 src || u16 dst || srcAddress.
func nonceStoreKey(k pathKey) []byte {
	b := make([]byte, 0, 4+len(k.addr))
	b = binary.BigEndian.AppendUint16(b, k.src)
	b = binary.BigEndian.AppendUint16(b, k.dst)
	return append(b, k.addr...)
}

// lastNonceLocked returns the last nonce issued on a path, loading it from the
// nonce store the first time the path is seen.
func (l *Loopback) lastNonceLocked(key pathKey) (uint64, error) {
	if n, ok := l.nonces[key]; ok {
		return n, nil
	}
	if l.cfg.Nonces == nil {
		return 0, nil
	}
	raw, ok, err := l.cfg.Nonces.Get(nonceStoreKey(key))
	if err != nil {
		return 0, fmt.Errorf("transport: load nonce: %w", err)
	}
	if !ok {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("transport: corrupt nonce for %d->%d: %d bytes", key.src, key.dst, len(raw))
	}
	n := binary.BigEndian.Uint64(raw)
	l.nonces[key] = n
	return n, nil
}

// Flush delivers every deliverable queued frame. A failed delivery is stored
// and blocks its path; other paths keep flowing. The returned error joins all
// delivery failures.
func (l *Loopback) Flush(ctx context.Context) (int, error) {
	delivered := 0
	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		key, raw, ok := l.next()
		if !ok {
			return delivered, errors.Join(errs...)
		}
		f, err := frame.ReadFrame(bytes.NewReader(raw), l.cfg.Limits)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrCorruptFrame, err)
			l.mu.Lock()
			l.stored[key] = StoredPayload{
				SrcEndpoint: key.src,
				DstEndpoint: key.dst,
				SrcAddress:  []byte(key.addr),
				Packet:      raw,
				Reason:      err.Error(),
				Attempts:    1,
				corrupt:     true,
			}
			l.mu.Unlock()
			l.cfg.Logger.Error().
				Err(err).
				Uint16("src", key.src).
				Uint16("dst", key.dst).
				Msg("loopback: corrupt frame stored")
			errs = append(errs, err)
			continue
		}
		d := Delivery{
			SrcEndpoint: f.Header.SrcEndpoint,
			DstEndpoint: f.Header.DstEndpoint,
			SrcAddress:  f.Path,
			Nonce:       f.Header.Nonce,
			Packet:      f.Payload,
		}
		if err := l.deliver(ctx, d); err != nil {
			l.mu.Lock()
			sp := StoredPayload{
				SrcEndpoint: d.SrcEndpoint,
				DstEndpoint: d.DstEndpoint,
				SrcAddress:  d.SrcAddress,
				Nonce:       d.Nonce,
				Packet:      d.Packet,
			}
			l.stored[key] = l.recordFailureLocked(sp, err)
			l.mu.Unlock()
			l.cfg.Logger.Warn().
				Err(err).
				Uint16("src", d.SrcEndpoint).
				Uint16("dst", d.DstEndpoint).
				Uint64("nonce", d.Nonce).
				Msg("loopback: payload stored")
			errs = append(errs, err)
			continue
		}
		delivered++
	}
}

// next pops the head frame of the first unblocked path.
func (l *Loopback) next() (pathKey, []byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]pathKey, 0, len(l.queues))
	for k, q := range l.queues {
		if len(q) == 0 {
			continue
		}
		if _, blocked := l.stored[k]; blocked {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return pathKey{}, nil, false
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	k := keys[0]
	raw := l.queues[k][0]
	l.queues[k] = l.queues[k][1:]
	if len(l.queues[k]) == 0 {
		delete(l.queues, k)
	}
	return k, raw, true
}

func (l *Loopback) deliver(ctx context.Context, d Delivery) error {
	l.mu.Lock()
	in, ok := l.endpoints[d.DstEndpoint]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEndpoint, d.DstEndpoint)
	}
	if err := in.Receive(ctx, d); err != nil {
		return fmt.Errorf("%w: %d->%d nonce %d: %w", ErrDeliveryFailed, d.SrcEndpoint, d.DstEndpoint, d.Nonce, err)
	}
	return nil
}

// RetryPayload redelivers the stored payload blocking a path. On success the
// path is unblocked and later frames flow on the next Flush. A payload already
// being redelivered is ErrRedeliveryInFlight.
func (l *Loopback) RetryPayload(ctx context.Context, src, dst uint16, srcAddress, packet []byte) error {
	key := pathKey{src: src, dst: dst, addr: string(srcAddress)}
	l.mu.Lock()
	sp, ok := l.stored[key]
	switch {
	case !ok:
		l.mu.Unlock()
		return ErrNoStoredPayload
	case !bytes.Equal(sp.Packet, packet):
		l.mu.Unlock()
		return ErrPayloadMismatch
	case sp.corrupt:
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCorruptFrame, sp.Reason)
	case sp.inFlight:
		l.mu.Unlock()
		return ErrRedeliveryInFlight
	}
	sp.inFlight = true
	l.stored[key] = sp
	l.mu.Unlock()
	return l.redeliver(ctx, key, sp)
}

// RedeliverDue retries every stored payload whose backoff has elapsed and
// returns how many were delivered.
func (l *Loopback) RedeliverDue(ctx context.Context) int {
	l.mu.Lock()
	now := l.now()
	keys := make([]pathKey, 0, len(l.stored))
	for k, sp := range l.stored {
		if sp.inFlight || sp.corrupt || sp.NextAttempt.IsZero() {
			continue
		}
		if !now.Before(sp.NextAttempt) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	due := make([]StoredPayload, len(keys))
	for i, k := range keys {
		sp := l.stored[k]
		sp.inFlight = true
		l.stored[k] = sp
		due[i] = sp
	}
	l.mu.Unlock()

	delivered := 0
	for i, k := range keys {
		if ctx.Err() != nil {
			l.release(keys[i:])
			break
		}
		if err := l.redeliver(ctx, k, due[i]); err != nil {
			l.cfg.Logger.Debug().Err(err).Uint64("nonce", due[i].Nonce).Msg("loopback: redelivery failed")
			continue
		}
		delivered++
	}
	return delivered
}

// release clears the in-flight mark on payloads that were claimed but never
// attempted.
func (l *Loopback) release(keys []pathKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		if sp, ok := l.stored[k]; ok {
			sp.inFlight = false
			l.stored[k] = sp
		}
	}
}

func (l *Loopback) redeliver(ctx context.Context, key pathKey, sp StoredPayload) error {
	d := Delivery{
		SrcEndpoint: sp.SrcEndpoint,
		DstEndpoint: sp.DstEndpoint,
		SrcAddress:  sp.SrcAddress,
		Nonce:       sp.Nonce,
		Packet:      sp.Packet,
	}
	if err := l.deliver(ctx, d); err != nil {
		l.mu.Lock()
		if cur, ok := l.stored[key]; ok && cur.Nonce == sp.Nonce {
			cur = l.recordFailureLocked(cur, err)
			cur.inFlight = false
			l.stored[key] = cur
		}
		l.mu.Unlock()
		l.signal()
		return err
	}
	l.mu.Lock()
	delete(l.stored, key)
	l.mu.Unlock()
	l.cfg.Logger.Info().
		Uint16("src", sp.SrcEndpoint).
		Uint16("dst", sp.DstEndpoint).
		Uint64("nonce", sp.Nonce).
		Msg("loopback: stored payload delivered")
	l.signal()
	return nil
}

// recordFailureLocked bumps the attempt count and schedules the next
// redelivery when automatic redelivery is enabled.
func (l *Loopback) recordFailureLocked(sp StoredPayload, err error) StoredPayload {
	sp.Reason = err.Error()
	sp.Attempts++
	sp.NextAttempt = time.Time{}
	if l.cfg.Redeliver.Enabled() {
		sp.NextAttempt = l.now().Add(NextBackoffDelay(l.cfg.Redeliver, sp.Attempts, l.rng))
	}
	return sp
}

// nextRedelivery reports the earliest scheduled redelivery.
func (l *Loopback) nextRedelivery() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var next time.Time
	for _, sp := range l.stored {
		if sp.inFlight || sp.NextAttempt.IsZero() {
			continue
		}
		if next.IsZero() || sp.NextAttempt.Before(next) {
			next = sp.NextAttempt
		}
	}
	return next, !next.IsZero()
}

// StoredPayloads lists blocked paths ordered by path.
func (l *Loopback) StoredPayloads() []StoredPayload {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]pathKey, 0, len(l.stored))
	for k := range l.stored {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	out := make([]StoredPayload, 0, len(keys))
	for _, k := range keys {
		out = append(out, l.stored[k])
	}
	return out
}

// Pending reports how many frames are queued across all paths.
func (l *Loopback) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, q := range l.queues {
		n += len(q)
	}
	return n
}

// Collected is the total native fee accepted by Dispatch.
func (l *Loopback) Collected() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collected.Clone()
}

// Run flushes queued frames each time Dispatch signals until ctx is done.
// With Redeliver set it also retries stored payloads as their backoff expires.
func (l *Loopback) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	for {
		if next, ok := l.nextRedelivery(); ok {
			timer.Reset(max(time.Until(next), 0))
		} else {
			timer.Stop()
		}
		select {
		case <-ctx.Done():
			return
		case <-l.notify:
			if n, err := l.Flush(ctx); err != nil && ctx.Err() == nil {
				l.cfg.Logger.Warn().Err(err).Int("delivered", n).Msg("loopback: flush incomplete")
			}
		case <-timer.C:
			l.RedeliverDue(ctx)
		}
	}
}

func (l *Loopback) signal() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}
