package bridge

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/danmuck/bridgectl/internal/decimals"
	"github.com/danmuck/bridgectl/internal/ledger"
	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/danmuck/bridgectl/internal/testutil/testlog"
	"github.com/danmuck/bridgectl/internal/transport"
	"github.com/holiman/uint256"
)

type captureTransport struct {
	dispatched []transport.Dispatch
	err        error
}

func (c *captureTransport) EstimateFee(context.Context, transport.FeeQuery) (transport.Fee, error) {
	return transport.Fee{Native: new(uint256.Int), AltToken: new(uint256.Int)}, nil
}

func (c *captureTransport) Dispatch(_ context.Context, d transport.Dispatch) error {
	if c.err != nil {
		return c.err
	}
	c.dispatched = append(c.dispatched, d)
	return nil
}

func newSoloBridge(t *testing.T, led ledger.Ledger, tr transport.Transport, opts ...func(*Config)) (*Bridge, *Recorder) {
	t.Helper()
	testlog.Start(t)
	conv, err := decimals.NewConverter(18, 6)
	if err != nil {
		t.Fatalf("converter: %v", err)
	}
	events := &Recorder{}
	cfg := Config{
		Endpoint:  endpointA,
		Address:   bridgeA,
		Converter: conv,
		Ledger:    led,
		Transport: tr,
		Sink:      events,
		Logger:    testlog.Logger(t),
		Policy:    Policy{TrustedRemotes: map[uint16][]byte{endpointB: bridgeB.Bytes()}},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	return b, events
}

func withMinGas(custom bool, min map[protocol.PacketType]uint64) func(*Config) {
	return func(c *Config) {
		c.Policy.UseCustomAdapterParams = custom
		c.Policy.MinDstGas = map[uint16]map[protocol.PacketType]uint64{
			endpointA: min,
			endpointB: min,
		}
	}
}

func TestSendRemovesDustAndDelivers(t *testing.T) {
	env := newTestEnv(t, transport.FeeModel{})
	ctx := context.Background()
	start := new(uint256.Int).Add(units(10), u(12345))
	env.ledgerA.Mint(alice, start)

	actual, err := env.a.Send(ctx, SendParams{
		From:        alice,
		DstEndpoint: endpointB,
		To:          bob.Bytes(),
		Amount:      new(uint256.Int).Add(units(3), u(777)),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !actual.Eq(units(3)) {
		t.Fatalf("expected dust-free actual %s, got %s", units(3).Dec(), actual.Dec())
	}
	// dust stays with the sender
	assertBalance(t, env.ledgerA, alice, new(uint256.Int).Add(units(7), u(12345)))
	if !env.ledgerA.TotalSupply().Eq(new(uint256.Int).Add(units(7), u(12345))) {
		t.Fatalf("mint/burn ledger should burn the debit, supply=%s", env.ledgerA.TotalSupply().Dec())
	}

	env.flush()
	assertBalance(t, env.ledgerB, bob, units(3))
	assertKinds(t, env.eventsA, "send_to_endpoint")
	assertKinds(t, env.eventsB, "receive_from_endpoint")

	sent := lastEvent[SendToEndpoint](t, env.eventsA)
	if sent.Dst != endpointB || sent.From != alice || !bytes.Equal(sent.To, bob.Bytes()) || !sent.Amount.Eq(units(3)) {
		t.Fatalf("unexpected send event: %+v", sent)
	}
}

func TestSendRejectsBeforeDebit(t *testing.T) {
	env := newTestEnv(t, transport.FeeModel{})
	ctx := context.Background()
	env.ledgerA.Mint(alice, units(5))

	cases := []struct {
		name     string
		params   SendParams
		want     error
		category error
	}{
		{
			name:     "adapter params supplied while custom params disabled",
			params:   SendParams{From: alice, DstEndpoint: endpointB, To: bob.Bytes(), Amount: units(1), AdapterParams: protocol.EncodeAdapterParamsV1(1)},
			want:     ErrAdapterParamsNotEmpty,
			category: ErrConfiguration,
		},
		{
			name:     "destination without trusted remote",
			params:   SendParams{From: alice, DstEndpoint: 9, To: bob.Bytes(), Amount: units(1)},
			want:     ErrUntrustedRemote,
			category: ErrConfiguration,
		},
		{
			name:     "amount below one shared unit",
			params:   SendParams{From: alice, DstEndpoint: endpointB, To: bob.Bytes(), Amount: u(999_999_999_999)},
			want:     ErrAmountTooSmall,
			category: ErrAccounting,
		},
		{
			name:     "nil amount",
			params:   SendParams{From: alice, DstEndpoint: endpointB, To: bob.Bytes()},
			want:     ErrAmountTooSmall,
			category: ErrAccounting,
		},
		{
			name:     "insufficient balance",
			params:   SendParams{From: alice, DstEndpoint: endpointB, To: bob.Bytes(), Amount: units(6)},
			want:     ledger.ErrInsufficientBalance,
			category: ErrAccounting,
		},
		{
			name:     "receiver field too long",
			params:   SendParams{From: alice, DstEndpoint: endpointB, To: make([]byte, 256), Amount: units(1)},
			want:     protocol.ErrFieldTooLong,
			category: ErrConfiguration,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.a.Send(ctx, tc.params)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if got := Category(err); got != tc.category {
				t.Fatalf("expected category %v, got %v", tc.category, got)
			}
			assertBalance(t, env.ledgerA, alice, units(5))
		})
	}
	if env.net.Pending() != 0 || len(env.eventsA.Events()) != 0 {
		t.Fatalf("rejected sends must not dispatch or emit: pending=%d events=%v", env.net.Pending(), env.eventsA.Kinds())
	}
}

func TestSendCustomAdapterParams(t *testing.T) {
	ctx := context.Background()

	t.Run("min gas not set", func(t *testing.T) {
		led := ledger.NewMemory(ledger.MemoryConfig{})
		led.Mint(alice, units(5))
		b, _ := newSoloBridge(t, led, &captureTransport{}, func(c *Config) { c.Policy.UseCustomAdapterParams = true })
		_, err := b.Send(ctx, SendParams{From: alice, DstEndpoint: endpointB, To: bob.Bytes(), Amount: units(1), AdapterParams: protocol.EncodeAdapterParamsV1(500_000)})
		if !errors.Is(err, ErrMinGasNotSet) {
			t.Fatalf("expected ErrMinGasNotSet, got %v", err)
		}
	})

	t.Run("gas checks", func(t *testing.T) {
		led := ledger.NewMemory(ledger.MemoryConfig{})
		led.Mint(alice, units(5))
		tr := &captureTransport{}
		b, _ := newSoloBridge(t, led, tr, withMinGas(true, map[protocol.PacketType]uint64{
			protocol.PTSend:        100_000,
			protocol.PTSendAndCall: 100_000,
		}))

		send := SendParams{From: alice, DstEndpoint: endpointB, To: bob.Bytes(), Amount: units(1)}

		send.AdapterParams = protocol.EncodeAdapterParamsV1(99_999)
		if _, err := b.Send(ctx, send); !errors.Is(err, ErrGasTooLow) {
			t.Fatalf("expected ErrGasTooLow, got %v", err)
		}
		send.AdapterParams = []byte{0x00, 0x09}
		if _, err := b.Send(ctx, send); !errors.Is(err, protocol.ErrInvalidAdapterParams) || Category(err) != ErrConfiguration {
			t.Fatalf("expected configuration ErrInvalidAdapterParams, got %v", err)
		}
		send.AdapterParams = protocol.EncodeAdapterParamsV1(100_000)
		if _, err := b.Send(ctx, send); err != nil {
			t.Fatalf("send at min gas: %v", err)
		}

		// extra gas for the callback is added to the minimum
		call := SendAndCallParams{SendParams: send, Payload: []byte("hi"), DstGasForCall: 50_000}
		call.AdapterParams = protocol.EncodeAdapterParamsV1(149_999)
		if _, err := b.SendAndCall(ctx, call); !errors.Is(err, ErrGasTooLow) {
			t.Fatalf("expected ErrGasTooLow for callback budget, got %v", err)
		}
		call.AdapterParams = protocol.EncodeAdapterParamsV2(150_000, u(5), bob.Bytes())
		if _, err := b.SendAndCall(ctx, call); err != nil {
			t.Fatalf("send and call: %v", err)
		}
		if len(tr.dispatched) != 2 || !bytes.Equal(tr.dispatched[1].AdapterParams, call.AdapterParams) {
			t.Fatalf("custom params should pass through to the transport: %+v", tr.dispatched)
		}
		assertBalance(t, led, alice, units(3))
	})
}

func TestSendAndCallEncodesCallerAndDefaultParams(t *testing.T) {
	led := ledger.NewMemory(ledger.MemoryConfig{})
	led.Mint(alice, units(5))
	tr := &captureTransport{}
	b, events := newSoloBridge(t, led, tr, withMinGas(false, map[protocol.PacketType]uint64{
		protocol.PTSendAndCall: 200_000,
	}))

	_, err := b.SendAndCall(context.Background(), SendAndCallParams{
		SendParams:    SendParams{From: alice, DstEndpoint: endpointB, To: bob.Bytes(), Amount: units(2), RefundAddress: alice},
		Caller:        relayer,
		Payload:       []byte("deposit"),
		DstGasForCall: 50_000,
	})
	if err != nil {
		t.Fatalf("send and call: %v", err)
	}
	if len(tr.dispatched) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(tr.dispatched))
	}
	d := tr.dispatched[0]
	if !bytes.Equal(d.AdapterParams, protocol.EncodeAdapterParamsV1(250_000)) {
		t.Fatalf("expected default params with callback gas, got %x", d.AdapterParams)
	}
	if d.SrcEndpoint != endpointA || d.DstEndpoint != endpointB || !bytes.Equal(d.SrcAddress, bridgeA.Bytes()) || d.RefundAddress != alice {
		t.Fatalf("unexpected dispatch routing: %+v", d)
	}
	p, err := protocol.DecodeSendAndCall(d.Packet)
	if err != nil {
		t.Fatalf("decode dispatched packet: %v", err)
	}
	if !bytes.Equal(p.From, relayer.Bytes()) || !bytes.Equal(p.To, bob.Bytes()) || p.AmountSD != 2 ||
		string(p.Payload) != "deposit" || p.DstGasForCall != 50_000 {
		t.Fatalf("unexpected packet: %+v", p)
	}
	// the owner pays even though the caller is encoded
	assertBalance(t, led, alice, units(3))
	assertKinds(t, events, "send_to_endpoint")
}

func TestSendReportsActualDebitForFeeOnTransfer(t *testing.T) {
	lockbox := bridgeA
	led := ledger.NewMemory(ledger.MemoryConfig{Mode: ledger.ModeLockbox, Lockbox: lockbox, FeeBps: 100, FeeCollector: carol})
	led.Mint(alice, units(200))
	tr := &captureTransport{}
	b, _ := newSoloBridge(t, led, tr)

	actual, err := b.Send(context.Background(), SendParams{From: alice, DstEndpoint: endpointB, To: bob.Bytes(), Amount: units(100)})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !actual.Eq(units(99)) {
		t.Fatalf("expected actual after 1%% fee %s, got %s", units(99).Dec(), actual.Dec())
	}
	p, err := protocol.DecodeSend(tr.dispatched[0].Packet)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.AmountSD != 99 {
		t.Fatalf("packet must carry the actual amount, got %d", p.AmountSD)
	}
	assertBalance(t, led, lockbox, units(99))
	assertBalance(t, led, carol, units(1))
}

func TestSendRevertsDebitWhenLaterStepsFail(t *testing.T) {
	env := newTestEnv(t, transport.FeeModel{Base: 100}, func(c *Config) {
		c.Policy.PayloadSizeLimit = map[uint16]int{endpointA: 64, endpointB: 64}
	})
	ctx := context.Background()
	env.ledgerA.Mint(alice, units(5))

	_, err := env.a.Send(ctx, SendParams{From: alice, DstEndpoint: endpointB, To: bob.Bytes(), Amount: units(1), NativeFee: u(99)})
	if !errors.Is(err, transport.ErrInsufficientFee) {
		t.Fatalf("expected ErrInsufficientFee, got %v", err)
	}
	assertBalance(t, env.ledgerA, alice, units(5))
	if !env.ledgerA.TotalSupply().Eq(units(5)) {
		t.Fatalf("burn must be reverted, supply=%s", env.ledgerA.TotalSupply().Dec())
	}

	_, err = env.a.SendAndCall(ctx, SendAndCallParams{
		SendParams: SendParams{From: alice, DstEndpoint: endpointB, To: bob.Bytes(), Amount: units(1), NativeFee: u(1_000)},
		Payload:    make([]byte, 100),
	})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	assertBalance(t, env.ledgerA, alice, units(5))

	if _, err := env.a.Send(ctx, SendParams{From: alice, DstEndpoint: endpointB, To: bob.Bytes(), Amount: units(1), NativeFee: u(100)}); err != nil {
		t.Fatalf("send with exact fee: %v", err)
	}
	assertBalance(t, env.ledgerA, alice, units(4))
	assertKinds(t, env.eventsA, "send_to_endpoint")
}

func TestEstimateFees(t *testing.T) {
	env := newTestEnv(t, transport.FeeModel{Base: 10, PerByte: 1, AltTokenFee: 3})
	ctx := context.Background()

	fee, err := env.a.EstimateSendFee(ctx, EstimateParams{DstEndpoint: endpointB, To: bob.Bytes(), Amount: units(1)})
	if err != nil {
		t.Fatalf("estimate send: %v", err)
	}
	// 1 type + 1 len + 20 to + 8 amount
	if fee.Native.Uint64() != 40 {
		t.Fatalf("unexpected send fee %s", fee.Native.Dec())
	}

	fee, err = env.a.EstimateSendAndCallFee(ctx, EstimateParams{
		DstEndpoint:   endpointB,
		To:            bob.Bytes(),
		Amount:        units(1),
		From:          alice,
		Payload:       []byte("hello"),
		DstGasForCall: 1,
		UseAltToken:   true,
	})
	if err != nil {
		t.Fatalf("estimate send and call: %v", err)
	}
	// 30 + 1 len + 20 from + 1 len + 5 payload + 8 gas
	if fee.Native.Uint64() != 75 || fee.AltToken.Uint64() != 3 {
		t.Fatalf("unexpected send and call fee native=%s alt=%s", fee.Native.Dec(), fee.AltToken.Dec())
	}

	huge := new(uint256.Int).Lsh(u(1), 200)
	if _, err := env.a.EstimateSendFee(ctx, EstimateParams{DstEndpoint: endpointB, To: bob.Bytes(), Amount: huge}); !errors.Is(err, decimals.ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}
