package bridge

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/danmuck/bridgectl/internal/store"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

func TestFailedKeyLayout(t *testing.T) {
	k := FailedKey{Src: 0x0102, SrcAddress: []byte{0xaa, 0xbb}, Nonce: 7}
	want := []byte{0x01, 0x02, 0x02, 0xaa, 0xbb, 0, 0, 0, 0, 0, 0, 0, 0x07}
	if got := k.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("key layout: got %x, want %x", got, want)
	}
	parsed, err := parseFailedKey(want)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Src != k.Src || !bytes.Equal(parsed.SrcAddress, k.SrcAddress) || parsed.Nonce != k.Nonce {
		t.Fatalf("parsed key mismatch: %+v", parsed)
	}
	if _, err := parseFailedKey(want[:5]); err == nil {
		t.Fatalf("expected error for short key")
	}
}

func TestCommitmentHashLayout(t *testing.T) {
	from := []byte{0x01, 0x02}
	to := account.MustParseAddress("0x00000000000000000000000000000000000000ff")
	amount := uint256.NewInt(1_000_000)
	payload := []byte("abc")

	preimage, _ := hex.DecodeString(
		"02" + "0102" +
			"00000000000000000000000000000000000000ff" +
			"00000000000000000000000000000000000000000000000000000000000f4240" +
			"00000003" + "616263")
	d := sha3.NewLegacyKeccak256()
	d.Write(preimage)
	var want Hash
	copy(want[:], d.Sum(nil))

	if got := CommitmentHash(from, to, amount, payload); got != want {
		t.Fatalf("hash: got %s, want %s", got, want)
	}
	if CommitmentHash(from, to, uint256.NewInt(1_000_001), payload) == want {
		t.Fatalf("amount must be committed")
	}
	// field boundaries are length-prefixed
	if CommitmentHash([]byte{0x01}, to, amount, payload) == CommitmentHash([]byte{0x01, 0x00}, to, amount, payload) {
		t.Fatalf("from length must be committed")
	}
}

func TestFailedTableTake(t *testing.T) {
	table := NewFailedTable(store.NewMemory())
	k := FailedKey{Src: 1, SrcAddress: []byte{0x01}, Nonce: 3}
	h := Hash{0x01}

	if err := table.Take(k, h); !errors.Is(err, ErrNoFailedMessage) {
		t.Fatalf("expected ErrNoFailedMessage, got %v", err)
	}
	if err := table.Put(k, h); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := table.Take(k, Hash{0x02}); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
	if _, ok, _ := table.Get(k); !ok {
		t.Fatalf("mismatch must keep the record")
	}
	if err := table.Take(k, h); err != nil {
		t.Fatalf("take: %v", err)
	}
	if err := table.Take(k, h); !errors.Is(err, ErrNoFailedMessage) {
		t.Fatalf("second take: expected ErrNoFailedMessage, got %v", err)
	}
}

func TestFailedTableListIgnoresMarkers(t *testing.T) {
	table := NewFailedTable(store.NewMemory())
	a := FailedKey{Src: 1, SrcAddress: []byte{0x01}, Nonce: 2}
	b := FailedKey{Src: 1, SrcAddress: []byte{0x01}, Nonce: 1}
	for _, k := range []FailedKey{a, b} {
		if err := table.Put(k, Hash{byte(k.Nonce)}); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := table.MarkCredited(k); err != nil {
			t.Fatalf("mark: %v", err)
		}
	}
	if err := table.AddStuck(uint256.NewInt(9)); err != nil {
		t.Fatalf("add stuck: %v", err)
	}

	recs, err := table.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 || recs[0].Key.Nonce != 1 || recs[1].Key.Nonce != 2 {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if ok, _ := table.Credited(a); !ok {
		t.Fatalf("credited marker missing")
	}
	if err := table.UnmarkCredited(a); err != nil {
		t.Fatalf("unmark: %v", err)
	}
	if ok, _ := table.Credited(a); ok {
		t.Fatalf("credited marker not removed")
	}
	if err := table.SubStuck(uint256.NewInt(10)); !errors.Is(err, ErrRecoverTooLarge) {
		t.Fatalf("expected ErrRecoverTooLarge, got %v", err)
	}
	if stuck, _ := table.Stuck(); stuck.Uint64() != 9 {
		t.Fatalf("stuck changed by rejected sub: %s", stuck.Dec())
	}
}
