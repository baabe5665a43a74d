package bridge

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/danmuck/bridgectl/internal/store"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// HashLength is the size of a commitment hash.
const HashLength = 32

// Hash commits to the material facts of a failed callback.
type Hash [HashLength]byte

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// CommitmentHash is keccak256 over
// len(from) || from || to || amount (32 bytes BE) || len(payload) (u32 BE) || payload.
func CommitmentHash(from []byte, to account.Address, amount *uint256.Int, payload []byte) Hash {
	if amount == nil {
		amount = new(uint256.Int)
	}
	d := sha3.NewLegacyKeccak256()
	d.Write([]byte{byte(len(from))})
	d.Write(from)
	d.Write(to[:])
	amt := amount.Bytes32()
	d.Write(amt[:])
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(payload)))
	d.Write(n[:])
	d.Write(payload)
	var h Hash
	d.Sum(h[:0])
	return h
}

// FailedKey identifies one inbound packet by its transport path and nonce.
type FailedKey struct {
	Src        uint16
	SrcAddress []byte
	Nonce      uint64
}

// Bytes encodes the key as u16 src || u8 len || srcAddress || u64 nonce.
func (k FailedKey) Bytes() []byte {
	b := make([]byte, 0, 2+1+len(k.SrcAddress)+8)
	b = binary.BigEndian.AppendUint16(b, k.Src)
	b = append(b, byte(len(k.SrcAddress)))
	b = append(b, k.SrcAddress...)
	return binary.BigEndian.AppendUint64(b, k.Nonce)
}

func parseFailedKey(b []byte) (FailedKey, error) {
	if len(b) < 3 {
		return FailedKey{}, fmt.Errorf("bridge: failed key too short: %d", len(b))
	}
	n := int(b[2])
	if len(b) != 3+n+8 {
		return FailedKey{}, fmt.Errorf("bridge: failed key length %d does not match address length %d", len(b), n)
	}
	return FailedKey{
		Src:        binary.BigEndian.Uint16(b[0:2]),
		SrcAddress: bytes.Clone(b[3 : 3+n]),
		Nonce:      binary.BigEndian.Uint64(b[3+n:]),
	}, nil
}

// FailedRecord is one callback awaiting retry.
type FailedRecord struct {
	Key  FailedKey
	Hash Hash
}

const (
	prefixFailed   byte = 0x01
	prefixCredited byte = 0x02
	prefixStuck    byte = 0x03
)

// FailedTable is the failed-callback table plus the per-packet credited
// markers, namespaced inside one store.KV.
type FailedTable struct {
	mu sync.Mutex
	kv store.KV
}

func NewFailedTable(kv store.KV) *FailedTable {
	return &FailedTable{kv: kv}
}

func failedStoreKey(k FailedKey) []byte {
	return append([]byte{prefixFailed}, k.Bytes()...)
}

func creditedStoreKey(k FailedKey) []byte {
	return append([]byte{prefixCredited}, k.Bytes()...)
}

func (t *FailedTable) Get(k FailedKey) (Hash, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getLocked(k)
}

func (t *FailedTable) getLocked(k FailedKey) (Hash, bool, error) {
	raw, ok, err := t.kv.Get(failedStoreKey(k))
	if err != nil || !ok {
		return Hash{}, false, err
	}
	if len(raw) != HashLength {
		return Hash{}, false, fmt.Errorf("bridge: corrupt failed record for nonce %d: %d bytes", k.Nonce, len(raw))
	}
	var h Hash
	copy(h[:], raw)
	return h, true, nil
}

// Put stores or overwrites the record for k.
func (t *FailedTable) Put(k FailedKey, h Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kv.Put(failedStoreKey(k), h[:])
}

// Take deletes the record for k if it holds h. A missing record is
// ErrNoFailedMessage; a different hash is ErrHashMismatch and the record is
// kept.
func (t *FailedTable) Take(k FailedKey, h Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	stored, ok, err := t.getLocked(k)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoFailedMessage
	}
	if stored != h {
		return ErrHashMismatch
	}
	return t.kv.Delete(failedStoreKey(k))
}

// List returns every record ordered by key.
func (t *FailedTable) List() ([]FailedRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries, err := t.kv.List([]byte{prefixFailed})
	if err != nil {
		return nil, err
	}
	out := make([]FailedRecord, 0, len(entries))
	for _, e := range entries {
		key, err := parseFailedKey(e.Key[1:])
		if err != nil {
			return nil, err
		}
		if len(e.Value) != HashLength {
			return nil, fmt.Errorf("bridge: corrupt failed record for nonce %d: %d bytes", key.Nonce, len(e.Value))
		}
		rec := FailedRecord{Key: key}
		copy(rec.Hash[:], e.Value)
		out = append(out, rec)
	}
	return out, nil
}

func (t *FailedTable) Credited(k FailedKey) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok, err := t.kv.Get(creditedStoreKey(k))
	return ok, err
}

func (t *FailedTable) MarkCredited(k FailedKey) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kv.Put(creditedStoreKey(k), []byte{1})
}

func (t *FailedTable) UnmarkCredited(k FailedKey) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kv.Delete(creditedStoreKey(k))
}

// Stuck is the escrowed amount with no retry path.
func (t *FailedTable) Stuck() (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stuckLocked()
}

func (t *FailedTable) stuckLocked() (*uint256.Int, error) {
	raw, ok, err := t.kv.Get([]byte{prefixStuck})
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func (t *FailedTable) AddStuck(delta *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, err := t.stuckLocked()
	if err != nil {
		return err
	}
	return t.putStuckLocked(cur.Add(cur, delta))
}

// SubStuck lowers the stuck total. Lowering below zero is ErrRecoverTooLarge.
func (t *FailedTable) SubStuck(delta *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, err := t.stuckLocked()
	if err != nil {
		return err
	}
	if cur.Lt(delta) {
		return fmt.Errorf("%w: stuck %s, requested %s", ErrRecoverTooLarge, cur.Dec(), delta.Dec())
	}
	return t.putStuckLocked(cur.Sub(cur, delta))
}

func (t *FailedTable) putStuckLocked(v *uint256.Int) error {
	b := v.Bytes32()
	return t.kv.Put([]byte{prefixStuck}, b[:])
}
