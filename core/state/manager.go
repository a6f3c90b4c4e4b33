package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"swapledger/storage"
)

// KV is the keyed value access shared by the committed store, journals and
// namespaces. Values are RLP encoded.
type KV interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Manager provides read access to committed state and opens journals for
// state-mutating invocations.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// kvKey hashes user keys with keccak256 so arbitrary key material maps onto a
// fixed-width keyspace.
func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func decodeValue(data []byte, out interface{}) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode: %w", err)
	}
	return true, nil
}

// KVGet retrieves the committed value stored under key and decodes it into out.
// The boolean reports whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kv: read: %w", err)
	}
	return decodeValue(data, out)
}

// KVPut writes directly to the committed store. Invocation paths go through a
// Journal instead; this is intended for bootstrapping and tests.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVDelete removes a committed key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.db.Delete(kvKey(key))
}

// Begin opens a journal over the committed state.
func (m *Manager) Begin() *Journal {
	return &Journal{db: m.db, dirty: make(map[string]journalEntry)}
}
