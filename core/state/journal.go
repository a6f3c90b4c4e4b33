package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"swapledger/storage"
)

// ErrJournalClosed is returned when a journal is used after Commit or Discard.
var ErrJournalClosed = errors.New("kv: journal closed")

type journalEntry struct {
	value   []byte
	deleted bool
}

// Journal buffers writes made during one invocation. Reads observe buffered
// writes first and fall back to committed state. Nothing reaches the database
// until Commit, which applies every buffered write in a single batch.
//
// Journal is not safe for concurrent use.
type Journal struct {
	db     storage.Database
	dirty  map[string]journalEntry
	order  []string
	closed bool
}

func (j *Journal) KVGet(key []byte, out interface{}) (bool, error) {
	if j.closed {
		return false, ErrJournalClosed
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	if entry, ok := j.dirty[string(hashed)]; ok {
		if entry.deleted {
			return false, nil
		}
		return decodeValue(entry.value, out)
	}
	data, err := j.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kv: read: %w", err)
	}
	return decodeValue(data, out)
}

func (j *Journal) KVPut(key []byte, value interface{}) error {
	if j.closed {
		return ErrJournalClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("kv: encode: %w", err)
	}
	j.record(kvKey(key), journalEntry{value: encoded})
	return nil
}

func (j *Journal) KVDelete(key []byte) error {
	if j.closed {
		return ErrJournalClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	j.record(kvKey(key), journalEntry{deleted: true})
	return nil
}

func (j *Journal) record(hashed []byte, entry journalEntry) {
	k := string(hashed)
	if _, seen := j.dirty[k]; !seen {
		j.order = append(j.order, k)
	}
	j.dirty[k] = entry
}

// Dirty reports how many distinct keys the journal will write.
func (j *Journal) Dirty() int {
	return len(j.order)
}

// Commit flushes the buffered writes in one batch and closes the journal. On a
// failed write the journal is still closed and the database is left as the
// batch implementation guarantees (untouched for MemDB and LevelDB).
func (j *Journal) Commit() error {
	if j.closed {
		return ErrJournalClosed
	}
	j.closed = true
	if len(j.order) == 0 {
		return nil
	}
	batch := j.db.NewBatch()
	for _, k := range j.order {
		entry := j.dirty[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("kv: commit: %w", err)
	}
	return nil
}

// Discard drops every buffered write. Calling it after Commit is a no-op.
func (j *Journal) Discard() {
	j.closed = true
	j.dirty = nil
	j.order = nil
}
