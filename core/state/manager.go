package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"fixedswap/storage"
)

// Manager layers a journaled write cache over a key-value database. All
// mutations land in memory first; Snapshot/RevertToSnapshot roll back to an
// earlier point and Commit flushes the surviving writes in a single batch.
//
// Manager is not safe for concurrent use. Callers serialise access, one
// operation at a time, in the same way a block executor applies transactions.
type Manager struct {
	db      storage.Database
	dirty   map[string]dirtyValue
	journal []journalEntry
}

type dirtyValue struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    dirtyValue
	hadPrev bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]dirtyValue)}
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot undoes every write recorded after the snapshot was taken.
// Reverting to an unknown or already discarded snapshot is a no-op.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.hadPrev {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	m.journal = m.journal[:id]
}

// Commit writes all pending changes to the database atomically and clears the
// journal.
func (m *Manager) Commit() error {
	if len(m.dirty) == 0 {
		m.journal = m.journal[:0]
		return nil
	}
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := m.db.NewBatch()
	for _, k := range keys {
		entry := m.dirty[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.dirty = make(map[string]dirtyValue)
	m.journal = m.journal[:0]
	return nil
}

// Discard drops every uncommitted change.
func (m *Manager) Discard() {
	m.dirty = make(map[string]dirtyValue)
	m.journal = m.journal[:0]
}

// Pending reports the number of keys with uncommitted changes.
func (m *Manager) Pending() int {
	return len(m.dirty)
}

func (m *Manager) record(key string) {
	prev, ok := m.dirty[key]
	m.journal = append(m.journal, journalEntry{key: key, prev: prev, hadPrev: ok})
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	if entry, ok := m.dirty[string(key)]; ok {
		if entry.deleted {
			return nil, false, nil
		}
		return entry.value, true, nil
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *Manager) put(key, value []byte) {
	k := string(key)
	m.record(k)
	m.dirty[k] = dirtyValue{value: append([]byte(nil), value...)}
}

func (m *Manager) delete(key []byte) {
	k := string(key)
	m.record(k)
	m.dirty[k] = dirtyValue{deleted: true}
}

// keys merges committed and pending keys under prefix, in lexical order.
func (m *Manager) keys(prefix []byte) ([][]byte, error) {
	stored, err := m.db.Keys(prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(stored))
	merged := make([]string, 0, len(stored))
	for _, k := range stored {
		key := string(k)
		if entry, ok := m.dirty[key]; ok && entry.deleted {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, key)
	}
	for k, entry := range m.dirty {
		if entry.deleted || !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		merged = append(merged, k)
	}
	sort.Strings(merged)
	out := make([][]byte, len(merged))
	for i, k := range merged {
		out[i] = []byte(k)
	}
	return out, nil
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.put(key, encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.get(key)
	if err != nil {
		return false, err
	}
	if !ok || len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key from state.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.delete(key)
	return nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	var list [][]byte
	if _, err := m.KVGet(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return m.KVPut(key, list)
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice to avoid nil
// surprises for callers.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Slice {
		return fmt.Errorf("kv: destination must point to a slice")
	}
	ok, err := m.KVGet(key, out)
	if err != nil {
		return err
	}
	if !ok {
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
	}
	return nil
}
