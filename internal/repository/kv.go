package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gridline-labs/gridboard/internal/entity"
)

// ErrKeyNotFound is returned by KV.Get for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// KV is a minimal string key-value store. MemoryKV backs tests and ephemeral
// sessions; FileKV persists one file per key.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

const (
	entityKeyPrefix = "widget_entity_"
	indexKey        = "widget_entity_index"
)

// MemoryKV is an in-memory KV safe for concurrent use.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// FileKV stores each key as a file under a directory. Keys map directly to
// file names, so callers must use filesystem-safe keys.
type FileKV struct {
	dir string
}

// NewFileKV creates the backing directory if needed.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileKV{dir: dir}, nil
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *FileKV) Get(key string) (string, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return string(data), nil
}

func (f *FileKV) Set(key, value string) error {
	if err := os.WriteFile(f.path(key), []byte(value), 0640); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (f *FileKV) Delete(key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// KVRepository persists entities as JSON blobs in a KV store. Each entity
// lives under widget_entity_<id>, and a separate index key tracks the set of
// stored ids so LoadAll does not depend on key enumeration.
type KVRepository struct {
	mu     sync.Mutex
	kv     KV
	logger *slog.Logger
}

var _ Repository = (*KVRepository)(nil)

// KVConfig configures a KVRepository.
type KVConfig struct {
	KV     KV
	Logger *slog.Logger
}

// NewKVRepository creates a repository over the given KV store.
func NewKVRepository(cfg KVConfig) *KVRepository {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	kv := cfg.KV
	if kv == nil {
		kv = NewMemoryKV()
	}
	return &KVRepository{kv: kv, logger: logger}
}

func (r *KVRepository) loadIndex() ([]string, error) {
	raw, err := r.kv.Get(indexKey)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entity index: %w", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		// A corrupt index is rebuilt empty rather than wedging every
		// operation behind it.
		r.logger.Warn("corrupt entity index, resetting", "error", err)
		return nil, nil
	}
	return ids, nil
}

func (r *KVRepository) saveIndex(ids []string) error {
	sort.Strings(ids)
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode entity index: %w", err)
	}
	if err := r.kv.Set(indexKey, string(data)); err != nil {
		return fmt.Errorf("failed to save entity index: %w", err)
	}
	return nil
}

// Save stores the entity and adds its id to the index.
func (r *KVRepository) Save(_ context.Context, e *entity.Entity) error {
	if e == nil || e.ID == "" {
		return errors.New("cannot save entity without an id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := e.Serialize()
	if err != nil {
		return err
	}
	if err := r.kv.Set(entityKeyPrefix+e.ID, string(data)); err != nil {
		return fmt.Errorf("failed to save entity %s: %w", e.ID, err)
	}

	ids, err := r.loadIndex()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == e.ID {
			return nil
		}
	}
	return r.saveIndex(append(ids, e.ID))
}

// Load fetches one entity, returning (nil, nil) when absent.
func (r *KVRepository) Load(_ context.Context, id string) (*entity.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := r.kv.Get(entityKeyPrefix + id)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entity %s: %w", id, err)
	}
	e, err := entity.Deserialize([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode entity %s: %w", id, err)
	}
	return e, nil
}

// LoadAll fetches every indexed entity. Entries that are missing or fail to
// decode are dropped from the index and skipped, so one corrupt record never
// blocks a full load.
func (r *KVRepository) LoadAll(_ context.Context) ([]*entity.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.loadIndex()
	if err != nil {
		return nil, err
	}

	var (
		entities []*entity.Entity
		kept     []string
		dropped  bool
	)
	for _, id := range ids {
		raw, err := r.kv.Get(entityKeyPrefix + id)
		if errors.Is(err, ErrKeyNotFound) {
			r.logger.Warn("indexed entity missing, dropping from index", "id", id)
			dropped = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load entity %s: %w", id, err)
		}
		e, err := entity.Deserialize([]byte(raw))
		if err != nil {
			r.logger.Warn("corrupt entity record, dropping from index", "id", id, "error", err)
			dropped = true
			continue
		}
		entities = append(entities, e)
		kept = append(kept, id)
	}

	if dropped {
		if err := r.saveIndex(kept); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// Delete removes the entity and its index entry. Deleting an absent id is a
// no-op.
func (r *KVRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.kv.Delete(entityKeyPrefix + id); err != nil {
		return fmt.Errorf("failed to delete entity %s: %w", id, err)
	}

	ids, err := r.loadIndex()
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if len(kept) != len(ids) {
		return r.saveIndex(kept)
	}
	return nil
}

// Clear removes every indexed entity and the index itself.
func (r *KVRepository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.loadIndex()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.kv.Delete(entityKeyPrefix + id); err != nil {
			return fmt.Errorf("failed to delete entity %s: %w", id, err)
		}
	}
	if err := r.kv.Delete(indexKey); err != nil {
		return fmt.Errorf("failed to delete entity index: %w", err)
	}
	return nil
}

// IndexedIDs returns the ids currently tracked by the index, sorted. Used by
// diagnostics and tests.
func (r *KVRepository) IndexedIDs() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.loadIndex()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// EntityKey returns the KV key an entity id is stored under.
func EntityKey(id string) string {
	return entityKeyPrefix + id
}

// IsEntityKey reports whether a raw KV key holds an entity record.
func IsEntityKey(key string) bool {
	return strings.HasPrefix(key, entityKeyPrefix) && key != indexKey
}
