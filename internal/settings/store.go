package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

// Durable storage keys.
const (
	KeyGeminiAPIKey     = "gemini_api_key"
	KeyOpenRouterAPIKey = "openrouter_api_key"
	KeyOpenAIAPIKey     = "openai_api_key"
	KeyAudioModel       = "audio_model"
	KeyQuestionModel    = "question_model"
	KeyImageModel       = "image_model"
	KeyMinDisplayTime   = "min_display_time"
	KeySessionName      = "session_name"
)

var credentialKeys = map[Provider]string{
	ProviderGemini:     KeyGeminiAPIKey,
	ProviderOpenRouter: KeyOpenRouterAPIKey,
	ProviderOpenAI:     KeyOpenAIAPIKey,
}

// ErrNotFound is returned by Store.Get for absent keys.
var ErrNotFound = errors.New("settings: key not found")

// Store is durable key/value storage for settings.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// SetAll writes every pair atomically.
	SetAll(ctx context.Context, values map[string]string) error
	Close() error
}

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	// Dir is the data directory. Required unless InMemory is set.
	Dir string
	// InMemory keeps everything in memory; used by tests.
	InMemory bool
}

// BadgerStore is a Store backed by BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (creating if needed) a badger database.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("settings: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("settings: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Get(_ context.Context, key string) (string, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("settings: get %q: %w", key, err)
	}
	return string(val), nil
}

func (b *BadgerStore) SetAll(_ context.Context, values map[string]string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for k, v := range values {
			if err := txn.Set([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("settings: write: %w", err)
	}
	return nil
}

func (b *BadgerStore) Close() error { return b.db.Close() }

// badgerLogger routes badger's own logging into slog at reduced levels.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, a ...any)   { slog.Error(fmt.Sprintf(f, a...), "component", "badger") }
func (badgerLogger) Warningf(f string, a ...any) { slog.Warn(fmt.Sprintf(f, a...), "component", "badger") }
func (badgerLogger) Infof(f string, a ...any)    { slog.Debug(fmt.Sprintf(f, a...), "component", "badger") }
func (badgerLogger) Debugf(string, ...any)       {}

// MemoryStore is a Store kept in a map.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]string{}}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) SetAll(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	maps.Copy(m.data, values)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Load seeds a Config from the store, falling back to defaults for absent
// or unreadable values.
func Load(ctx context.Context, st Store) (Config, error) {
	cfg := Default()

	get := func(key string) (string, bool, error) {
		v, err := st.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return v, true, nil
	}

	for p, key := range credentialKeys {
		v, ok, err := get(key)
		if err != nil {
			return cfg, err
		}
		if ok && v != "" {
			cfg.Credentials[p] = v
		}
	}

	for key, dst := range map[string]*string{
		KeyAudioModel:    &cfg.AudioModel,
		KeyQuestionModel: &cfg.QuestionModel,
		KeyImageModel:    &cfg.ImageModel,
		KeySessionName:   &cfg.SessionLabel,
	} {
		v, ok, err := get(key)
		if err != nil {
			return cfg, err
		}
		if ok && (v != "" || key == KeySessionName) {
			*dst = v
		}
	}

	v, ok, err := get(KeyMinDisplayTime)
	if err != nil {
		return cfg, err
	}
	if ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("ignoring stored min_display_time", "value", v, "err", err)
		} else {
			cfg.MinDisplayTimeSeconds = n
		}
	}
	return cfg, nil
}

// persisted returns the durable key/value form of c.
func persisted(c Config) map[string]string {
	out := map[string]string{
		KeyAudioModel:     c.AudioModel,
		KeyQuestionModel:  c.QuestionModel,
		KeyImageModel:     c.ImageModel,
		KeyMinDisplayTime: strconv.Itoa(c.MinDisplayTimeSeconds),
		KeySessionName:    c.SessionLabel,
	}
	for p, key := range credentialKeys {
		out[key] = c.Credentials[p]
	}
	return out
}
