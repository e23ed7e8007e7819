package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"voxcanvas/internal/protocol"
)

// Sender delivers an outbound message. Delivery is fire-and-forget.
type Sender interface {
	Send(data []byte) error
}

// Synchronizer holds the current Config and pushes it to the backend.
// Update never touches the store or the network; Apply is the only path
// that writes durable storage.
type Synchronizer struct {
	store Store

	mu  sync.RWMutex
	cfg Config

	onApply func()
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithApplyHook is invoked after each successful Apply.
func WithApplyHook(fn func()) SyncOption {
	return func(s *Synchronizer) { s.onApply = fn }
}

// NewSynchronizer creates a synchronizer seeded with cfg.
func NewSynchronizer(cfg Config, store Store, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{store: store, cfg: cfg.Clone()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Current returns a copy of the held config.
func (s *Synchronizer) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update merges p into the held config.
func (s *Synchronizer) Update(p Partial) {
	s.mu.Lock()
	s.cfg = s.cfg.Merge(p)
	s.mu.Unlock()
}

// Apply validates the held config, persists it, then sends it in full over
// tx. A send failure is logged but not returned: the config is resent on
// the next connect.
func (s *Synchronizer) Apply(ctx context.Context, tx Sender) error {
	cfg := s.Current()
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("settings: invalid config: %w", err)
	}
	if err := s.store.SetAll(ctx, persisted(cfg)); err != nil {
		return err
	}

	data, err := protocol.NewConfigMessage(cfg.Message())
	if err != nil {
		return err
	}
	if tx != nil {
		if err := tx.Send(data); err != nil {
			slog.Warn("config not delivered; will resend on next connect", "err", err)
		}
	}
	if s.onApply != nil {
		s.onApply()
	}
	slog.Info("config applied",
		"audio_model", cfg.AudioModel,
		"question_model", cfg.QuestionModel,
		"image_model", cfg.ImageModel,
		"min_display_time", cfg.MinDisplayTimeSeconds,
		"session", cfg.SessionLabel,
	)
	return nil
}

// Handshake returns the config message sent first on every new connection.
// Invalid fields are sent as their defaults; the held config is unchanged.
func (s *Synchronizer) Handshake() ([]byte, error) {
	cfg, err := Sanitize(s.Current())
	if err != nil {
		slog.Warn("invalid settings replaced by defaults for handshake", "err", err)
	}
	return protocol.NewConfigMessage(cfg.Message())
}
