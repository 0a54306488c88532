// Package ledger tracks usage of the speech-synthesis API credentials and
// decides which one is active.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/kassist/internal/metrics"
	"github.com/goodtune/kassist/internal/storage"
)

// DefaultQuota is the usage, in seconds of synthesized audio, after which a
// credential should be rotated out.
const DefaultQuota = 600

var (
	// ErrInvalidAmount is returned for negative, NaN or infinite amounts.
	ErrInvalidAmount = errors.New("ledger: invalid usage amount")

	// ErrUnknownCredential is returned when usage names a credential outside the pool.
	ErrUnknownCredential = errors.New("ledger: unknown credential")

	// ErrPersistence wraps failures to save ledger state. The in-memory
	// change has already been applied when it is returned.
	ErrPersistence = errors.New("ledger: failed to persist state")
)

// Category is a purpose-level usage bucket, independent of credentials.
type Category string

const (
	// CategoryVoice accumulates seconds of synthesized speech.
	CategoryVoice Category = "voice_api"
	// CategoryQuery counts language-model queries.
	CategoryQuery Category = "gemini_api"
)

// Credential is one API key of the pool. Key is secret and never serialized.
type Credential struct {
	Name string `json:"name"`
	Key  string `json:"-"`
}

// Config holds ledger configuration
type Config struct {
	Credentials []Credential
	Quota       float64
}

// Ledger guards the usage counters and active credential index with a
// single mutex. Every mutation is persisted before it returns.
type Ledger struct {
	mu          sync.Mutex
	store       storage.LedgerStore
	credentials []Credential
	usage       map[string]float64
	categories  map[Category]float64
	active      int
	quota       float64
	updatedAt   time.Time
	now         func() time.Time
	logger      zerolog.Logger

	// reportMu serializes report file writes.
	reportMu sync.Mutex
}

// New creates a ledger and restores persisted state. Missing, unreadable or
// corrupt state starts the ledger from zero; that is logged, not returned.
func New(ctx context.Context, store storage.LedgerStore, config Config, logger zerolog.Logger) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger requires a store")
	}
	if len(config.Credentials) == 0 {
		return nil, fmt.Errorf("ledger requires at least one credential")
	}
	seen := make(map[string]bool, len(config.Credentials))
	for _, c := range config.Credentials {
		if c.Name == "" {
			return nil, fmt.Errorf("ledger credential has no name")
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate ledger credential: %s", c.Name)
		}
		seen[c.Name] = true
	}
	if config.Quota <= 0 {
		config.Quota = DefaultQuota
	}

	l := &Ledger{
		store:       store,
		credentials: append([]Credential(nil), config.Credentials...),
		usage:       make(map[string]float64),
		categories:  make(map[Category]float64),
		quota:       config.Quota,
		now:         time.Now,
		logger:      logger.With().Str("component", "key-ledger").Logger(),
	}
	l.load(ctx)
	metrics.ActiveKeyIndex.Set(float64(l.active))
	return l, nil
}

func (l *Ledger) load(ctx context.Context) {
	state, err := l.store.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		l.logger.Info().Msg("No saved usage state, starting from zero")
		return
	}
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to load usage state, starting from zero")
		return
	}

	for name, v := range state.Credentials {
		if !validAmount(v) {
			l.logger.Warn().Str("credential", name).Float64("usage", v).Msg("Ignoring invalid saved usage")
			continue
		}
		l.usage[name] = v
	}
	for cat, v := range state.Usage {
		if !validAmount(v) {
			l.logger.Warn().Str("category", cat).Float64("usage", v).Msg("Ignoring invalid saved usage")
			continue
		}
		l.categories[Category(cat)] = v
	}

	if state.ActiveIndex < 0 || state.ActiveIndex >= len(l.credentials) {
		l.logger.Warn().
			Int("active_index", state.ActiveIndex).
			Int("credentials", len(l.credentials)).
			Msg("Saved active key index out of range, resetting to 0")
	} else {
		l.active = state.ActiveIndex
	}
	l.updatedAt = state.UpdatedAt

	l.logger.Info().
		Str("active", l.credentials[l.active].Name).
		Msg("Restored usage state")
}

// RecordUsage adds amount to a credential's usage.
func (l *Ledger) RecordUsage(ctx context.Context, credential string, amount float64) error {
	if !validAmount(amount) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexOf(credential) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCredential, credential)
	}
	l.usage[credential] += amount
	metrics.UsageRecorded.WithLabelValues(credential).Add(amount)
	if credential == l.credentials[l.active].Name {
		l.warnIfExhaustedLocked()
	}

	return l.persistLocked(ctx, "record_usage")
}

// RecordCategory adds amount to a usage category.
func (l *Ledger) RecordCategory(ctx context.Context, category Category, amount float64) error {
	if !validAmount(amount) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	if category == "" {
		return fmt.Errorf("usage category is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.categories[category] += amount
	metrics.CategoryUsage.WithLabelValues(string(category)).Add(amount)

	return l.persistLocked(ctx, "record_category")
}

// RecordSynthesis charges seconds of synthesized speech to the active
// credential and the voice category in one write, returning the credential
// that was charged.
func (l *Ledger) RecordSynthesis(ctx context.Context, seconds float64) (Credential, error) {
	if !validAmount(seconds) {
		return Credential{}, fmt.Errorf("%w: %v", ErrInvalidAmount, seconds)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cred := l.credentials[l.active]
	l.usage[cred.Name] += seconds
	l.categories[CategoryVoice] += seconds
	metrics.UsageRecorded.WithLabelValues(cred.Name).Add(seconds)
	metrics.CategoryUsage.WithLabelValues(string(CategoryVoice)).Add(seconds)
	l.warnIfExhaustedLocked()

	return cred, l.persistLocked(ctx, "record_synthesis")
}

// RecordQuery counts one language-model query.
func (l *Ledger) RecordQuery(ctx context.Context) error {
	return l.RecordCategory(ctx, CategoryQuery, 1)
}

// CurrentKey returns the active credential.
func (l *Ledger) CurrentKey() Credential {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credentials[l.active]
}

// Rotate advances to the next credential, wrapping to the first. The
// rotation stands even when persisting it fails.
func (l *Ledger) Rotate(ctx context.Context) (Credential, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotateLocked(ctx)
}

// RotateIfExhausted rotates only when the active credential has reached the
// quota. It reports whether a rotation happened.
func (l *Ledger) RotateIfExhausted(ctx context.Context) (Credential, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cred := l.credentials[l.active]
	if l.usage[cred.Name] < l.quota {
		return cred, false, nil
	}
	next, err := l.rotateLocked(ctx)
	return next, true, err
}

func (l *Ledger) rotateLocked(ctx context.Context) (Credential, error) {
	prev := l.credentials[l.active].Name
	l.active = (l.active + 1) % len(l.credentials)
	next := l.credentials[l.active]

	metrics.KeyRotations.Inc()
	metrics.ActiveKeyIndex.Set(float64(l.active))

	l.logger.Info().
		Str("from", prev).
		Str("to", next.Name).
		Float64("usage", l.usage[next.Name]).
		Msg("Rotated API key")
	if l.usage[next.Name] >= l.quota {
		l.logger.Warn().
			Str("credential", next.Name).
			Float64("usage", l.usage[next.Name]).
			Float64("quota", l.quota).
			Msg("Rotated to a credential that is already over quota")
	}

	return next, l.persistLocked(ctx, "rotate")
}

// Exhausted reports whether a credential's usage has reached the quota.
func (l *Ledger) Exhausted(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usage[name] >= l.quota
}

// CredentialUsage is the usage of one credential in a Snapshot.
type CredentialUsage struct {
	Name      string  `json:"name"`
	Usage     float64 `json:"usage"`
	Exhausted bool    `json:"exhausted"`
	Active    bool    `json:"active"`
}

// State is a point-in-time copy of the ledger.
type State struct {
	Credentials []CredentialUsage  `json:"credentials"`
	Categories  map[string]float64 `json:"categories"`
	ActiveIndex int                `json:"active_index"`
	Active      string             `json:"active"`
	Quota       float64            `json:"quota"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := State{
		Credentials: make([]CredentialUsage, len(l.credentials)),
		Categories:  make(map[string]float64, len(l.categories)),
		ActiveIndex: l.active,
		Active:      l.credentials[l.active].Name,
		Quota:       l.quota,
		UpdatedAt:   l.updatedAt,
	}
	for i, c := range l.credentials {
		u := l.usage[c.Name]
		s.Credentials[i] = CredentialUsage{
			Name:      c.Name,
			Usage:     u,
			Exhausted: u >= l.quota,
			Active:    i == l.active,
		}
	}
	for cat, v := range l.categories {
		s.Categories[string(cat)] = v
	}
	return s
}

func (l *Ledger) indexOf(name string) int {
	for i, c := range l.credentials {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (l *Ledger) warnIfExhaustedLocked() {
	active := l.credentials[l.active].Name
	if used := l.usage[active]; used >= l.quota {
		l.logger.Warn().
			Str("credential", active).
			Float64("usage", used).
			Float64("quota", l.quota).
			Msg("Active API key has reached its quota")
	}
}

// persistLocked saves the full ledger. Callers hold l.mu.
func (l *Ledger) persistLocked(ctx context.Context, op string) error {
	l.updatedAt = l.now()
	state := storage.LedgerState{
		Usage:       make(map[string]float64, len(l.categories)),
		Credentials: make(map[string]float64, len(l.usage)),
		ActiveIndex: l.active,
		UpdatedAt:   l.updatedAt,
	}
	for cat, v := range l.categories {
		state.Usage[string(cat)] = v
	}
	for name, v := range l.usage {
		state.Credentials[name] = v
	}

	if err := l.store.Save(ctx, state); err != nil {
		metrics.PersistenceErrors.WithLabelValues(op).Inc()
		l.logger.Error().Err(err).Str("operation", op).Msg("Failed to persist usage state")
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
