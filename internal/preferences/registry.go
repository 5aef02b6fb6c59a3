package preferences

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/speakbot/internal/observability"
	"github.com/ent0n29/speakbot/internal/store"
)

// ErrUnknownLanguage is returned by SetLanguage for names outside the language table.
var ErrUnknownLanguage = errors.New("unknown language")

const (
	DefaultSystemRole = "You are a helpful assistant."
	NormalRate        = "0.00%"

	minSpeed = 0.5
	maxSpeed = 2.0

	defaultPersistTimeout = 5 * time.Second
)

// Backend is the slice of the durable store the registry reads and writes.
type Backend interface {
	LanguageProfile(ctx context.Context, userKey string) (store.LanguageProfile, error)
	UpsertLanguageProfile(ctx context.Context, userKey string, profile store.LanguageProfile) error
	SystemRole(ctx context.Context, userKey string) (string, error)
	UpsertSystemRole(ctx context.Context, userKey, role string) error
	Speed(ctx context.Context, userKey string) (string, error)
	UpsertSpeed(ctx context.Context, userKey, rate string) error
	ModelOverride(ctx context.Context, userKey string) (string, error)
	UpsertModelOverride(ctx context.Context, userKey, model string) error
}

// Registry caches per-user settings in memory and writes them through to the
// backend without blocking the caller.
type Registry struct {
	backend        Backend
	logger         *zap.Logger
	metrics        *observability.Metrics
	persistTimeout time.Duration

	mu        sync.RWMutex
	languages map[string]store.LanguageProfile
	roles     map[string]string
	speeds    map[string]string
	models    map[string]string

	pending sync.WaitGroup
}

func NewRegistry(backend Backend, logger *zap.Logger, metrics *observability.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		backend:        backend,
		logger:         logger,
		metrics:        metrics,
		persistTimeout: defaultPersistTimeout,
		languages:      make(map[string]store.LanguageProfile),
		roles:          make(map[string]string),
		speeds:         make(map[string]string),
		models:         make(map[string]string),
	}
}

// SetLanguage selects a voice profile by name. Unknown names leave the
// current profile untouched.
func (r *Registry) SetLanguage(_ context.Context, userKey, name string) (store.LanguageProfile, error) {
	p, ok := LookupLanguage(name)
	if !ok {
		return store.LanguageProfile{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, strings.TrimSpace(name))
	}
	r.mu.Lock()
	r.languages[userKey] = p
	r.mu.Unlock()

	r.persist("language", func(ctx context.Context) error {
		return r.backend.UpsertLanguageProfile(ctx, userKey, p)
	})
	return p, nil
}

func (r *Registry) LanguageProfile(ctx context.Context, userKey string) store.LanguageProfile {
	r.mu.RLock()
	p, ok := r.languages[userKey]
	r.mu.RUnlock()
	if ok {
		return p
	}

	p, err := r.backend.LanguageProfile(ctx, userKey)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		p = DefaultLanguage
	default:
		r.logger.Warn("load language profile failed", zap.String("user", userKey), zap.Error(err))
		return DefaultLanguage
	}

	r.mu.Lock()
	// A concurrent SetLanguage wins over the loaded value.
	if cur, ok := r.languages[userKey]; ok {
		p = cur
	} else {
		r.languages[userKey] = p
	}
	r.mu.Unlock()
	return p
}

// SetSpeed stores the speech rate for a multiplier given as text and returns
// the stored rate string.
func (r *Registry) SetSpeed(_ context.Context, userKey, raw string) string {
	rate := FormatRate(ParseSpeed(raw))
	r.mu.Lock()
	r.speeds[userKey] = rate
	r.mu.Unlock()

	r.persist("speed", func(ctx context.Context) error {
		return r.backend.UpsertSpeed(ctx, userKey, rate)
	})
	return rate
}

func (r *Registry) Speed(ctx context.Context, userKey string) string {
	return r.loadString(ctx, userKey, r.speeds, r.backend.Speed, NormalRate, "speed")
}

func (r *Registry) SetSystemRole(_ context.Context, userKey, role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		role = DefaultSystemRole
	}
	r.mu.Lock()
	r.roles[userKey] = role
	r.mu.Unlock()

	r.persist("role", func(ctx context.Context) error {
		return r.backend.UpsertSystemRole(ctx, userKey, role)
	})
	return role
}

func (r *Registry) SystemRole(ctx context.Context, userKey string) string {
	return r.loadString(ctx, userKey, r.roles, r.backend.SystemRole, DefaultSystemRole, "role")
}

// SetModelOverride stores the user's model. An empty model restores the
// default and is persisted like any other value.
func (r *Registry) SetModelOverride(_ context.Context, userKey, model string) {
	r.mu.Lock()
	r.models[userKey] = model
	r.mu.Unlock()

	r.persist("model", func(ctx context.Context) error {
		return r.backend.UpsertModelOverride(ctx, userKey, model)
	})
}

// ModelOverride returns the user's model, or "" when the default applies.
func (r *Registry) ModelOverride(ctx context.Context, userKey string) string {
	return r.loadString(ctx, userKey, r.models, r.backend.ModelOverride, "", "model")
}

// Flush blocks until every pending write has finished.
func (r *Registry) Flush() {
	r.pending.Wait()
}

func (r *Registry) loadString(
	ctx context.Context,
	userKey string,
	cache map[string]string,
	load func(context.Context, string) (string, error),
	fallback string,
	op string,
) string {
	r.mu.RLock()
	v, ok := cache[userKey]
	r.mu.RUnlock()
	if ok {
		return v
	}

	v, err := load(ctx, userKey)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		v = fallback
	default:
		r.logger.Warn("load setting failed", zap.String("op", op), zap.String("user", userKey), zap.Error(err))
		return fallback
	}

	r.mu.Lock()
	if cur, ok := cache[userKey]; ok {
		v = cur
	} else {
		cache[userKey] = v
	}
	r.mu.Unlock()
	return v
}

func (r *Registry) persist(op string, write func(ctx context.Context) error) {
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.persistTimeout)
		defer cancel()
		if err := write(ctx); err != nil {
			r.logger.Warn("persist setting failed", zap.String("op", op), zap.Error(err))
			r.metrics.PersistFailed(op)
		}
	}()
}

// ParseSpeed reads a speed multiplier. Missing or invalid input means normal
// speed; the result is clamped to [0.5, 2.0].
func ParseSpeed(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) {
		return 1.0
	}
	return math.Max(minSpeed, math.Min(maxSpeed, v))
}

// FormatRate renders a multiplier as a signed percentage offset from normal speed.
func FormatRate(multiplier float64) string {
	pct := (multiplier - 1) * 100
	switch {
	case math.Abs(pct) < 0.005:
		return NormalRate
	case pct > 0:
		return fmt.Sprintf("+%.2f%%", pct)
	default:
		return fmt.Sprintf("%.2f%%", pct)
	}
}

// SpeedMultiplier converts a stored rate back to a multiplier.
func SpeedMultiplier(rate string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(rate), "%"), 64)
	if err != nil {
		return 1.0
	}
	return 1 + v/100
}
