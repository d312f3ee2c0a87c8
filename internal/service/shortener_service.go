package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/gamassss/shortlink/internal/logger"
	"github.com/gamassss/shortlink/internal/metrics"
)

type LinkStore interface {
	FindLink(ctx context.Context, field domain.LinkField, value string) (*domain.Link, error)
	InsertLink(ctx context.Context, link *domain.Link) error
}

type CacheRepository interface {
	GetLink(ctx context.Context, shortKey string) (*domain.Link, error)
	SetLink(ctx context.Context, link *domain.Link, ttl time.Duration) error
}

type StatsRepository interface {
	GetStats(ctx context.Context, link *domain.Link) (*domain.LinkStats, error)
}

type LivenessChecker interface {
	IsDead(ctx context.Context, rawURL string) (bool, error)
}

type Options struct {
	// SelfHost is the host name the service is reachable under.
	SelfHost     string
	MinKeyLength int
	MaxKeyLength int
	MaxRetries   int
	QueryTimeout time.Duration
	CacheTTL     time.Duration
}

func (o *Options) setDefaults() {
	if o.MinKeyLength <= 0 {
		o.MinKeyLength = 4
	}
	if o.MaxKeyLength < o.MinKeyLength {
		o.MaxKeyLength = o.MinKeyLength + 12
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 3 * time.Second
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 24 * time.Hour
	}
}

type ShortenerService struct {
	links    LinkStore
	cache    CacheRepository
	stats    StatsRepository
	liveness LivenessChecker
	keys     *KeyGenerator
	opts     Options
	pending  sync.WaitGroup
}

// NewShortenerService wires the service. cache may be nil.
func NewShortenerService(links LinkStore, cache CacheRepository, stats StatsRepository, liveness LivenessChecker, opts Options) *ShortenerService {
	opts.setDefaults()
	return &ShortenerService{
		links:    links,
		cache:    cache,
		stats:    stats,
		liveness: liveness,
		keys:     NewKeyGenerator(links, opts.MaxKeyLength),
		opts:     opts,
	}
}

// Shorten returns the link of longURL, creating it on first use.
//
// The lookup by long URL only saves work: two writers can both miss it. The
// unique constraints decide, and a conflict is reconciled by looking the long
// URL up again. If it is still absent the conflict was on the key, and a
// longer key is tried.
func (s *ShortenerService) Shorten(ctx context.Context, longURL string) (*domain.Link, error) {
	log := logger.FromContext(ctx)

	longURL, err := s.validate(ctx, longURL)
	if err != nil {
		return nil, err
	}

	existing, err := s.findLink(ctx, domain.FieldLong, longURL)
	if err == nil {
		metrics.Shortens.WithLabelValues("existing").Inc()
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		metrics.Shortens.WithLabelValues("error").Inc()
		return nil, &domain.BackendError{Op: "find link by long url", Err: err}
	}

	length := s.opts.MinKeyLength
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		key, err := s.generateKey(ctx, length)
		if err != nil {
			if domain.IsCapacity(err) {
				metrics.Shortens.WithLabelValues("capacity").Inc()
			} else {
				metrics.Shortens.WithLabelValues("error").Inc()
			}
			return nil, err
		}

		link := &domain.Link{Long: longURL, Short: key}
		err = s.insertLink(ctx, link)
		if err == nil {
			log.Info("Link created", "short_key", link.Short, "long_url", link.Long, "attempt", attempt)
			metrics.Shortens.WithLabelValues("created").Inc()
			s.cacheAsync(ctx, link)
			return link, nil
		}

		var conflict *domain.ConflictError
		if !errors.As(err, &conflict) {
			metrics.Shortens.WithLabelValues("error").Inc()
			return nil, &domain.BackendError{Op: "insert link", Err: err}
		}

		existing, err := s.findLink(ctx, domain.FieldLong, longURL)
		if err == nil {
			log.Debug("Lost shorten race, returning winner", "short_key", existing.Short)
			metrics.Shortens.WithLabelValues("existing").Inc()
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			metrics.Shortens.WithLabelValues("error").Inc()
			return nil, &domain.BackendError{Op: "reconcile link by long url", Err: err}
		}

		log.Debug("Short key taken at insert, retrying", "short_key", key, "field", conflict.Field)
		metrics.KeyCollisions.Inc()
		length = len(key) + 1
	}

	metrics.Shortens.WithLabelValues("capacity").Inc()
	return nil, &domain.CapacityError{Attempts: s.opts.MaxRetries}
}

func (s *ShortenerService) validate(ctx context.Context, longURL string) (string, error) {
	longURL = strings.TrimSpace(longURL)
	if longURL == "" {
		metrics.Shortens.WithLabelValues("invalid").Inc()
		return "", domain.NewValidationError("URL is required")
	}
	if len(longURL) > domain.MaxURLLength {
		metrics.Shortens.WithLabelValues("invalid").Inc()
		return "", domain.NewValidationError("URL must be at most %d characters", domain.MaxURLLength)
	}

	u, err := url.Parse(longURL)
	if err == nil && s.opts.SelfHost != "" && strings.EqualFold(u.Hostname(), s.opts.SelfHost) {
		metrics.Shortens.WithLabelValues("invalid").Inc()
		return "", domain.NewValidationError("URL points back at this service")
	}

	dead, err := s.liveness.IsDead(ctx, longURL)
	if err != nil {
		metrics.Shortens.WithLabelValues("invalid").Inc()
		return "", err
	}
	if dead {
		metrics.Shortens.WithLabelValues("dead").Inc()
		return "", domain.NewValidationError("URL is dead")
	}

	return longURL, nil
}

func (s *ShortenerService) generateKey(ctx context.Context, length int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()
	return s.keys.Generate(ctx, length)
}

func (s *ShortenerService) findLink(ctx context.Context, field domain.LinkField, value string) (*domain.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()
	return s.links.FindLink(ctx, field, value)
}

func (s *ShortenerService) insertLink(ctx context.Context, link *domain.Link) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()
	return s.links.InsertLink(ctx, link)
}

// Resolve looks a short key up, cache first. It returns domain.ErrNotFound
// for unknown keys.
func (s *ShortenerService) Resolve(ctx context.Context, shortKey string) (*domain.Link, error) {
	log := logger.FromContext(ctx)

	if s.cache != nil {
		link, err := s.cache.GetLink(ctx, shortKey)
		if err == nil {
			metrics.Resolves.WithLabelValues("cache").Inc()
			return link, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn("Link cache unavailable", "error", err)
		}
	}

	link, err := s.findLink(ctx, domain.FieldShort, shortKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.Resolves.WithLabelValues("miss").Inc()
			return nil, domain.ErrNotFound
		}
		metrics.Resolves.WithLabelValues("error").Inc()
		return nil, &domain.BackendError{Op: "find link by short key", Err: err}
	}

	metrics.Resolves.WithLabelValues("store").Inc()
	s.cacheAsync(ctx, link)

	return link, nil
}

func (s *ShortenerService) cacheAsync(ctx context.Context, link *domain.Link) {
	if s.cache == nil {
		return
	}

	log := logger.FromContext(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.QueryTimeout)
		defer cancel()
		if err := s.cache.SetLink(ctx, link, s.opts.CacheTTL); err != nil {
			log.Warn("Failed to cache link", "short_key", link.Short, "error", err)
		}
	}()
}

// Wait blocks until in-flight cache fills finish. Call it before closing the cache.
func (s *ShortenerService) Wait() {
	s.pending.Wait()
}

func (s *ShortenerService) Stats(ctx context.Context, shortKey string) (*domain.LinkStats, error) {
	link, err := s.Resolve(ctx, shortKey)
	if err != nil {
		return nil, err
	}

	stats, err := s.stats.GetStats(ctx, link)
	if err != nil {
		return nil, &domain.BackendError{Op: "get link stats", Err: err}
	}

	return stats, nil
}
