package service

import (
	"context"
	"errors"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/gamassss/shortlink/internal/metrics"
	"github.com/gamassss/shortlink/pkg/generator"
)

// KeyGenerator draws random keys and skips the ones already stored. Every
// collision grows the key by one symbol, so the search terminates once the
// key space outgrows the stored links. It only lowers the collision odds;
// concurrent writers are reconciled by ShortenerService.
type KeyGenerator struct {
	links     LinkStore
	maxLength int
	random    func(length int) (string, error)
}

func NewKeyGenerator(links LinkStore, maxLength int) *KeyGenerator {
	return &KeyGenerator{
		links:     links,
		maxLength: maxLength,
		random:    generator.RandomKey,
	}
}

// Generate returns a key of at least length symbols that no stored link uses.
func (g *KeyGenerator) Generate(ctx context.Context, length int) (string, error) {
	attempts := 0
	for ; length <= g.maxLength; length++ {
		attempts++

		key, err := g.random(length)
		if err != nil {
			return "", err
		}

		_, err = g.links.FindLink(ctx, domain.FieldShort, key)
		if errors.Is(err, domain.ErrNotFound) {
			return key, nil
		}
		if err != nil {
			return "", &domain.BackendError{Op: "check short key", Err: err}
		}

		metrics.KeyCollisions.Inc()
	}

	return "", &domain.CapacityError{Attempts: attempts}
}
