// Command seed fills the postgres links table for load tests. Hot links also
// get a history of visits so the stats endpoint has something to aggregate.
package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gamassss/shortlink/internal/config"
	"github.com/gamassss/shortlink/internal/domain"
	"github.com/gamassss/shortlink/internal/repository/postgres"
	"github.com/gamassss/shortlink/pkg/generator"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	HOT_COUNT  = 100
	COLD_COUNT = 1000000

	VISITS_PER_HOT = 200
	KEY_LENGTH     = 6

	BATCH_SIZE  = 5000
	NUM_WORKERS = 4
)

var (
	countries = []string{"Germany", "Indonesia", "United States", "Brazil", "India"}
	browsers  = []string{"Chrome", "Firefox", "Safari", "WeChat", "Edge"}
)

type DataGenerator struct {
	pool *pgxpool.Pool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v\n", err)
	}

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalf("Failed to migrate: %v\n", err)
	}

	gen := &DataGenerator{pool: pool}

	if err := gen.clearData(ctx); err != nil {
		log.Fatalf("Failed to clear data: %v\n", err)
	}

	if err := gen.insertLinksParallel(ctx, 0, HOT_COUNT+COLD_COUNT); err != nil {
		log.Fatalf("Failed to insert links: %v\n", err)
	}

	if err := gen.insertHotVisits(ctx); err != nil {
		log.Fatalf("Failed to insert visits: %v\n", err)
	}

	if err := gen.verifyData(ctx); err != nil {
		log.Printf("Warning: Data verification failed: %v\n", err)
	}
}

// seedKey spells i in the key alphabet, so seeded keys are valid and distinct.
func seedKey(i int) string {
	b := make([]byte, KEY_LENGTH)
	base := len(generator.Alphabet)
	for j := KEY_LENGTH - 1; j >= 0; j-- {
		b[j] = generator.Alphabet[i%base]
		i /= base
	}
	return string(b)
}

func (g *DataGenerator) clearData(ctx context.Context) error {
	_, err := g.pool.Exec(ctx, "TRUNCATE visits, links RESTART IDENTITY")
	return err
}

func (g *DataGenerator) insertLinksParallel(ctx context.Context, first, count int) error {
	var wg sync.WaitGroup
	errChan := make(chan error, NUM_WORKERS)

	rowsPerWorker := count / NUM_WORKERS

	for workerID := 0; workerID < NUM_WORKERS; workerID++ {
		wg.Add(1)

		start := first + workerID*rowsPerWorker
		end := start + rowsPerWorker
		if workerID == NUM_WORKERS-1 {
			end = first + count
		}

		go func(id, start, end int) {
			defer wg.Done()

			if err := g.insertLinks(ctx, start, end); err != nil {
				errChan <- fmt.Errorf("worker %d failed: %w", id, err)
			}
		}(workerID, start, end)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		return err
	}

	return nil
}

func (g *DataGenerator) insertLinks(ctx context.Context, start, end int) error {
	for i := start; i < end; i += BATCH_SIZE {
		batchEnd := min(i+BATCH_SIZE, end)

		rows := make([][]any, 0, batchEnd-i)
		for j := i; j < batchEnd; j++ {
			rows = append(rows, []any{
				fmt.Sprintf("https://example.com/page/%07d", j),
				seedKey(j),
				time.Now().Add(-time.Duration(j) * time.Second),
			})
		}

		_, err := g.pool.CopyFrom(ctx,
			pgx.Identifier{"links"},
			[]string{"long", "short", "created_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy links failed: %w", err)
		}
	}

	return nil
}

func (g *DataGenerator) insertHotVisits(ctx context.Context) error {
	visits := postgres.NewVisitRepository(g.pool)

	for i := 0; i < HOT_COUNT; i++ {
		var linkID int64
		if err := g.pool.QueryRow(ctx, "SELECT id FROM links WHERE short = $1", seedKey(i)).Scan(&linkID); err != nil {
			return err
		}

		batch := make([]*domain.Visit, 0, VISITS_PER_HOT)
		for j := 0; j < VISITS_PER_HOT; j++ {
			batch = append(batch, &domain.Visit{
				LinkID:    linkID,
				ShortKey:  seedKey(i),
				VisitedAt: time.Now().Add(-time.Duration(j) * time.Minute),
				IPAddress: domain.StringPtr(fmt.Sprintf("198.51.100.%d", j%250+1)),
				Country:   domain.StringPtr(countries[j%len(countries)]),
				Browser:   domain.StringPtr(browsers[(i+j)%len(browsers)]),
			})
		}

		if err := visits.RecordVisits(ctx, batch); err != nil {
			return err
		}
	}

	return nil
}

func (g *DataGenerator) verifyData(ctx context.Context) error {
	var count int64
	err := g.pool.QueryRow(ctx, "SELECT COUNT(*) FROM links").Scan(&count)
	if err != nil {
		return err
	}

	expected := int64(HOT_COUNT + COLD_COUNT)
	if count != expected {
		return fmt.Errorf("expected %d rows but got %d", expected, count)
	}

	return nil
}
