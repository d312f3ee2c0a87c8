package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type LinkRepository struct {
	db *pgxpool.Pool
}

func NewLinkRepository(db *pgxpool.Pool) *LinkRepository {
	return &LinkRepository{db: db}
}

func (r *LinkRepository) InsertLink(ctx context.Context, link *domain.Link) error {
	query := `
		INSERT INTO links (long, short)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query, link.Long, link.Short).Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		return mapInsertError(err)
	}

	return nil
}

func (r *LinkRepository) FindLink(ctx context.Context, field domain.LinkField, value string) (*domain.Link, error) {
	column, err := linkColumn(field)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, long, short, created_at
		FROM links
		WHERE %s = $1
	`, column)

	var link domain.Link
	err = r.db.QueryRow(ctx, query, value).Scan(
		&link.ID,
		&link.Long,
		&link.Short,
		&link.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return &link, nil
}

func linkColumn(field domain.LinkField) (string, error) {
	switch field {
	case domain.FieldLong:
		return "long", nil
	case domain.FieldShort:
		return "short", nil
	default:
		return "", fmt.Errorf("unknown link field %q", field)
	}
}

// mapInsertError turns a unique violation into a ConflictError naming the field.
func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}

	switch {
	case strings.Contains(pgErr.ConstraintName, "short"):
		return &domain.ConflictError{Field: domain.FieldShort, Err: err}
	case strings.Contains(pgErr.ConstraintName, "long"):
		return &domain.ConflictError{Field: domain.FieldLong, Err: err}
	default:
		return err
	}
}
