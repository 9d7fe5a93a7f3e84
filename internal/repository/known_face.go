package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
)

// PgxPool is the subset of *pgxpool.Pool the repositories use, so tests
// can substitute pgxmock.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type KnownFaceRepository struct {
	pool PgxPool
}

func NewKnownFaceRepository(pool PgxPool) *KnownFaceRepository {
	return &KnownFaceRepository{pool: pool}
}

func (r *KnownFaceRepository) Create(ctx context.Context, face *domain.KnownFace) error {
	query := `
		INSERT INTO known_faces (urn, embedding, details, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
	`

	_, err := r.pool.Exec(ctx, query, face.URN, toVector(face.Embedding), detailsOrEmpty(face.Details))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrKnownFaceExists
		}
		return fmt.Errorf("create known face: %w", err)
	}

	return nil
}

// Upsert inserts face or replaces the embedding and details of an existing urn.
func (r *KnownFaceRepository) Upsert(ctx context.Context, face *domain.KnownFace) error {
	query := `
		INSERT INTO known_faces (urn, embedding, details, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (urn) DO UPDATE
		SET embedding = EXCLUDED.embedding, details = EXCLUDED.details, updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, face.URN, toVector(face.Embedding), detailsOrEmpty(face.Details)); err != nil {
		return fmt.Errorf("upsert known face: %w", err)
	}

	return nil
}

func (r *KnownFaceRepository) ListAll(ctx context.Context) ([]domain.KnownFace, error) {
	query := `
		SELECT urn, embedding, details
		FROM known_faces
		ORDER BY urn
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list known faces: %w", err)
	}
	defer rows.Close()

	var faces []domain.KnownFace
	for rows.Next() {
		var face domain.KnownFace
		var embedding *pgvector.Vector

		if err := rows.Scan(&face.URN, &embedding, &face.Details); err != nil {
			return nil, fmt.Errorf("scan known face: %w", err)
		}
		face.Embedding = fromVector(embedding)
		faces = append(faces, face)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate known faces: %w", err)
	}

	return faces, nil
}

func (r *KnownFaceRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM known_faces`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count known faces: %w", err)
	}
	return n, nil
}

// Load implements embedding.Loader. An empty table is an empty watch-list.
func (r *KnownFaceRepository) Load(ctx context.Context) ([]domain.KnownFace, error) {
	faces, err := r.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLoad, err)
	}
	return faces, nil
}

func toVector(embedding []float64) *pgvector.Vector {
	if len(embedding) == 0 {
		return nil
	}
	floats := make([]float32, len(embedding))
	for i, v := range embedding {
		floats[i] = float32(v)
	}
	vec := pgvector.NewVector(floats)
	return &vec
}

func fromVector(v *pgvector.Vector) []float64 {
	if v == nil {
		return nil
	}
	slice := v.Slice()
	out := make([]float64, len(slice))
	for i, f := range slice {
		out[i] = float64(f)
	}
	return out
}

func detailsOrEmpty(d map[string]interface{}) map[string]interface{} {
	if d == nil {
		return map[string]interface{}{}
	}
	return d
}
