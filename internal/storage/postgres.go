package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/motionctrl/internal/keyframes"
	"github.com/bdougie/motionctrl/internal/overlap"
	"github.com/bdougie/motionctrl/internal/tensor"
)

// Latent kinds stored per chain
const (
	kindPredX0 = "pred_x0"
	kindXInter = "x_inter"
)

// latentFrameAxis is the temporal axis of (B, C, N, h, w) latents
const latentFrameAxis = 2

// PostgresConfig holds connection details for PostgreSQL
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ConnString builds a postgres:// URL
func (c PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.User, c.Password, c.Host, c.Port, c.DBName)
}

// PostgresStore keeps one named continuation slot in PostgreSQL.
// Keyframes are JSONB columns; latents are stored one row per frame as pgvector vectors.
type PostgresStore struct {
	pool  *pgxpool.Pool
	chain string
}

// NewPostgresStore connects to connString and binds the store to the named chain
func NewPostgresStore(ctx context.Context, connString, chain string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool, chain: chain}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Load implements Store
func (s *PostgresStore) Load(ctx context.Context) (*overlap.Continuation, error) {
	c := &overlap.Continuation{}

	var (
		id              uuid.UUID
		camera, traj    []byte
		batch, channels int
		height, width   int
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, camera, trajectory, batch, channels, height, width
		FROM continuation_chains WHERE name = $1`,
		s.chain).Scan(&id, &camera, &traj, &batch, &channels, &height, &width)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load continuation '%s': %w", s.chain, err)
	}

	if c.Camera, err = decodeKeyframes(camera); err != nil {
		return nil, err
	}
	if c.Trajectory, err = decodeKeyframes(traj); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT kind, frame_index, frame FROM continuation_latents
		WHERE chain_id = $1 ORDER BY kind, frame_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load latents: %w", err)
	}
	defer rows.Close()

	byKind := map[string][][]float32{}
	for rows.Next() {
		var (
			kind  string
			index int
			frame pgvector.Vector
		)
		if err := rows.Scan(&kind, &index, &frame); err != nil {
			return nil, fmt.Errorf("failed to scan latent frame: %w", err)
		}
		if index != len(byKind[kind]) {
			return nil, fmt.Errorf("latent %s has a gap at frame %d", kind, index)
		}
		byKind[kind] = append(byKind[kind], frame.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if frames := byKind[kindPredX0]; len(frames) > 0 {
		if c.PredX0, err = joinFrames(frames, batch, channels, height, width); err != nil {
			return nil, err
		}
	}
	if frames := byKind[kindXInter]; len(frames) > 0 {
		if c.XInter, err = joinFrames(frames, batch, channels, height, width); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Save implements Store
func (s *PostgresStore) Save(ctx context.Context, c *overlap.Continuation) error {
	if c == nil {
		return nil
	}
	camera, err := encodeKeyframes(c.Camera)
	if err != nil {
		return err
	}
	traj, err := encodeKeyframes(c.Trajectory)
	if err != nil {
		return err
	}

	var dims [4]int
	for _, t := range []*tensor.Tensor{c.PredX0, c.XInter} {
		if t == nil {
			continue
		}
		if t.Rank() != 5 {
			return fmt.Errorf("latents must be (B, C, N, h, w), got %v", t.Shape)
		}
		dims = [4]int{t.Shape[0], t.Shape[1], t.Shape[3], t.Shape[4]}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	var id uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO continuation_chains
		(id, name, camera, trajectory, batch, channels, height, width, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (name) DO UPDATE SET
			camera = COALESCE(EXCLUDED.camera, continuation_chains.camera),
			trajectory = COALESCE(EXCLUDED.trajectory, continuation_chains.trajectory),
			batch = CASE WHEN $10 THEN EXCLUDED.batch ELSE continuation_chains.batch END,
			channels = CASE WHEN $10 THEN EXCLUDED.channels ELSE continuation_chains.channels END,
			height = CASE WHEN $10 THEN EXCLUDED.height ELSE continuation_chains.height END,
			width = CASE WHEN $10 THEN EXCLUDED.width ELSE continuation_chains.width END,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		uuid.New(), s.chain, camera, traj, dims[0], dims[1], dims[2], dims[3], now, c.PredX0 != nil || c.XInter != nil,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to store continuation '%s': %w", s.chain, err)
	}

	for kind, t := range map[string]*tensor.Tensor{kindPredX0: c.PredX0, kindXInter: c.XInter} {
		if t == nil {
			continue
		}
		if err := writeLatent(ctx, tx, id, kind, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit continuation: %w", err)
	}
	return nil
}

// Reset implements Store
func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM continuation_chains WHERE name = $1", s.chain); err != nil {
		return fmt.Errorf("failed to reset continuation '%s': %w", s.chain, err)
	}
	return nil
}

func writeLatent(ctx context.Context, tx pgx.Tx, id uuid.UUID, kind string, t *tensor.Tensor) error {
	frames, err := splitFrames(t)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		"DELETE FROM continuation_latents WHERE chain_id = $1 AND kind = $2", id, kind); err != nil {
		return fmt.Errorf("failed to clear %s latents: %w", kind, err)
	}
	for i, frame := range frames {
		_, err := tx.Exec(ctx,
			`INSERT INTO continuation_latents (chain_id, kind, frame_index, frame)
			VALUES ($1, $2, $3, $4)`,
			id, kind, i, pgvector.NewVector(frame))
		if err != nil {
			return fmt.Errorf("failed to store %s frame %d: %w", kind, i, err)
		}
	}
	return nil
}

// splitFrames cuts (B, C, N, h, w) latents into N vectors of B*C*h*w values
func splitFrames(t *tensor.Tensor) ([][]float32, error) {
	if t.Rank() != 5 {
		return nil, fmt.Errorf("latents must be (B, C, N, h, w), got %v", t.Shape)
	}
	moved, err := t.Transpose(latentFrameAxis, 0, 1, 3, 4)
	if err != nil {
		return nil, err
	}
	n := t.Shape[latentFrameAxis]
	per := t.Len() / max(n, 1)
	frames := make([][]float32, n)
	for i := range frames {
		frames[i] = moved.Data[i*per : (i+1)*per]
	}
	return frames, nil
}

// joinFrames reverses splitFrames
func joinFrames(frames [][]float32, batch, channels, height, width int) (*tensor.Tensor, error) {
	per := batch * channels * height * width
	flat := make([]float32, 0, per*len(frames))
	for i, f := range frames {
		if len(f) != per {
			return nil, fmt.Errorf("latent frame %d has %d values, want %d", i, len(f), per)
		}
		flat = append(flat, f...)
	}
	moved, err := tensor.FromData(flat, len(frames), batch, channels, height, width)
	if err != nil {
		return nil, err
	}
	return moved.Transpose(1, 2, 0, 3, 4)
}

func encodeKeyframes(kf keyframes.Keyframes) (any, error) {
	if kf == nil {
		return nil, nil
	}
	data, err := json.Marshal(kf)
	if err != nil {
		return nil, fmt.Errorf("failed to encode keyframes: %w", err)
	}
	return string(data), nil
}

func decodeKeyframes(data []byte) (keyframes.Keyframes, error) {
	if data == nil {
		return nil, nil
	}
	var kf keyframes.Keyframes
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to decode stored keyframes: %w", err)
	}
	return kf, nil
}

// InitSchema creates the continuation tables if they don't exist
func InitSchema(ctx context.Context, connString string) error {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	err = conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for vector extension: %w", err)
	}
	if !exists {
		if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
	}

	_, err = conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS continuation_chains (
            id UUID PRIMARY KEY,
            name VARCHAR(255) NOT NULL UNIQUE,
            camera JSONB,
            trajectory JSONB,
            batch INTEGER NOT NULL DEFAULT 0,
            channels INTEGER NOT NULL DEFAULT 0,
            height INTEGER NOT NULL DEFAULT 0,
            width INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );

        CREATE TABLE IF NOT EXISTS continuation_latents (
            chain_id UUID REFERENCES continuation_chains(id) ON DELETE CASCADE,
            kind VARCHAR(16) NOT NULL,
            frame_index INTEGER NOT NULL,
            frame vector NOT NULL,
            PRIMARY KEY (chain_id, kind, frame_index)
        );
    `)
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}
	return nil
}
