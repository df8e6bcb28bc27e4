package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mintExchange/internal/model"
	"mintExchange/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Store provides Postgres persistence for listings, offers, activity and cursors.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the connection pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// LoadCursor returns the last applied block for a name.
func (s *Store) LoadCursor(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("cursor name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_block FROM sync_cursors WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// AdvanceCursor upserts the cursor, never moving it backward.
func (s *Store) AdvanceCursor(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("cursor name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_cursors (name, last_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_block = GREATEST(sync_cursors.last_block, EXCLUDED.last_block), updated_at = now()
	`, name, int64(block))
	return err
}

// UpsertUser inserts or refreshes a cached profile.
func (s *Store) UpsertUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (address, fid, username, display_name, pfp_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE SET
			fid = EXCLUDED.fid,
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			pfp_url = EXCLUDED.pfp_url,
			updated_at = EXCLUDED.updated_at
	`,
		user.Address,
		user.Identity.FID,
		user.Identity.Username,
		user.Identity.DisplayName,
		user.Identity.PFPURL,
		user.UpdatedAt,
	)
	return err
}

// InsertActivityIfAbsent appends an activity unless (tx hash, type, subject) exists.
func (s *Store) InsertActivityIfAbsent(ctx context.Context, a model.Activity) (bool, error) {
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	fid, username := identityColumns(a.ActorIdentity)
	var price *string
	if a.Price.Valid {
		p := a.Price.Decimal.String()
		price = &p
	}
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO activities (
			id, type, subject, actor_address, actor_fid, actor_username,
			nft_contract, token_id, price, metadata, tx_hash, block_number, log_index, created_at
		) VALUES ($1::text::uuid,$2,$3,$4,$5,$6,$7,$8,$9::text::numeric,$10,$11,$12,$13,$14)
		ON CONFLICT (tx_hash, type, subject) DO NOTHING
	`,
		id,
		string(a.Type),
		a.Subject,
		a.ActorAddress,
		fid,
		username,
		a.NFTContract,
		a.TokenID,
		price,
		metadata,
		model.NormalizeHex(a.TxHash),
		int64(a.BlockNumber),
		int64(a.LogIndex),
		a.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func identityColumns(ref *model.IdentityRef) (*int64, *string) {
	if ref == nil {
		return nil, nil
	}
	fid := ref.FID
	username := ref.Username
	return &fid, &username
}

func identityFromColumns(fid *int64, username *string) *model.IdentityRef {
	if fid == nil {
		return nil
	}
	ref := &model.IdentityRef{FID: *fid}
	if username != nil {
		ref.Username = *username
	}
	return ref
}
