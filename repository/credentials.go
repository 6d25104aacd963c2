package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	lifecycle "github.com/goliatone/go-auth-lifecycle"
	"github.com/uptrace/bun"
)

// CredentialModel is the Bun model for the stored session credential.
type CredentialModel struct {
	bun.BaseModel `bun:"table:session_credentials"`

	Name      string    `bun:"name,pk"`
	Token     string    `bun:"token,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// CredentialRepository implements lifecycle.TokenStore using Bun. It keeps a
// single row under a fixed name, so the credential survives restarts.
type CredentialRepository struct {
	db   *bun.DB
	name string
	now  func() time.Time
}

var _ lifecycle.TokenStore = (*CredentialRepository)(nil)

// CredentialOption customizes the repository.
type CredentialOption func(*CredentialRepository)

// WithCredentialName overrides the row name. Defaults to lifecycle.CredentialKey.
func WithCredentialName(name string) CredentialOption {
	return func(r *CredentialRepository) {
		if name != "" {
			r.name = name
		}
	}
}

// WithCredentialClock injects a custom clock (useful for tests).
func WithCredentialClock(now func() time.Time) CredentialOption {
	return func(r *CredentialRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewCredentialRepository creates a new repository.
func NewCredentialRepository(db *bun.DB, opts ...CredentialOption) *CredentialRepository {
	r := &CredentialRepository{
		db:   db,
		name: lifecycle.CredentialKey,
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// CreateTable creates the credentials table if it does not exist.
func (r *CredentialRepository) CreateTable(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*CredentialModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Save implements lifecycle.TokenStore. The upsert is a single statement so a
// concurrent Clear either runs before it or removes it entirely.
func (r *CredentialRepository) Save(ctx context.Context, token string) error {
	if token == "" {
		return r.Clear(ctx)
	}

	now := r.now().UTC()
	model := &CredentialModel{
		Name:      r.name,
		Token:     token,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (name) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// Load implements lifecycle.TokenStore.
func (r *CredentialRepository) Load(ctx context.Context) (string, bool, error) {
	var model CredentialModel
	err := r.db.NewSelect().
		Model(&model).
		Where("name = ?", r.name).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return model.Token, model.Token != "", nil
}

// Clear implements lifecycle.TokenStore.
func (r *CredentialRepository) Clear(ctx context.Context) error {
	_, err := r.db.NewDelete().
		Model((*CredentialModel)(nil)).
		Where("name = ?", r.name).
		Exec(ctx)
	return err
}

// UpdatedAt returns when the credential was last written.
func (r *CredentialRepository) UpdatedAt(ctx context.Context) (time.Time, bool, error) {
	var model CredentialModel
	err := r.db.NewSelect().
		Model(&model).
		Column("updated_at").
		Where("name = ?", r.name).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return model.UpdatedAt, true, nil
}
