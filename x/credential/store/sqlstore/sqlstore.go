// Package sqlstore is the persistent, transactional Repository built on bun.
// SQLite (modernc, pure Go) and PostgreSQL (pgx) are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/compose-network/issuer/x/credential"
	"github.com/compose-network/issuer/x/credential/store"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var _ store.Repository = (*Store)(nil)

// Store implements store.Repository on a SQL database.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

// Open connects to the database and creates the schema if needed.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	driverName := driver
	if driver == DriverPostgres {
		driverName = "pgx"
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("store dsn is required for driver %q", driver)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	var db *bun.DB
	switch driver {
	case DriverSQLite:
		// A single connection serializes writers; compare-and-set stays exact.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		db = bun.NewDB(sqlDB, sqlitedialect.New())
	default:
		db = bun.NewDB(sqlDB, pgdialect.New())
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	models := []interface{}{
		(*achievementModel)(nil),
		(*verifierModel)(nil),
		(*certificateModel)(nil),
		(*nonceModel)(nil),
	}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	indexes := []struct {
		model  interface{}
		name   string
		column string
	}{
		{(*achievementModel)(nil), "idx_achievements_owner", "owner"},
		{(*achievementModel)(nil), "idx_achievements_status", "status"},
		{(*certificateModel)(nil), "idx_certificates_owner", "owner"},
	}
	for _, idx := range indexes {
		if _, err := s.db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.column).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateAchievement(ctx context.Context, a *credential.Achievement) error {
	if a.Version == 0 {
		a.Version = 1
	}
	m, err := achievementToModel(a)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return mapDBError(err)
	}
	return nil
}

func (s *Store) GetAchievement(ctx context.Context, id string) (*credential.Achievement, error) {
	return getAchievement(ctx, s.db, id)
}

func getAchievement(ctx context.Context, db bun.IDB, id string) (*credential.Achievement, error) {
	var m achievementModel
	if err := db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, mapDBError(err)
	}
	return modelToAchievement(m)
}

func (s *Store) ListAchievements(ctx context.Context, f store.AchievementFilter) ([]*credential.Achievement, error) {
	var rows []achievementModel
	q := s.db.NewSelect().Model(&rows)
	if f.Owner != (common.Address{}) {
		q = q.Where("owner = ?", f.Owner.Hex())
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if len(f.Categories) > 0 {
		q = q.Where("category_id IN (?)", bun.In(f.Categories))
	}
	if err := q.Order("created_at ASC", "id ASC").Scan(ctx); err != nil {
		return nil, mapDBError(err)
	}

	out := make([]*credential.Achievement, 0, len(rows))
	for _, m := range rows {
		a, err := modelToAchievement(m)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// UpdateAchievement reads, mutates and writes inside one transaction. The UPDATE is
// conditioned on the version read, so a concurrent writer makes it affect zero rows.
func (s *Store) UpdateAchievement(ctx context.Context, id string, mutate store.MutateFunc) (*credential.Achievement, error) {
	var out *credential.Achievement
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		cur, err := getAchievement(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := store.ApplyMutation(cur, mutate, s.now())
		if err != nil {
			return err
		}
		if err := casAchievement(ctx, tx, cur.Version, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func casAchievement(ctx context.Context, tx bun.Tx, expectedVersion uint64, next *credential.Achievement) error {
	m, err := achievementToModel(next)
	if err != nil {
		return err
	}
	res, err := tx.NewUpdate().Model(&m).WherePK().Where("version = ?", expectedVersion).Exec(ctx)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}

func (s *Store) UpsertVerifier(ctx context.Context, v *credential.Verifier) (*credential.Verifier, error) {
	var out *credential.Verifier
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := s.now().UTC()
		cp := v.Clone()
		cp.UpdatedAt = now

		var existing verifierModel
		err := tx.NewSelect().Model(&existing).Where("address = ?", v.Address.Hex()).Scan(ctx)
		switch {
		case err == nil:
			cp.RegisteredAt = existing.RegisteredAt
		case errors.Is(err, sql.ErrNoRows):
			if cp.RegisteredAt.IsZero() {
				cp.RegisteredAt = now
			}
		default:
			return err
		}

		m := verifierToModel(cp)
		_, err = tx.NewInsert().Model(&m).
			On("CONFLICT (address) DO UPDATE").
			Set("display_name = EXCLUDED.display_name").
			Set("credentials = EXCLUDED.credentials").
			Set("categories = EXCLUDED.categories").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return mapDBError(err)
		}
		out = modelToVerifier(m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetVerifier(ctx context.Context, addr common.Address) (*credential.Verifier, error) {
	var m verifierModel
	if err := s.db.NewSelect().Model(&m).Where("address = ?", addr.Hex()).Scan(ctx); err != nil {
		return nil, mapDBError(err)
	}
	return modelToVerifier(m), nil
}

func (s *Store) ListVerifiers(ctx context.Context) ([]*credential.Verifier, error) {
	var rows []verifierModel
	if err := s.db.NewSelect().Model(&rows).Order("address ASC").Scan(ctx); err != nil {
		return nil, mapDBError(err)
	}
	out := make([]*credential.Verifier, 0, len(rows))
	for _, m := range rows {
		out = append(out, modelToVerifier(m))
	}
	return out, nil
}

// CommitClaim inserts the certificate and flips claiming→claimed in one transaction.
func (s *Store) CommitClaim(ctx context.Context, cert *credential.Certificate) (*credential.Achievement, error) {
	var out *credential.Achievement
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*certificateModel)(nil)).
			Where("achievement_id = ?", cert.AchievementID).Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return store.ErrDuplicate
		}

		cur, err := getAchievement(ctx, tx, cert.AchievementID)
		if err != nil {
			return err
		}
		if cur.Status != credential.StatusClaiming {
			return store.ErrConflict
		}
		next, err := store.ApplyMutation(cur, func(a *credential.Achievement) error {
			minted := cert.MintedAt
			a.Status = credential.StatusClaimed
			a.ClaimedAt = &minted
			return nil
		}, s.now())
		if err != nil {
			return err
		}

		m := certificateToModel(cert)
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			return mapDBError(err)
		}
		if err := casAchievement(ctx, tx, cur.Version, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetCertificate(ctx context.Context, achievementID string) (*credential.Certificate, error) {
	var m certificateModel
	if err := s.db.NewSelect().Model(&m).Where("achievement_id = ?", achievementID).Scan(ctx); err != nil {
		return nil, mapDBError(err)
	}
	return modelToCertificate(m), nil
}

func (s *Store) ListCertificates(ctx context.Context, owner common.Address) ([]*credential.Certificate, error) {
	var rows []certificateModel
	q := s.db.NewSelect().Model(&rows)
	if owner != (common.Address{}) {
		q = q.Where("owner = ?", owner.Hex())
	}
	if err := q.Order("minted_at ASC", "id ASC").Scan(ctx); err != nil {
		return nil, mapDBError(err)
	}
	out := make([]*credential.Certificate, 0, len(rows))
	for _, m := range rows {
		out = append(out, modelToCertificate(m))
	}
	return out, nil
}

func (s *Store) BurnNonce(ctx context.Context, n credential.UsedNonce) error {
	if n.UsedAt.IsZero() {
		n.UsedAt = s.now()
	}
	m := nonceModel{
		Nonce:         n.Nonce.Hex(),
		AchievementID: n.AchievementID,
		UsedAt:        n.UsedAt.UTC(),
		ExpiresAt:     n.ExpiresAt.UTC(),
	}
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return mapDBError(err)
	}
	return nil
}

func (s *Store) NonceUsed(ctx context.Context, nonce common.Hash) (bool, error) {
	return s.db.NewSelect().Model((*nonceModel)(nil)).Where("nonce = ?", nonce.Hex()).Exists(ctx)
}

// mapDBError maps driver errors onto the store sentinels. Constraint detection is
// string based so this file does not depend on driver error types.
func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	le := strings.ToLower(err.Error())
	// Postgres unique violation (23505), SQLite unique/primary key constraint
	if strings.Contains(le, "unique") || strings.Contains(le, "duplicate") || strings.Contains(le, "23505") ||
		strings.Contains(le, "constraint failed: primary key") {
		return store.ErrDuplicate
	}
	return err
}
