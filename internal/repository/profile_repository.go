package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Romainl01/photobooth-backend/internal/models"
)

type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) DB() *sql.DB {
	return r.db
}

// FindByID returns the profile or (nil, nil) when no row exists.
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	const query = `
SELECT id, credits, total_generated, created_at, updated_at
FROM profiles WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var p models.Profile
	if err := row.Scan(&p.ID, &p.Credits, &p.TotalGenerated, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return &p, nil
}

// Ensure returns the profile for id, creating it with the starting free
// balance on first sight. The provisioning grant is recorded in the ledger
// inside the same transaction so the balance never appears without a cause.
func (r *ProfileRepository) Ensure(ctx context.Context, id string, startingCredits int) (*models.Profile, bool, error) {
	profile, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if profile != nil {
		return profile, false, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin provision: %w", err)
	}
	defer tx.Rollback()

	const insertProfile = `INSERT INTO profiles (id, credits, total_generated) VALUES (?, ?, 0)`
	if _, err := tx.ExecContext(ctx, insertProfile, id, startingCredits); err != nil {
		if isDuplicateKey(err) {
			// Lost a provisioning race; the other request created the row.
			profile, err = r.FindByID(ctx, id)
			if err != nil {
				return nil, false, err
			}
			if profile == nil {
				return nil, false, fmt.Errorf("profile %s vanished after duplicate insert", id)
			}
			return profile, false, nil
		}
		return nil, false, fmt.Errorf("insert profile: %w", err)
	}

	if startingCredits > 0 {
		const insertGrant = `
INSERT INTO credit_transactions (profile_id, direction, amount, reason)
VALUES (?, ?, ?, 'signup')`
		if _, err := tx.ExecContext(ctx, insertGrant, id, models.DirectionGrant, startingCredits); err != nil {
			return nil, false, fmt.Errorf("record signup grant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit provision: %w", err)
	}

	profile, err = r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if profile == nil {
		return nil, false, fmt.Errorf("profile %s missing after provision", id)
	}
	return profile, true, nil
}
