package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/Romainl01/photobooth-backend/internal/models"
)

var (
	// ErrInsufficientCredits means the guarded decrement matched no row:
	// either the balance is below one or the profile does not exist.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrDuplicateGrant means the payment intent was already recorded; the
	// balance was not touched.
	ErrDuplicateGrant = errors.New("payment already granted")
)

// LedgerRepository implements the two atomic ledger procedures. Both run as
// a single transaction; concurrent callers are serialized by the row lock on
// the guarded UPDATE (debit) and the unique payment_intent_id index (grant).
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// DebitCredit decrements the balance by one and increments total_generated
// iff at least one credit remains, recording the debit row alongside. It
// returns the post-debit balance. The conditional UPDATE is the sole
// enforcement of the non-negative balance under concurrent callers.
func (r *LedgerRepository) DebitCredit(ctx context.Context, profileID, reason string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin debit: %w", err)
	}
	defer tx.Rollback()

	const debit = `
UPDATE profiles SET credits = credits - 1, total_generated = total_generated + 1, updated_at = NOW()
WHERE id = ? AND credits >= 1`
	res, err := tx.ExecContext(ctx, debit, profileID)
	if err != nil {
		return 0, fmt.Errorf("debit credit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("debit rows affected: %w", err)
	}
	if affected == 0 {
		return 0, ErrInsufficientCredits
	}

	const record = `
INSERT INTO credit_transactions (profile_id, direction, amount, reason)
VALUES (?, ?, 1, ?)`
	if _, err := tx.ExecContext(ctx, record, profileID, models.DirectionDebit, reason); err != nil {
		return 0, fmt.Errorf("record debit: %w", err)
	}

	var balance int
	const read = `SELECT credits FROM profiles WHERE id = ?`
	if err := tx.QueryRowContext(ctx, read, profileID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit debit: %w", err)
	}
	return balance, nil
}

// GrantCredit increments the balance by amount unless paymentIntentID was
// already recorded. The ledger insert and the balance update share one
// transaction, so the unique index on payment_intent_id is both the
// duplicate detector and the idempotency guarantee.
func (r *LedgerRepository) GrantCredit(ctx context.Context, profileID string, amount int, paymentIntentID, packageName string) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive, got %d", amount)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grant: %w", err)
	}
	defer tx.Rollback()

	const record = `
INSERT INTO credit_transactions (profile_id, direction, amount, reason, payment_intent_id)
VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, record, profileID, models.DirectionGrant, amount, packageName, paymentIntentID); err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateGrant
		}
		return fmt.Errorf("record grant: %w", err)
	}

	const grant = `UPDATE profiles SET credits = credits + ?, updated_at = NOW() WHERE id = ?`
	res, err := tx.ExecContext(ctx, grant, amount, profileID)
	if err != nil {
		return fmt.Errorf("grant credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("grant rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("grant target profile %s not found", profileID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grant: %w", err)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
