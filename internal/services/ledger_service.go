package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const accountColumns = "id, owner_id, kind, balance, currency, version, created_at, updated_at"

// moneyScale is the number of decimal places the NUMERIC(20, 2) money columns hold.
const moneyScale = 2

// fitsMoneyScale reports whether d can be stored without Postgres rounding it.
func fitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(moneyScale))
}

// EntryRequest describes one money movement against one account.
type EntryRequest struct {
	AccountID   string
	Direction   models.Direction
	Amount      decimal.Decimal
	Reason      models.Reason
	RelatedType string
	RelatedID   string
	Metadata    models.Metadata
}

func (r EntryRequest) validate() error {
	if !r.Amount.IsPositive() {
		return invalidf("amount must be greater than zero")
	}
	if !fitsMoneyScale(r.Amount) {
		return invalidf("amount %s has more than %d decimal places", r.Amount, moneyScale)
	}
	if !r.Direction.Valid() {
		return invalidf("unknown direction %q", r.Direction)
	}
	if r.Reason == "" {
		return invalidf("reason is required")
	}
	return nil
}

// LedgerService is the append-only transaction log and balance projection
// for wallet and cashback accounts.
type LedgerService struct {
	base
}

func NewLedgerService(d Deps) *LedgerService {
	return &LedgerService{base: newBase(d)}
}

// ApplyEntry locks the account, writes the entry and the new balance, and commits.
func (s *LedgerService) ApplyEntry(ctx context.Context, req EntryRequest) (*models.LedgerEntry, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err := s.tx.Run(ctx, func(tx *sql.Tx) error {
		var err error
		entry, err = s.ApplyEntryTx(ctx, tx, req)
		return err
	})
	if err != nil {
		s.logFailure(req, err)
		return nil, err
	}

	s.publishEntry(ctx, entry)
	return entry, nil
}

// ApplyEntryTx does the work of ApplyEntry inside the caller's transaction.
func (s *LedgerService) ApplyEntryTx(ctx context.Context, tx *sql.Tx, req EntryRequest) (*models.LedgerEntry, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	account, err := s.lockAccount(ctx, tx, req.AccountID)
	if err != nil {
		return nil, err
	}
	return s.applyToLocked(ctx, tx, account, req)
}

// applyToLocked requires that account was read FOR UPDATE in tx.
func (s *LedgerService) applyToLocked(ctx context.Context, tx *sql.Tx, account *models.Account, req EntryRequest) (*models.LedgerEntry, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	balanceAfter := account.Balance.Add(req.Amount)
	if req.Direction == models.DirectionDebit {
		balanceAfter = account.Balance.Sub(req.Amount)
	}
	if balanceAfter.IsNegative() {
		return nil, fmt.Errorf("%w: account %s has %s, needs %s",
			ErrInsufficientFunds, account.ID, account.Balance.StringFixed(2), req.Amount.StringFixed(2))
	}

	entry := &models.LedgerEntry{
		ID:           uuid.NewString(),
		AccountID:    account.ID,
		Direction:    req.Direction,
		Amount:       req.Amount,
		BalanceAfter: balanceAfter,
		Reason:       req.Reason,
		RelatedType:  req.RelatedType,
		RelatedID:    req.RelatedID,
		Metadata:     req.Metadata,
		CreatedAt:    s.now(),
	}

	if err := s.createLedgerEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := s.updateAccountBalance(ctx, tx, account.ID, balanceAfter, account.Version); err != nil {
		return nil, err
	}

	account.Balance = balanceAfter
	account.Version++
	account.UpdatedAt = entry.CreatedAt
	return entry, nil
}

// EnsureAccount returns the owner's account of kind, creating it when missing.
func (s *LedgerService) EnsureAccount(ctx context.Context, ownerID string, kind models.AccountKind, currency string) (*models.Account, error) {
	if err := validateAccountKey(ownerID, kind); err != nil {
		return nil, err
	}

	var account *models.Account
	err := s.tx.Run(ctx, func(tx *sql.Tx) error {
		var err error
		account, err = s.EnsureAccountTx(ctx, tx, ownerID, kind, currency)
		return err
	})
	return account, err
}

// EnsureAccountTx creates the account if needed and returns it locked FOR UPDATE.
func (s *LedgerService) EnsureAccountTx(ctx context.Context, tx *sql.Tx, ownerID string, kind models.AccountKind, currency string) (*models.Account, error) {
	if err := validateAccountKey(ownerID, kind); err != nil {
		return nil, err
	}
	if currency == "" {
		currency = s.currency
	}

	now := s.now()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, owner_id, kind, balance, currency, version, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, 0, $5, $5)
		ON CONFLICT (owner_id, kind) DO NOTHING`,
		uuid.NewString(), ownerID, string(kind), currency, now)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	account, err := scanAccount(tx.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE owner_id = $1 AND kind = $2
		FOR UPDATE`, ownerID, string(kind)))
	if err != nil {
		return nil, notFoundOr(err, "account for owner", ownerID)
	}
	return account, nil
}

func (s *LedgerService) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	account, err := scanAccount(s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1`, accountID))
	if err != nil {
		return nil, notFoundOr(err, "account", accountID)
	}
	return account, nil
}

// ListEntries returns up to limit entries, newest first, optionally before a cursor time.
func (s *LedgerService) ListEntries(ctx context.Context, accountID string, limit int, before *time.Time) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, account_id, direction, amount, balance_after, reason,
		       COALESCE(related_type, ''), COALESCE(related_id, ''), metadata, created_at
		FROM ledger_entries
		WHERE account_id = $1`
	args := []any{accountID}
	if before != nil {
		query += " AND created_at < $2 ORDER BY created_at DESC LIMIT $3"
		args = append(args, *before, limit)
	} else {
		query += " ORDER BY created_at DESC LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Direction, &e.Amount, &e.BalanceAfter, &e.Reason,
			&e.RelatedType, &e.RelatedID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Reconcile compares the stored balance with the sum of the account's entries.
func (s *LedgerService) Reconcile(ctx context.Context, accountID string) (*models.Reconciliation, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}

	rec := &models.Reconciliation{AccountID: accountID}
	err := s.db.QueryRowContext(ctx, `
		SELECT a.balance,
		       COALESCE(SUM(CASE WHEN e.direction = 'credit' THEN e.amount ELSE -e.amount END), 0),
		       COUNT(e.id)
		FROM accounts a
		LEFT JOIN ledger_entries e ON e.account_id = a.id
		WHERE a.id = $1
		GROUP BY a.id, a.balance`, accountID).Scan(&rec.Balance, &rec.LedgerSum, &rec.EntryCount)
	if err != nil {
		return nil, notFoundOr(err, "account", accountID)
	}

	rec.Consistent = rec.Balance.Equal(rec.LedgerSum)
	if !rec.Consistent {
		s.log.WithFields(logrus.Fields{
			"account_id": accountID,
			"balance":    rec.Balance.StringFixed(2),
			"ledger_sum": rec.LedgerSum.StringFixed(2),
		}).Error("ledger does not reconcile with account balance")
	}
	return rec, nil
}

func (s *LedgerService) lockAccount(ctx context.Context, tx *sql.Tx, accountID string) (*models.Account, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	account, err := scanAccount(tx.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
		FOR UPDATE`, accountID))
	if err != nil {
		return nil, notFoundOr(err, "account", accountID)
	}
	return account, nil
}

// lockAccountsOrdered locks accounts in id order so concurrent multi-account
// operations cannot deadlock. Results are returned in the order requested.
func (s *LedgerService) lockAccountsOrdered(ctx context.Context, tx *sql.Tx, accountIDs ...string) ([]*models.Account, error) {
	order := make([]string, len(accountIDs))
	copy(order, accountIDs)
	sort.Strings(order)

	locked := make(map[string]*models.Account, len(order))
	for _, id := range order {
		if _, ok := locked[id]; ok {
			continue
		}
		account, err := s.lockAccount(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = account
	}

	out := make([]*models.Account, len(accountIDs))
	for i, id := range accountIDs {
		out[i] = locked[id]
	}
	return out, nil
}

func (s *LedgerService) createLedgerEntry(ctx context.Context, tx *sql.Tx, e *models.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, account_id, direction, amount, balance_after, reason, related_type, related_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.AccountID, string(e.Direction), e.Amount, e.BalanceAfter, string(e.Reason),
		nullString(e.RelatedType), nullString(e.RelatedID), e.Metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (s *LedgerService) updateAccountBalance(ctx context.Context, tx *sql.Tx, accountID string, newBalance decimal.Decimal, version int64) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, s.now(), accountID, version)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %s changed while locked", accountID)
	}
	return nil
}

func (s *LedgerService) logFailure(req EntryRequest, err error) {
	if IsBusinessRejection(err) {
		s.audit.LogRejected(req.RelatedID, req.AccountID, req.Amount, err)
		return
	}
	s.audit.LogError(req.RelatedID, req.AccountID, err)
}

func validateAccountKey(ownerID string, kind models.AccountKind) error {
	if ownerID == "" {
		return invalidf("owner id is required")
	}
	if !kind.Valid() {
		return invalidf("unknown account kind %q", kind)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Kind, &a.Balance, &a.Currency, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
