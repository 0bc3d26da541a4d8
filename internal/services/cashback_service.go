package services

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
)

type CashbackRedemption struct {
	CashbackEntry *models.LedgerEntry
	WalletEntry   *models.LedgerEntry
}

// CashbackService moves earned cashback into the owner's wallet.
type CashbackService struct {
	base
	ledger *LedgerService
}

func NewCashbackService(d Deps, ledger *LedgerService) *CashbackService {
	return &CashbackService{base: newBase(d), ledger: ledger}
}

// Redeem debits the cashback account and credits the wallet in one
// transaction. Both accounts must already exist.
func (s *CashbackService) Redeem(ctx context.Context, ownerID string, amount decimal.Decimal) (*CashbackRedemption, error) {
	if ownerID == "" {
		return nil, invalidf("owner id is required")
	}
	if !amount.IsPositive() {
		return nil, invalidf("amount must be greater than zero")
	}
	if !fitsMoneyScale(amount) {
		return nil, invalidf("amount %s has more than %d decimal places", amount, moneyScale)
	}

	transferID := uuid.NewString()
	out := &CashbackRedemption{}
	err := s.tx.Run(ctx, func(tx *sql.Tx) error {
		cashbackID, err := s.accountID(ctx, tx, ownerID, models.AccountKindCashback)
		if err != nil {
			return err
		}
		walletID, err := s.accountID(ctx, tx, ownerID, models.AccountKindWallet)
		if err != nil {
			return err
		}

		locked, err := s.ledger.lockAccountsOrdered(ctx, tx, cashbackID, walletID)
		if err != nil {
			return err
		}
		cashback, wallet := locked[0], locked[1]
		if cashback.Currency != wallet.Currency {
			return invalidf("cashback currency %s does not match wallet currency %s", cashback.Currency, wallet.Currency)
		}

		out.CashbackEntry, err = s.ledger.applyToLocked(ctx, tx, cashback, EntryRequest{
			AccountID:   cashback.ID,
			Direction:   models.DirectionDebit,
			Amount:      amount,
			Reason:      models.ReasonCashbackRedeemed,
			RelatedType: models.RelatedLedgerEntry,
			RelatedID:   transferID,
		})
		if err != nil {
			return err
		}

		out.WalletEntry, err = s.ledger.applyToLocked(ctx, tx, wallet, EntryRequest{
			AccountID:   wallet.ID,
			Direction:   models.DirectionCredit,
			Amount:      amount,
			Reason:      models.ReasonCashbackRedeemed,
			RelatedType: models.RelatedLedgerEntry,
			RelatedID:   out.CashbackEntry.ID,
		})
		return err
	})
	if err != nil {
		if IsBusinessRejection(err) {
			s.audit.LogRejected(transferID, ownerID, amount, err)
		} else {
			s.audit.LogError(transferID, ownerID, err)
		}
		return nil, err
	}

	s.publishEntry(ctx, out.CashbackEntry)
	s.publishEntry(ctx, out.WalletEntry)
	return out, nil
}

func (s *CashbackService) accountID(ctx context.Context, tx *sql.Tx, ownerID string, kind models.AccountKind) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM accounts WHERE owner_id = $1 AND kind = $2`,
		ownerID, string(kind)).Scan(&id)
	if err != nil {
		return "", notFoundOr(err, string(kind)+" account for owner", ownerID)
	}
	return id, nil
}
