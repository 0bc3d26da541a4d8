package services

import (
	"context"
	"database/sql"
	"fmt"
)

// EligibilityChecker decides whether an actor may redeem an offer. It is
// consulted before the offer row is locked.
type EligibilityChecker interface {
	IsEligible(ctx context.Context, offerID, actorID string) (bool, error)
}

// SQLEligibility applies the explicit allow and deny lists in
// offer_eligibility_rules. A deny always wins. When an offer has any allow
// rule, only listed actors are eligible.
type SQLEligibility struct {
	db *sql.DB
}

func NewSQLEligibility(db *sql.DB) *SQLEligibility {
	return &SQLEligibility{db: db}
}

func (e *SQLEligibility) IsEligible(ctx context.Context, offerID, actorID string) (bool, error) {
	var denied, allowed bool
	var allowRules int
	err := e.db.QueryRowContext(ctx, `
		SELECT COALESCE(BOOL_OR(rule = 'deny' AND actor_id = $2), false),
		       COALESCE(BOOL_OR(rule = 'allow' AND actor_id = $2), false),
		       COUNT(*) FILTER (WHERE rule = 'allow')
		FROM offer_eligibility_rules
		WHERE offer_id = $1`, offerID, actorID).Scan(&denied, &allowed, &allowRules)
	if err != nil {
		return false, fmt.Errorf("load eligibility rules: %w", err)
	}

	if denied {
		return false, nil
	}
	if allowRules > 0 {
		return allowed, nil
	}
	return true, nil
}

// AllowAll treats every actor as eligible.
type AllowAll struct{}

func (AllowAll) IsEligible(context.Context, string, string) (bool, error) { return true, nil }
