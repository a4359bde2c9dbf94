// Package settlement implements the order state machine: it validates
// external execution reports against the calculator's independent
// recomputation, then commits ledger updates, mints or burns supply,
// and manages delayed redemption queuing.
package settlement

import (
	"context"

	"github.com/velora-fi/poolengine/pkg/fixedpoint"
)

// Custody is the cash/collateral pool collaborator. The engine pays,
// refunds, and checks hot-wallet sufficiency through it; custody
// percentages and cold-storage splitting are not its concern here.
type Custody interface {
	MoveFundsIn(ctx context.Context, token, fromAccount string, amount fixedpoint.Amount) (bool, error)
	MoveFundsOut(ctx context.Context, token, toAccount string, amount fixedpoint.Amount) (bool, error)
	Balance(ctx context.Context, token string) (fixedpoint.Amount, error)
}

// Identity is the whitelist/KYC collaborator. Every create, redeem,
// and settle operation is gated on it.
type Identity interface {
	IsWhitelisted(ctx context.Context, account string) (bool, error)
}

// Supply is the synthetic token collaborator. The engine never tracks
// individual holder balances, only aggregate supply.
type Supply interface {
	Mint(ctx context.Context, account string, amount fixedpoint.Amount) (bool, error)
	Burn(ctx context.Context, fromCustody bool, amount fixedpoint.Amount) (bool, error)
	TotalSupply(ctx context.Context) (fixedpoint.Amount, error)
}
