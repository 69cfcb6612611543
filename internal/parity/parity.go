// Package parity keeps balance-only accounts in line with the source by
// posting a single synthetic adjustment when the balances differ.
package parity

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/dvloznov/budget-sync/internal/transcode"
)

// Unit is the number of minor units per dollar in a destination ledger.
type Unit int64

const (
	Cents      Unit = 100
	Milliunits Unit = 1000
)

// currencyCode is the ISO code balances are rendered in.
const currencyCode = "NZD"

// PayeeName is the payee of every adjustment entry.
const PayeeName = "Balance Adjustment"

// Adjustment is a synthetic entry that closes the gap between two balances.
type Adjustment struct {
	Date   civil.Date
	Amount int64 // minor units, source minus destination
	Unit   Unit
	Payee  string
	Memo   string

	From int64 // destination balance before, minor units
	To   int64 // source balance, minor units
}

// Dollars returns Amount in dollars.
func (a Adjustment) Dollars() decimal.Decimal {
	return decimal.NewFromInt(a.Amount).Div(decimal.NewFromInt(int64(a.Unit)))
}

// Account is a destination account that supports balance parity.
type Account interface {
	Unit() Unit
	DestinationBalance(ctx context.Context, m *domain.AccountMapping) (int64, error)
	PostAdjustment(ctx context.Context, m *domain.AccountMapping, adj Adjustment) error
}

// ToMinor converts dollars to minor units of u, rounding half away from zero.
func ToMinor(d decimal.Decimal, u Unit) int64 {
	return d.Mul(decimal.NewFromInt(int64(u))).Round(0).IntPart()
}

// FormatMoney renders a minor-unit amount as NZ dollars, e.g. "$1,234.56".
func FormatMoney(minor int64, u Unit) string {
	cents := decimal.NewFromInt(minor).Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(u))).Round(0).IntPart()
	return money.New(cents, currencyCode).Display()
}

// Compute returns the adjustment needed to bring destMinor to source.
// It reports false when the balances already agree.
func Compute(source decimal.Decimal, destMinor int64, u Unit, today civil.Date) (Adjustment, bool) {
	sourceMinor := ToMinor(source, u)
	if sourceMinor == destMinor {
		return Adjustment{}, false
	}
	return Adjustment{
		Date:   today,
		Amount: sourceMinor - destMinor,
		Unit:   u,
		Payee:  PayeeName,
		Memo: fmt.Sprintf("Adjusted from %s to %s to reconcile tracking account",
			FormatMoney(destMinor, u), FormatMoney(sourceMinor, u)),
		From: destMinor,
		To:   sourceMinor,
	}, true
}

// Controller runs the compare-and-adjust cycle for one account at a time.
type Controller struct {
	now func() time.Time
}

// NewController returns a controller that dates adjustments with the current local day.
func NewController() *Controller {
	return &Controller{now: time.Now}
}

// NewControllerWithClock is NewController with an injected clock.
func NewControllerWithClock(now func() time.Time) *Controller {
	return &Controller{now: now}
}

// Reconcile compares source with the destination balance of m and posts at
// most one adjustment. It returns the number of entries written.
func (c *Controller) Reconcile(ctx context.Context, acct Account, m *domain.AccountMapping, source decimal.Decimal) (int, error) {
	log := logger.FromContext(ctx)
	unit := acct.Unit()

	dest, err := acct.DestinationBalance(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("Reconcile: reading destination balance: %w", err)
	}

	log.Info().
		Str("account", m.SourceName).
		Str("source_balance", FormatMoney(ToMinor(source, unit), unit)).
		Str("destination_balance", FormatMoney(dest, unit)).
		Msg("Balance comparison")

	today := civil.DateOf(c.now().UTC().Add(transcode.LocalOffset))
	adj, needed := Compute(source, dest, unit, today)
	if !needed {
		log.Debug().Str("account", m.SourceName).Msg("Balances match, no adjustment needed")
		return 0, nil
	}

	if err := acct.PostAdjustment(ctx, m, adj); err != nil {
		return 0, fmt.Errorf("Reconcile: posting adjustment: %w", err)
	}
	log.Info().
		Str("account", m.SourceName).
		Str("adjustment", adj.Dollars().StringFixed(2)).
		Str("memo", adj.Memo).
		Msg("Created balance adjustment")
	return 1, nil
}
