// Package transcode converts source transactions into the shape and unit of
// each destination ledger. Everything here is pure.
package transcode

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-sync/internal/domain"
)

const (
	// LocalOffset is the fixed local offset applied to source timestamps. DST is ignored.
	LocalOffset = 13 * time.Hour
	// UnknownPayee is used when neither merchant nor description yields a name.
	UnknownPayee = "Unknown"
	// ActualScale is the number of decimal places kept for the budget file.
	ActualScale = 4
)

// LocalDate converts a UTC source timestamp to the local calendar date.
// It reports false for a missing or malformed timestamp.
func LocalDate(ts string) (civil.Date, bool) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return civil.Date{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return civil.Date{}, false
	}
	return civil.DateOf(t.UTC().Add(LocalOffset)), true
}

// PayeeName prefers the merchant name, then the description.
func PayeeName(tx domain.SourceTransaction) string {
	if len(tx.Merchant) > 0 && string(tx.Merchant) != "null" {
		var m domain.Merchant
		if err := json.Unmarshal(tx.Merchant, &m); err != nil {
			return UnknownPayee
		}
		if name := strings.TrimSpace(m.Name); name != "" {
			return name
		}
	}
	if desc := strings.TrimSpace(tx.Description); desc != "" {
		return desc
	}
	return UnknownPayee
}

// Quantize rounds a dollar amount to ActualScale places.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(ActualScale)
}

// Milliunits converts dollars to YNAB milliunits, rounding half away from zero.
func Milliunits(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(1000)).Round(0).IntPart()
}

// ActualRow is a source transaction in budget-file form.
type ActualRow struct {
	Date     civil.Date
	Payee    string
	Notes    string
	Amount   decimal.Decimal
	ImportID string
	Cleared  bool
}

// ForActual transcodes tx for the budget file. A null date is a ValidationFailure.
func ForActual(tx domain.SourceTransaction) (ActualRow, error) {
	date, ok := LocalDate(tx.Date)
	if !ok {
		return ActualRow{}, domain.NewSyncError(domain.ErrValidationFailure, domain.DestinationActual, tx.AccountID,
			fmt.Errorf("ForActual: transaction %s has invalid date %q", tx.ID, tx.Date))
	}
	return ActualRow{
		Date:     date,
		Payee:    PayeeName(tx),
		Notes:    tx.Description,
		Amount:   Quantize(tx.Amount),
		ImportID: tx.ID,
		Cleared:  true,
	}, nil
}

// YNABTransaction is the request body element for a YNAB transaction batch.
type YNABTransaction struct {
	AccountID string `json:"account_id"`
	Date      string `json:"date"`
	Amount    int64  `json:"amount"`
	PayeeName string `json:"payee_name"`
	Memo      string `json:"memo"`
	ImportID  string `json:"import_id,omitempty"`
	Cleared   string `json:"cleared"`
	FlagColor string `json:"flag_color,omitempty"`
	Approved  bool   `json:"approved"`
}

// ForYNAB transcodes tx for the YNAB account accountID.
func ForYNAB(tx domain.SourceTransaction, accountID string) (YNABTransaction, error) {
	date, ok := LocalDate(tx.Date)
	if !ok {
		return YNABTransaction{}, domain.NewSyncError(domain.ErrValidationFailure, domain.DestinationYNAB, tx.AccountID,
			fmt.Errorf("ForYNAB: transaction %s has invalid date %q", tx.ID, tx.Date))
	}
	return YNABTransaction{
		AccountID: accountID,
		Date:      date.String(),
		Amount:    Milliunits(tx.Amount),
		PayeeName: PayeeName(tx),
		Memo:      tx.Description,
		ImportID:  tx.ID,
		Cleared:   "cleared",
		FlagColor: "red",
		Approved:  false,
	}, nil
}
