package transcode

import (
	"encoding/json"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/budget-sync/internal/domain"
)

func TestLocalDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want civil.Date
		ok   bool
	}{
		{"morning utc stays same day", "2025-06-01T05:00:00Z", civil.Date{Year: 2025, Month: 6, Day: 1}, true},
		{"late utc rolls to next day", "2025-06-01T11:30:00Z", civil.Date{Year: 2025, Month: 6, Day: 2}, true},
		{"milliseconds", "2025-06-01T11:30:00.123Z", civil.Date{Year: 2025, Month: 6, Day: 2}, true},
		{"offset input", "2025-06-01T20:00:00+12:00", civil.Date{Year: 2025, Month: 6, Day: 1}, true},
		{"empty", "", civil.Date{}, false},
		{"garbage", "not-a-date", civil.Date{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LocalDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPayeeName(t *testing.T) {
	tests := []struct {
		name string
		tx   domain.SourceTransaction
		want string
	}{
		{"merchant", domain.SourceTransaction{Description: "POS 1234", Merchant: json.RawMessage(`{"_id":"m1","name":"Countdown"}`)}, "Countdown"},
		{"merchant without name", domain.SourceTransaction{Description: "POS 1234", Merchant: json.RawMessage(`{"_id":"m1"}`)}, "POS 1234"},
		{"no merchant", domain.SourceTransaction{Description: "Transfer"}, "Transfer"},
		{"null merchant", domain.SourceTransaction{Description: "Transfer", Merchant: json.RawMessage(`null`)}, "Transfer"},
		{"broken merchant", domain.SourceTransaction{Description: "Transfer", Merchant: json.RawMessage(`"oops"`)}, UnknownPayee},
		{"nothing", domain.SourceTransaction{}, UnknownPayee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PayeeName(tt.tx))
		})
	}
}

func TestUnitConversion(t *testing.T) {
	amount := decimal.RequireFromString("12.345")

	assert.Equal(t, int64(12345), Milliunits(amount))
	assert.Equal(t, "12.3450", Quantize(amount).StringFixed(ActualScale))

	assert.Equal(t, int64(-4500), Milliunits(decimal.RequireFromString("-4.5")))
	assert.Equal(t, int64(1), Milliunits(decimal.RequireFromString("0.0005")))
	assert.Equal(t, "0.1235", Quantize(decimal.RequireFromString("0.12345")).StringFixed(ActualScale))
}

func TestForYNAB(t *testing.T) {
	tx := domain.SourceTransaction{
		ID:          "trans_1",
		AccountID:   "acc_1",
		Date:        "2025-06-01T11:30:00.000Z",
		Amount:      decimal.RequireFromString("-23.10"),
		Description: "COUNTDOWN AUCKLAND",
	}

	got, err := ForYNAB(tx, "ynab-acc")
	require.NoError(t, err)

	assert.Equal(t, YNABTransaction{
		AccountID: "ynab-acc",
		Date:      "2025-06-02",
		Amount:    -23100,
		PayeeName: "COUNTDOWN AUCKLAND",
		Memo:      "COUNTDOWN AUCKLAND",
		ImportID:  "trans_1",
		Cleared:   "cleared",
		FlagColor: "red",
	}, got)
}

func TestForActual(t *testing.T) {
	tx := domain.SourceTransaction{
		ID:          "trans_2",
		Date:        "2025-06-01T01:00:00Z",
		Amount:      decimal.RequireFromString("100"),
		Description: "Salary",
	}

	got, err := ForActual(tx)
	require.NoError(t, err)

	assert.Equal(t, civil.Date{Year: 2025, Month: 6, Day: 1}, got.Date)
	assert.Equal(t, "Salary", got.Payee)
	assert.Equal(t, "trans_2", got.ImportID)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(100)))
	assert.True(t, got.Cleared)
}

func TestNullDateIsValidationFailure(t *testing.T) {
	tx := domain.SourceTransaction{ID: "trans_3", AccountID: "acc_9", Date: ""}

	_, err := ForActual(tx)
	assert.ErrorIs(t, err, domain.ErrValidationFailure)

	_, err = ForYNAB(tx, "ynab-acc")
	assert.ErrorIs(t, err, domain.ErrValidationFailure)
	assert.Equal(t, "ValidationFailure", domain.KindName(err))
}
