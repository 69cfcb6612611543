package parity

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/budget-sync/internal/domain"
)

// MockAccount is an in-memory Account whose balance moves when adjustments are posted.
type MockAccount struct {
	UnitValue  Unit
	Balance    int64
	Posted     []Adjustment
	BalanceErr error
	PostErr    error
}

func (m *MockAccount) Unit() Unit { return m.UnitValue }

func (m *MockAccount) DestinationBalance(ctx context.Context, _ *domain.AccountMapping) (int64, error) {
	return m.Balance, m.BalanceErr
}

func (m *MockAccount) PostAdjustment(ctx context.Context, _ *domain.AccountMapping, adj Adjustment) error {
	if m.PostErr != nil {
		return m.PostErr
	}
	m.Posted = append(m.Posted, adj)
	m.Balance += adj.Amount
	return nil
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC) }
}

func TestToMinor(t *testing.T) {
	assert.Equal(t, int64(123457), ToMinor(decimal.RequireFromString("1234.567"), Cents))
	assert.Equal(t, int64(1234567), ToMinor(decimal.RequireFromString("1234.567"), Milliunits))
	assert.Equal(t, int64(-5), ToMinor(decimal.RequireFromString("-0.045"), Cents))
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1,234.56", FormatMoney(123456, Cents))
	assert.Equal(t, "$1,234.56", FormatMoney(1234560, Milliunits))
	assert.Equal(t, "$0.00", FormatMoney(0, Cents))
}

func TestCompute(t *testing.T) {
	today := civil.Date{Year: 2025, Month: 7, Day: 2}

	adj, needed := Compute(decimal.RequireFromString("1500.25"), 100000, Cents, today)
	require.True(t, needed)
	assert.Equal(t, int64(50025), adj.Amount)
	assert.Equal(t, PayeeName, adj.Payee)
	assert.Equal(t, today, adj.Date)
	assert.Equal(t, "Adjusted from $1,000.00 to $1,500.25 to reconcile tracking account", adj.Memo)
	assert.Equal(t, "500.25", adj.Dollars().StringFixed(2))

	_, needed = Compute(decimal.RequireFromString("1000"), 1000000, Milliunits, today)
	assert.False(t, needed)
}

func TestReconcile_Converges(t *testing.T) {
	tests := []struct {
		name   string
		unit   Unit
		start  int64
		source string
		want   int64
	}{
		{"cents up", Cents, 100000, "1234.56", 123456},
		{"cents down", Cents, 500000, "-20.10", -2010},
		{"milliunits", Milliunits, 0, "99.999", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := &MockAccount{UnitValue: tt.unit, Balance: tt.start}
			c := NewControllerWithClock(fixedClock())
			m := &domain.AccountMapping{SourceID: "acc_1", SourceName: "KiwiSaver", Class: domain.Tracking}
			source := decimal.RequireFromString(tt.source)

			n, err := c.Reconcile(context.Background(), acct, m, source)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			assert.Equal(t, tt.want, acct.Balance)
			assert.Equal(t, civil.Date{Year: 2025, Month: 7, Day: 2}, acct.Posted[0].Date)

			n, err = c.Reconcile(context.Background(), acct, m, source)
			require.NoError(t, err)
			assert.Equal(t, 0, n)
			assert.Len(t, acct.Posted, 1)
		})
	}
}

func TestReconcile_Errors(t *testing.T) {
	m := &domain.AccountMapping{SourceID: "acc_1"}
	c := NewControllerWithClock(fixedClock())
	boom := errors.New("boom")

	_, err := c.Reconcile(context.Background(), &MockAccount{UnitValue: Cents, BalanceErr: boom}, m, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, boom)

	_, err = c.Reconcile(context.Background(), &MockAccount{UnitValue: Cents, PostErr: boom}, m, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, boom)
}
