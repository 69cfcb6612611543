package memory

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/budget-sync/internal/actual"
)

var day = civil.Date{Year: 2025, Month: 6, Day: 1}

func req(importID, payee, amount string) actual.MatchRequest {
	return actual.MatchRequest{
		Date:       day,
		AccountID:  "acct",
		Payee:      payee,
		Notes:      payee,
		Amount:     decimal.RequireFromString(amount),
		ImportedID: importID,
		Cleared:    true,
	}
}

func TestMatchOrCreate_ImportedID(t *testing.T) {
	ctx := context.Background()
	l := New()

	first, err := l.MatchOrCreate(ctx, req("t1", "Countdown", "-10"))
	require.NoError(t, err)
	assert.True(t, first.Created)

	again, err := l.MatchOrCreate(ctx, req("t1", "Countdown", "-10"))
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.Transaction.ID, again.Transaction.ID)
	assert.Len(t, l.Transactions("acct"), 1)
}

func TestMatchOrCreate_TupleRespectsPoolAndImportID(t *testing.T) {
	ctx := context.Background()
	l := New()
	payee := l.AddPayee("Coffee")
	manual := l.Seed(actual.Transaction{AccountID: "acct", Date: day, PayeeID: payee, Amount: decimal.RequireFromString("-4.5")})

	matched, err := l.MatchOrCreate(ctx, req("t1", "Coffee", "-4.5"))
	require.NoError(t, err)
	assert.False(t, matched.Created)
	assert.Equal(t, manual.ID, matched.Transaction.ID)

	// A second identical coffee the same day must not reuse the claimed record.
	r := req("t2", "Coffee", "-4.5")
	r.AlreadyMatched = []string{manual.ID}
	second, err := l.MatchOrCreate(ctx, r)
	require.NoError(t, err)
	assert.True(t, second.Created)

	// A record imported under another id is never a fuzzy match.
	r = req("t3", "Coffee", "-4.5")
	r.AlreadyMatched = []string{manual.ID}
	third, err := l.MatchOrCreate(ctx, r)
	require.NoError(t, err)
	assert.True(t, third.Created)
}

func TestMatchOrCreate_UpdateExistingFalseLeavesRecord(t *testing.T) {
	ctx := context.Background()
	l := New()
	payee := l.AddPayee("Rent")
	l.Seed(actual.Transaction{AccountID: "acct", Date: day, PayeeID: payee, Notes: "manual", Amount: decimal.NewFromInt(-500)})

	res, err := l.MatchOrCreate(ctx, req("t9", "Rent", "-500"))
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "manual", res.Transaction.Notes)
	assert.Empty(t, res.Transaction.ImportedID)
}

func TestCommitAndDownload(t *testing.T) {
	ctx := context.Background()
	l := New()

	_, err := l.MatchOrCreate(ctx, req("t1", "A", "1"))
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx))
	_, err = l.MatchOrCreate(ctx, req("t2", "B", "2"))
	require.NoError(t, err)
	assert.Equal(t, 1, l.Staged())

	require.NoError(t, l.DownloadBudget(ctx))
	assert.Equal(t, 0, l.Staged())
	assert.Len(t, l.Transactions("acct"), 1)

	bal, err := l.AccountBalance(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal)
}

func TestCommitFailure(t *testing.T) {
	l := New()
	l.FailCommit = errors.New("disk full")
	assert.EqualError(t, l.Commit(context.Background()), "disk full")
}

func TestRuleset(t *testing.T) {
	ctx := context.Background()
	l := New()

	rs, err := l.Ruleset(ctx)
	require.NoError(t, err)
	assert.Nil(t, rs)

	groceries := l.AddCategory("Groceries")
	l.AddRule(Rule{
		Name: "groceries",
		When: func(tx *actual.Transaction) bool { return tx.ImportedPayee == "Countdown" },
		Then: func(tx *actual.Transaction) { tx.CategoryID = groceries },
	})

	res, err := l.MatchOrCreate(ctx, req("t1", "Countdown", "-50"))
	require.NoError(t, err)
	rs, err = l.Ruleset(ctx)
	require.NoError(t, err)
	require.NoError(t, rs.Run(ctx, res.Transaction))

	assert.Equal(t, groceries, l.Transactions("acct")[0].CategoryID)
}

func TestSyncToServer(t *testing.T) {
	ctx := context.Background()
	l := New()
	_, err := l.MatchOrCreate(ctx, req("t1", "A", "1"))
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx))

	s := l.Session()
	changes, err := l.SyncToServer(ctx, actual.SyncRequest{FileID: s.FileID, GroupID: s.GroupID, ClientID: s.ClientID})
	require.NoError(t, err)
	assert.Equal(t, 1, changes.Messages)

	_, err = l.SyncToServer(ctx, actual.SyncRequest{FileID: "other"})
	assert.Error(t, err)
}
