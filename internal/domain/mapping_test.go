package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestinationLink_Watermark(t *testing.T) {
	tests := []struct {
		name     string
		syncedAt string
		want     time.Time
	}{
		{"never synced", "", Epoch},
		{"valid", "2025-06-01T10:30:00Z", time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)},
		{"garbage", "yesterday", Epoch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := DestinationLink{SyncedAt: tt.syncedAt}
			assert.True(t, tt.want.Equal(link.Watermark()))
		})
	}
}

func TestDestinationLink_Complete(t *testing.T) {
	assert.True(t, DestinationLink{BudgetID: "b", AccountID: "a"}.Complete())
	assert.False(t, DestinationLink{BudgetID: "b"}.Complete())
	assert.False(t, DestinationLink{BudgetID: " ", AccountID: "a"}.Complete())
}

func TestMappingSet_OrderedKeepsInsertionOrder(t *testing.T) {
	set := NewMappingSet()
	set.Add(&AccountMapping{SourceID: "acc_c"})
	set.Add(&AccountMapping{SourceID: "acc_a"})
	set.Add(&AccountMapping{SourceID: "acc_b"})
	set.Add(&AccountMapping{SourceID: "acc_a", SourceName: "replaced"})

	ordered := set.Ordered()
	require.Len(t, ordered, 3)
	assert.Equal(t, "acc_c", ordered[0].SourceID)
	assert.Equal(t, "acc_a", ordered[1].SourceID)
	assert.Equal(t, "replaced", ordered[1].SourceName)
	assert.Equal(t, "acc_b", ordered[2].SourceID)
}

func TestMappingSet_StampWatermarks(t *testing.T) {
	set := NewMappingSet()
	set.Add(&AccountMapping{SourceID: "acc_1"})
	set.Add(&AccountMapping{SourceID: "acc_2", YNAB: DestinationLink{DoNotSync: true, SyncedAt: "2025-05-10T00:00:00Z"}})

	now := time.Date(2025, 7, 1, 8, 0, 0, 0, time.FixedZone("NZST", 12*3600))
	n := set.StampWatermarks(DestinationYNAB, []string{"acc_1", "acc_2", "missing"}, now)

	assert.Equal(t, 1, n)
	assert.Equal(t, "2025-06-30T20:00:00Z", set.Mappings["acc_1"].YNAB.SyncedAt)
	assert.Equal(t, "2025-05-10T00:00:00Z", set.Mappings["acc_2"].YNAB.SyncedAt)
	assert.Empty(t, set.Mappings["acc_1"].Actual.SyncedAt)
}

func TestMappingSet_ReportHelpers(t *testing.T) {
	set := NewMappingSet()
	set.Add(&AccountMapping{SourceID: "a", Actual: DestinationLink{AccountID: "x", SyncedAt: "2025-06-01T00:00:00Z"}})
	set.Add(&AccountMapping{SourceID: "b", Actual: DestinationLink{AccountID: "y"}})
	set.Add(&AccountMapping{SourceID: "c", Actual: DestinationLink{AccountID: "z", DoNotSync: true, SyncedAt: "2025-07-01T00:00:00Z"}})

	assert.Equal(t, 2, set.ConfiguredAccounts(DestinationActual))
	assert.Equal(t, 0, set.ConfiguredAccounts(DestinationYNAB))

	last, ok := set.LastSync(DestinationActual)
	assert.True(t, ok)
	assert.Equal(t, "2025-07-01T00:00:00Z", last)

	_, ok = set.LastSync(DestinationYNAB)
	assert.False(t, ok)
}
