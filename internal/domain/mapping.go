package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountClass decides how an account is synchronized.
type AccountClass string

const (
	// OnBudget accounts are synchronized by importing their full transaction stream.
	OnBudget AccountClass = "On Budget"
	// Tracking accounts are synchronized by balance parity only.
	Tracking AccountClass = "Tracking"
)

// Destination identifies one of the ledgers the engine writes to.
type Destination string

const (
	// DestinationYNAB is the remote budgeting web service (amounts in milliunits).
	DestinationYNAB Destination = "ynab"
	// DestinationActual is the local-first budget file (amounts in decimal dollars).
	DestinationActual Destination = "actual"
)

const (
	// WatermarkLayout is the persisted format of a sync watermark.
	WatermarkLayout = "2006-01-02T15:04:05Z"
	// DefaultWatermark is used for links that have never been synced.
	DefaultWatermark = "2025-05-05T00:00:00Z"
)

// Epoch is DefaultWatermark as a time.
var Epoch = time.Date(2025, time.May, 5, 0, 0, 0, 0, time.UTC)

// DestinationLink ties a source account to one account in one destination ledger.
type DestinationLink struct {
	BudgetID    string
	AccountID   string
	AccountName string
	DoNotSync   bool

	// SyncedAt is the watermark of the last pass that completed for this link.
	SyncedAt string
}

// Complete reports whether both identifiers needed to write to the destination are present.
func (l DestinationLink) Complete() bool {
	return strings.TrimSpace(l.BudgetID) != "" && strings.TrimSpace(l.AccountID) != ""
}

// Watermark parses SyncedAt. Empty or unparsable values fall back to Epoch.
func (l DestinationLink) Watermark() time.Time {
	if l.SyncedAt == "" {
		return Epoch
	}
	t, err := time.Parse(time.RFC3339, l.SyncedAt)
	if err != nil {
		return Epoch
	}
	return t.UTC()
}

// WatermarkString returns SyncedAt or DefaultWatermark when it was never set.
func (l DestinationLink) WatermarkString() string {
	if l.SyncedAt == "" {
		return DefaultWatermark
	}
	return l.SyncedAt
}

// AccountMapping is the configuration record for a single source account.
type AccountMapping struct {
	SourceID   string
	SourceName string
	Class      AccountClass

	YNAB   DestinationLink
	Actual DestinationLink

	// SourceBalance is the last balance observed at the source (Tracking accounts only).
	SourceBalance *decimal.Decimal
}

// Link returns the link for dest. The pointer aliases the mapping so callers can stamp it.
func (m *AccountMapping) Link(dest Destination) *DestinationLink {
	switch dest {
	case DestinationYNAB:
		return &m.YNAB
	case DestinationActual:
		return &m.Actual
	}
	return nil
}

// AccountRef is an entry in one of the reference account lists.
type AccountRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	BudgetID string `json:"budget_id,omitempty"`
	Type     string `json:"type,omitempty"`
}

// MappingSet is the full account mapping configuration.
type MappingSet struct {
	SourceAccounts []AccountRef
	ActualAccounts []AccountRef
	YNABAccounts   []AccountRef

	Mappings map[string]*AccountMapping
	order    []string
}

// NewMappingSet returns an empty set.
func NewMappingSet() *MappingSet {
	return &MappingSet{Mappings: make(map[string]*AccountMapping)}
}

// Add inserts or replaces a mapping, keeping first-insertion order.
func (s *MappingSet) Add(m *AccountMapping) {
	if s.Mappings == nil {
		s.Mappings = make(map[string]*AccountMapping)
	}
	if _, exists := s.Mappings[m.SourceID]; !exists {
		s.order = append(s.order, m.SourceID)
	}
	s.Mappings[m.SourceID] = m
}

// Ordered returns the mappings in insertion order. Entries placed directly into
// Mappings without Add are appended at the end, sorted by id for determinism.
func (s *MappingSet) Ordered() []*AccountMapping {
	seen := make(map[string]bool, len(s.order))
	out := make([]*AccountMapping, 0, len(s.Mappings))
	for _, id := range s.order {
		if m, ok := s.Mappings[id]; ok && !seen[id] {
			out = append(out, m)
			seen[id] = true
		}
	}
	var rest []string
	for id := range s.Mappings {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		out = append(out, s.Mappings[id])
	}
	return out
}

// StampWatermarks sets the watermark for dest on every listed account that is
// still mapped and not flagged do-not-sync. It returns how many links were stamped.
func (s *MappingSet) StampWatermarks(dest Destination, accountIDs []string, now time.Time) int {
	stamp := now.UTC().Format(WatermarkLayout)
	stamped := 0
	for _, id := range accountIDs {
		m, ok := s.Mappings[id]
		if !ok {
			continue
		}
		link := m.Link(dest)
		if link == nil || link.DoNotSync {
			continue
		}
		link.SyncedAt = stamp
		stamped++
	}
	return stamped
}

// ConfiguredAccounts counts mappings with an account id for dest that are not do-not-sync.
func (s *MappingSet) ConfiguredAccounts(dest Destination) int {
	n := 0
	for _, m := range s.Mappings {
		link := m.Link(dest)
		if link != nil && link.AccountID != "" && !link.DoNotSync {
			n++
		}
	}
	return n
}

// LastSync returns the latest watermark among mappings linked to dest.
// Links never synced count as DefaultWatermark. It reports false when no
// mapping is linked to dest.
func (s *MappingSet) LastSync(dest Destination) (string, bool) {
	latest, found := "", false
	for _, m := range s.Mappings {
		link := m.Link(dest)
		if link == nil || link.AccountID == "" {
			continue
		}
		if w := link.WatermarkString(); !found || w > latest {
			latest = w
		}
		found = true
	}
	return latest, found
}
