// Package report builds the status report returned after a sync pass.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/syncer"
)

// Never is reported as the previous sync time of a destination with no linked accounts.
const Never = "Never"

// Destinations are reported in this order.
var Destinations = []domain.Destination{domain.DestinationActual, domain.DestinationYNAB}

// DestinationStats are the per-destination figures of a report.
type DestinationStats struct {
	Accounts            int    `json:"accounts"`
	TransactionsCreated int    `json:"transactions_created"`
	LastSync            string `json:"last_sync"`
}

// Report is the outcome of a pass as shown to operators.
type Report struct {
	Status      string                                    `json:"status"`
	CompletedAt time.Time                                 `json:"completed_at"`
	Stats       map[domain.Destination]DestinationStats `json:"stats"`
	Summary     string                                    `json:"summary"`
}

// Generate builds a report from the mapping and the number of records created
// per destination. previous holds the latest watermark per destination before
// the pass; destinations missing from it report Never.
func Generate(set *domain.MappingSet, created map[domain.Destination]int, previous map[domain.Destination]string, now time.Time) *Report {
	r := &Report{
		Status:      "success",
		CompletedAt: now,
		Stats:       make(map[domain.Destination]DestinationStats, len(Destinations)),
	}
	for _, d := range Destinations {
		last, ok := previous[d]
		if !ok {
			last = Never
		}
		r.Stats[d] = DestinationStats{
			Accounts:            set.ConfiguredAccounts(d),
			TransactionsCreated: created[d],
			LastSync:            last,
		}
	}
	r.Summary = r.summary()
	return r
}

// FromPass builds the report of a completed pass.
func FromPass(pass *syncer.Pass, now time.Time) *Report {
	created := make(map[domain.Destination]int, len(pass.Results))
	for d := range pass.Results {
		created[d] = pass.Uploaded(d)
	}
	return Generate(pass.Set, created, pass.PreviousSync, now)
}

func (r *Report) summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sync completed at %s\n", r.CompletedAt.Format(time.RFC3339))
	for _, d := range Destinations {
		s := r.Stats[d]
		fmt.Fprintf(&b, "\n%s:\n", Title(d))
		fmt.Fprintf(&b, "- Accounts configured: %d\n", s.Accounts)
		fmt.Fprintf(&b, "- New transactions created: %d\n", s.TransactionsCreated)
		fmt.Fprintf(&b, "- Previous sync time: %s\n", s.LastSync)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Title is the display name of a destination.
func Title(d domain.Destination) string {
	switch d {
	case domain.DestinationActual:
		return "Actual Budget"
	case domain.DestinationYNAB:
		return "YNAB"
	}
	return string(d)
}
