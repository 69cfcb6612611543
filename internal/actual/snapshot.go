package actual

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Field is a trackable transaction field.
type Field int

const (
	FieldDate Field = iota
	FieldPayee
	FieldImportedPayee
	FieldCategory
	FieldNotes
	FieldAmount
	FieldCleared
)

var fieldNames = [...]string{
	FieldDate:          "date",
	FieldPayee:         "payee",
	FieldImportedPayee: "imported_payee",
	FieldCategory:      "category",
	FieldNotes:         "notes",
	FieldAmount:        "amount",
	FieldCleared:       "cleared",
}

func (f Field) String() string {
	if int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// Snapshot captures the trackable fields of a transaction.
type Snapshot struct {
	Date          string
	PayeeID       string
	ImportedPayee string
	CategoryID    string
	Notes         string
	Amount        decimal.Decimal
	Cleared       bool
}

// Capture takes a snapshot of tx.
func Capture(tx *Transaction) Snapshot {
	return Snapshot{
		Date:          tx.Date.String(),
		PayeeID:       tx.PayeeID,
		ImportedPayee: tx.ImportedPayee,
		CategoryID:    tx.CategoryID,
		Notes:         tx.Notes,
		Amount:        tx.Amount,
		Cleared:       tx.Cleared,
	}
}

// FieldChange is one field that differs between two snapshots, with ids
// already resolved to names.
type FieldChange struct {
	Field Field
	Old   string
	New   string
}

func (c FieldChange) String() string {
	return fmt.Sprintf("%s: %s -> %s", c.Field, c.Old, c.New)
}

// Diff lists the fields that changed from s to after.
func (s Snapshot) Diff(after Snapshot, names *NameCache) []FieldChange {
	var out []FieldChange
	add := func(f Field, old, new string) {
		if old != new {
			out = append(out, FieldChange{Field: f, Old: old, New: new})
		}
	}
	add(FieldDate, s.Date, after.Date)
	if s.PayeeID != after.PayeeID {
		out = append(out, FieldChange{Field: FieldPayee, Old: names.Payee(s.PayeeID), New: names.Payee(after.PayeeID)})
	}
	add(FieldImportedPayee, s.ImportedPayee, after.ImportedPayee)
	if s.CategoryID != after.CategoryID {
		out = append(out, FieldChange{Field: FieldCategory, Old: names.Category(s.CategoryID), New: names.Category(after.CategoryID)})
	}
	add(FieldNotes, s.Notes, after.Notes)
	if !s.Amount.Equal(after.Amount) {
		out = append(out, FieldChange{Field: FieldAmount, Old: s.Amount.String(), New: after.Amount.String()})
	}
	add(FieldCleared, fmt.Sprint(s.Cleared), fmt.Sprint(after.Cleared))
	return out
}

const (
	uncategorized = "Uncategorized"
	unknownName   = "Unknown"
)

// NameCache resolves category and payee ids to display names.
type NameCache struct {
	categories map[string]string
	payees     map[string]string
}

// LoadNames builds a cache from the ledger.
func LoadNames(ctx context.Context, ledger Ledger) (*NameCache, error) {
	cats, err := ledger.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadNames: listing categories: %w", err)
	}
	payees, err := ledger.Payees(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadNames: listing payees: %w", err)
	}
	return NewNameCache(cats, payees), nil
}

// NewNameCache builds a cache from explicit lists.
func NewNameCache(cats []Category, payees []Payee) *NameCache {
	c := &NameCache{
		categories: make(map[string]string, len(cats)),
		payees:     make(map[string]string, len(payees)),
	}
	for _, cat := range cats {
		c.categories[cat.ID] = cat.Name
	}
	for _, p := range payees {
		c.payees[p.ID] = p.Name
	}
	return c
}

// Category returns the name for id. An empty id is "Uncategorized".
func (c *NameCache) Category(id string) string {
	if id == "" {
		return uncategorized
	}
	if c != nil {
		if name, ok := c.categories[id]; ok {
			return name
		}
	}
	return unknownName
}

// Payee returns the name for id.
func (c *NameCache) Payee(id string) string {
	if c != nil {
		if name, ok := c.payees[id]; ok {
			return name
		}
	}
	return unknownName
}
