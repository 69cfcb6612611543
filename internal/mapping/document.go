// Package mapping persists the account mapping as a JSON document on local
// disk or in Cloud Storage.
package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-sync/internal/domain"
)

type entry struct {
	AkahuName   string `json:"akahu_name"`
	AccountType string `json:"account_type,omitempty"`

	YNABBudgetID    string `json:"ynab_budget_id,omitempty"`
	YNABAccountID   string `json:"ynab_account_id,omitempty"`
	YNABAccountName string `json:"ynab_account_name,omitempty"`
	YNABDoNotMap    bool   `json:"ynab_do_not_map,omitempty"`
	YNABSyncedAt    string `json:"ynab_synced_datetime,omitempty"`

	ActualBudgetID    string `json:"actual_budget_id,omitempty"`
	ActualAccountID   string `json:"actual_account_id,omitempty"`
	ActualAccountName string `json:"actual_account_name,omitempty"`
	ActualDoNotMap    bool   `json:"actual_do_not_map,omitempty"`
	ActualSyncedAt    string `json:"actual_synced_datetime,omitempty"`

	AkahuBalance *decimal.Decimal `json:"akahu_balance,omitempty"`
}

func (e entry) toDomain(id string) *domain.AccountMapping {
	class := domain.AccountClass(e.AccountType)
	if class == "" {
		class = domain.OnBudget
	}
	return &domain.AccountMapping{
		SourceID:   id,
		SourceName: e.AkahuName,
		Class:      class,
		YNAB: domain.DestinationLink{
			BudgetID:    e.YNABBudgetID,
			AccountID:   e.YNABAccountID,
			AccountName: e.YNABAccountName,
			DoNotSync:   e.YNABDoNotMap,
			SyncedAt:    e.YNABSyncedAt,
		},
		Actual: domain.DestinationLink{
			BudgetID:    e.ActualBudgetID,
			AccountID:   e.ActualAccountID,
			AccountName: e.ActualAccountName,
			DoNotSync:   e.ActualDoNotMap,
			SyncedAt:    e.ActualSyncedAt,
		},
		SourceBalance: e.AkahuBalance,
	}
}

func fromDomain(m *domain.AccountMapping) entry {
	return entry{
		AkahuName:         m.SourceName,
		AccountType:       string(m.Class),
		YNABBudgetID:      m.YNAB.BudgetID,
		YNABAccountID:     m.YNAB.AccountID,
		YNABAccountName:   m.YNAB.AccountName,
		YNABDoNotMap:      m.YNAB.DoNotSync,
		YNABSyncedAt:      m.YNAB.SyncedAt,
		ActualBudgetID:    m.Actual.BudgetID,
		ActualAccountID:   m.Actual.AccountID,
		ActualAccountName: m.Actual.AccountName,
		ActualDoNotMap:    m.Actual.DoNotSync,
		ActualSyncedAt:    m.Actual.SyncedAt,
		AkahuBalance:      m.SourceBalance,
	}
}

type document struct {
	AkahuAccounts  json.RawMessage `json:"akahu_accounts"`
	ActualAccounts json.RawMessage `json:"actual_accounts"`
	YNABAccounts   json.RawMessage `json:"ynab_accounts"`
	Mapping        json.RawMessage `json:"mapping"`
}

// Decode parses a mapping document. Mapping entries keep their document order.
func Decode(data []byte) (*domain.MappingSet, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("Decode: %w", err)
	}

	set := domain.NewMappingSet()
	var err error
	if set.SourceAccounts, err = decodeRefs(doc.AkahuAccounts); err != nil {
		return nil, fmt.Errorf("Decode: akahu_accounts: %w", err)
	}
	if set.ActualAccounts, err = decodeRefs(doc.ActualAccounts); err != nil {
		return nil, fmt.Errorf("Decode: actual_accounts: %w", err)
	}
	if set.YNABAccounts, err = decodeRefs(doc.YNABAccounts); err != nil {
		return nil, fmt.Errorf("Decode: ynab_accounts: %w", err)
	}
	if err := decodeEntries(doc.Mapping, set); err != nil {
		return nil, fmt.Errorf("Decode: mapping: %w", err)
	}
	return set, nil
}

// decodeRefs accepts either a list of refs or an object keyed by id.
func decodeRefs(raw json.RawMessage) ([]domain.AccountRef, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var refs []domain.AccountRef
		if err := json.Unmarshal(raw, &refs); err != nil {
			return nil, err
		}
		return refs, nil
	}
	var byID map[string]domain.AccountRef
	if err := json.Unmarshal(raw, &byID); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	refs := make([]domain.AccountRef, 0, len(ids))
	for _, id := range ids {
		ref := byID[id]
		if ref.ID == "" {
			ref.ID = id
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func decodeEntries(raw json.RawMessage, set *domain.MappingSet) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected account id, got %v", tok)
		}
		var e entry
		if err := dec.Decode(&e); err != nil {
			return fmt.Errorf("account %s: %w", id, err)
		}
		set.Add(e.toDomain(id))
	}
	_, err = dec.Token()
	return err
}

// Encode renders set as an indented mapping document, entries in set order.
func Encode(set *domain.MappingSet) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	writeField := func(name string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("Encode: %s: %w", name, err)
		}
		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(b)
		return nil
	}
	refs := func(r []domain.AccountRef) []domain.AccountRef {
		if r == nil {
			return []domain.AccountRef{}
		}
		return r
	}
	if err := writeField("akahu_accounts", refs(set.SourceAccounts)); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := writeField("actual_accounts", refs(set.ActualAccounts)); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := writeField("ynab_accounts", refs(set.YNABAccounts)); err != nil {
		return nil, err
	}

	buf.WriteString(`,"mapping":{`)
	for i, m := range set.Ordered() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeField(m.SourceID, fromDomain(m)); err != nil {
			return nil, err
		}
	}
	buf.WriteString("}}")

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "    "); err != nil {
		return nil, fmt.Errorf("Encode: indenting: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
