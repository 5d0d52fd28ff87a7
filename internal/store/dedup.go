package store

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/fieldsync/pkg/db/models"
)

// DedupByID keeps one row per key. The last occurrence wins but keeps the
// position of the first, so callers get a stable order.
func DedupByID[T any, K comparable](rows []T, key func(T) K) ([]T, int) {
	if len(rows) == 0 {
		return nil, 0
	}
	index := make(map[K]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		k := key(row)
		if pos, ok := index[k]; ok {
			out[pos] = row
			continue
		}
		index[k] = len(out)
		out = append(out, row)
	}
	return out, len(rows) - len(out)
}

func ClientKey(c models.Client) uuid.UUID             { return c.ID }
func ProductKey(p models.Product) uuid.UUID           { return p.ID }
func PaymentTableKey(p models.PaymentTable) uuid.UUID { return p.ID }

// DedupReferenceData applies DedupByID to every collection.
func DedupReferenceData(data ReferenceData) (ReferenceData, ReplaceResult) {
	var res ReplaceResult
	var out ReferenceData
	out.Clients, res.Clients.DuplicatesFound = DedupByID(data.Clients, ClientKey)
	out.Products, res.Products.DuplicatesFound = DedupByID(data.Products, ProductKey)
	out.PaymentTables, res.PaymentTables.DuplicatesFound = DedupByID(data.PaymentTables, PaymentTableKey)
	res.Clients.Saved = len(out.Clients)
	res.Products.Saved = len(out.Products)
	res.PaymentTables.Saved = len(out.PaymentTables)
	return out, res
}

// MatchClient applies a ClientFilter in memory.
func MatchClient(c models.Client, f ClientFilter) bool {
	if f.SalesRepID != "" && c.SalesRepID != f.SalesRepID {
		return false
	}
	if f.Status != "" && c.EffectiveStatus() != f.Status {
		return false
	}
	if f.ActiveOnly && !c.Active {
		return false
	}
	return true
}

// MatchOrder applies an OrderFilter in memory.
func MatchOrder(o models.Order, f OrderFilter) bool {
	if f.SalesRepID != "" && o.SalesRepID != f.SalesRepID {
		return false
	}
	if len(f.SyncStatuses) == 0 {
		return true
	}
	for _, s := range f.SyncStatuses {
		if o.SyncStatus == s {
			return true
		}
	}
	return false
}
