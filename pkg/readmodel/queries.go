package readmodel

import (
	"sort"
	"time"

	"github.com/kieran-gray/fern-labour-sub001/pkg/cursor"
)

// page orders rows by (updatedAt DESC, id DESC), drops everything at or
// before the supplied cursor, and trims to limit+1/limit per
// cursor.Paginate's contract (spec.md §6.5).
func page[T any](rows []T, limit int, token string, updatedAt func(T) time.Time, id func(T) string) (cursor.Page[T], error) {
	c, err := cursor.Decode(token)
	if err != nil {
		return cursor.Page[T]{}, err
	}

	sorted := make([]T, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		ti, tj := updatedAt(sorted[i]), updatedAt(sorted[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return id(sorted[i]) > id(sorted[j])
	})

	if token != "" {
		var filtered []T
		for _, r := range sorted {
			ts, rid := updatedAt(r), id(r)
			if ts.Before(c.UpdatedAt) || (ts.Equal(c.UpdatedAt) && rid < c.ID) {
				filtered = append(filtered, r)
			}
		}
		sorted = filtered
	}

	if limit <= 0 {
		limit = 20
	}
	if len(sorted) > limit+1 {
		sorted = sorted[:limit+1]
	}

	return cursor.Paginate(sorted, limit, updatedAt, id), nil
}

// GetLabourSummary returns the current summary row for a labour, or
// (LabourSummary{}, false) if the labour has never been projected.
func (s *Store) GetLabourSummary(labourID string) (LabourSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.summaries[labourID]
	if !ok {
		return LabourSummary{}, false
	}
	return *sum, true
}

// ListLabourSummaries returns every non-deleted labour owned by motherID,
// cursor-paginated by (updated_at, labour_id).
func (s *Store) ListLabourSummaries(motherID string, limit int, token string) (cursor.Page[LabourSummary], error) {
	s.mu.RLock()
	var rows []LabourSummary
	for _, sum := range s.summaries {
		if sum.MotherID == motherID && !sum.Deleted {
			rows = append(rows, *sum)
		}
	}
	s.mu.RUnlock()

	return page(rows, limit, token,
		func(r LabourSummary) time.Time { return r.UpdatedAt },
		func(r LabourSummary) string { return r.LabourID },
	)
}

// ListLabourUpdates returns the non-deleted updates posted to a labour,
// newest first, cursor-paginated.
func (s *Store) ListLabourUpdates(labourID string, limit int, token string) (cursor.Page[LabourUpdateRow], error) {
	s.mu.RLock()
	src := s.updates[labourID]
	rows := make([]LabourUpdateRow, 0, len(src))
	for _, r := range src {
		if !r.Deleted {
			rows = append(rows, r)
		}
	}
	s.mu.RUnlock()

	return page(rows, limit, token,
		LabourUpdateRow.SortKey,
		LabourUpdateRow.ID,
	)
}

// ListSubscriptions returns every subscription row for a labour,
// cursor-paginated. Callers filter by Status/Role themselves; the read
// model does not encode authorization.
func (s *Store) ListSubscriptions(labourID string, limit int, token string) (cursor.Page[SubscriptionRow], error) {
	s.mu.RLock()
	src := s.subscriptions[labourID]
	rows := make([]SubscriptionRow, len(src))
	copy(rows, src)
	s.mu.RUnlock()

	return page(rows, limit, token,
		SubscriptionRow.SortKey,
		SubscriptionRow.ID,
	)
}
