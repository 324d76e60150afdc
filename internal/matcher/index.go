package matcher

import (
	"time"

	"invoice-reconciliation-service/internal/models"
)

// bucketKey identifies one index bucket: a calendar date plus a normalized
// timekeeper name
type bucketKey struct {
	Date       string
	Timekeeper string
}

// TimeEntryIndex provides multi-key lookup over a time-entry snapshot.
// It is built once per reconciliation run and treated as immutable for the
// remainder of the run. Insertion order is preserved within buckets and in
// the per-date key lists, so candidate iteration is deterministic.
type TimeEntryIndex struct {
	buckets map[bucketKey][]*models.TimeEntry

	// dateKeys holds bucket keys per date in first-seen order. Map
	// iteration order would make the fuzzy scan nondeterministic.
	dateKeys map[string][]bucketKey

	entries []*models.TimeEntry
}

// NewTimeEntryIndex builds an index from a slice of time entries
func NewTimeEntryIndex(entries []*models.TimeEntry) *TimeEntryIndex {
	idx := &TimeEntryIndex{
		buckets:  make(map[bucketKey][]*models.TimeEntry),
		dateKeys: make(map[string][]bucketKey),
		entries:  entries,
	}

	for _, entry := range entries {
		key := bucketKey{
			Date:       entry.Date.Format(models.DateLayout),
			Timekeeper: models.NormalizeTimekeeper(entry.TimekeeperName),
		}

		if _, exists := idx.buckets[key]; !exists {
			idx.dateKeys[key.Date] = append(idx.dateKeys[key.Date], key)
		}
		idx.buckets[key] = append(idx.buckets[key], entry)
	}

	return idx
}

// Lookup returns the entries recorded on the given date by the given
// timekeeper (exact key, case-insensitive). Returns an empty slice if none.
func (idx *TimeEntryIndex) Lookup(date time.Time, timekeeper string) []*models.TimeEntry {
	key := bucketKey{
		Date:       date.Format(models.DateLayout),
		Timekeeper: models.NormalizeTimekeeper(timekeeper),
	}
	return idx.buckets[key]
}

// FuzzyTimekeeperCandidates scans every bucket on the given date and returns
// the entries whose bucket timekeeper name scores at least threshold against
// the query name. Used only as a fallback when the exact lookup is empty.
func (idx *TimeEntryIndex) FuzzyTimekeeperCandidates(date time.Time, timekeeper string, threshold float64) []*models.TimeEntry {
	dateKey := date.Format(models.DateLayout)

	var candidates []*models.TimeEntry
	for _, key := range idx.dateKeys[dateKey] {
		if _, ok := SimilarityAtLeast(timekeeper, key.Timekeeper, threshold); ok {
			candidates = append(candidates, idx.buckets[key]...)
		}
	}

	return candidates
}

// AllEntries returns the full indexed snapshot in input order
func (idx *TimeEntryIndex) AllEntries() []*models.TimeEntry {
	return idx.entries
}

// Len returns the number of indexed entries
func (idx *TimeEntryIndex) Len() int {
	return len(idx.entries)
}

// IndexStats provides statistics about index shape, useful for run logging
type IndexStats struct {
	TotalEntries     int
	UniqueDates      int
	UniqueBuckets    int
	BillableEntries  int
}

// Stats returns statistics about the index
func (idx *TimeEntryIndex) Stats() IndexStats {
	stats := IndexStats{
		TotalEntries:  len(idx.entries),
		UniqueDates:   len(idx.dateKeys),
		UniqueBuckets: len(idx.buckets),
	}

	for _, entry := range idx.entries {
		if entry.Billable {
			stats.BillableEntries++
		}
	}

	return stats
}
