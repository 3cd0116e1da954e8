package triage

import (
	"sort"
	"strings"
)

// SortKey names a comparator in the sort table.
type SortKey string

const (
	SortUrgency   SortKey = "urgency"
	SortCategory  SortKey = "category"
	SortCreatedAt SortKey = "created_at"
	SortTimestamp SortKey = "timestamp"
)

// Comparator orders two complaints ascending: negative when a sorts first.
type Comparator func(a, b Complaint) int

var urgencyRank = map[string]int{
	UrgencyHigh:   3,
	UrgencyMedium: 2,
	UrgencyLow:    1,
}

var comparators = map[SortKey]Comparator{
	SortUrgency: func(a, b Complaint) int {
		return urgencyRank[a.Urgency] - urgencyRank[b.Urgency]
	},
	SortCategory: func(a, b Complaint) int {
		return strings.Compare(a.Category, b.Category)
	},
	SortCreatedAt: compareInstant,
	SortTimestamp: compareInstant,
}

func compareInstant(a, b Complaint) int {
	ai, bi := a.Instant(), b.Instant()
	switch {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	default:
		return 0
	}
}

// ComparatorFor returns the comparator registered for key.
func ComparatorFor(key SortKey) (Comparator, bool) {
	cmp, ok := comparators[key]
	return cmp, ok
}

// ParseSortKey normalizes a user-supplied key. Unknown keys are returned
// unchanged and sort as a no-op.
func ParseSortKey(raw string) SortKey {
	return SortKey(strings.ToLower(strings.TrimSpace(raw)))
}

// ParseDirection maps "asc"/"desc" onto a direction, defaulting to fallback.
func ParseDirection(raw string, fallback OrderDirection) OrderDirection {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(Ascending):
		return Ascending
	case string(Descending):
		return Descending
	default:
		return fallback
	}
}

// FilterSortState is the per-dashboard interaction state.
type FilterSortState struct {
	Search    string         `json:"search"`
	Urgency   string         `json:"urgency"`
	Category  string         `json:"category"`
	SortKey   SortKey        `json:"sort_key"`
	Direction OrderDirection `json:"direction"`
}

// DefaultFilterSortState shows everything, newest first.
func DefaultFilterSortState() FilterSortState {
	return FilterSortState{
		Urgency:   FilterAll,
		Category:  FilterAll,
		SortKey:   SortCreatedAt,
		Direction: Descending,
	}
}

// ToggleSort flips the direction when key is already active, otherwise
// switches to key ascending.
func (s FilterSortState) ToggleSort(key SortKey) FilterSortState {
	if s.SortKey == key {
		if s.Direction == Ascending {
			s.Direction = Descending
		} else {
			s.Direction = Ascending
		}
		return s
	}
	s.SortKey = key
	s.Direction = Ascending
	return s
}

func (s FilterSortState) normalized() FilterSortState {
	if s.Urgency == "" {
		s.Urgency = FilterAll
	}
	if s.Category == "" {
		s.Category = FilterAll
	}
	if s.Direction == "" {
		s.Direction = Descending
	}
	return s
}

// View is the presentation-ready result of Derive.
type View struct {
	Rows            []Complaint     `json:"rows"`
	CategoryCounts  []Bucket        `json:"category_counts"`
	UrgencyCounts   []Bucket        `json:"urgency_counts"`
	KnownCategories []string        `json:"known_categories"`
	Total           int             `json:"total"`
	Showing         int             `json:"showing"`
	State           FilterSortState `json:"state"`
}

// Derive filters, sorts and aggregates a snapshot. It never fails and never
// mutates the snapshot.
func Derive(snapshot Snapshot, state FilterSortState) View {
	state = state.normalized()
	rows := make([]Complaint, 0, len(snapshot.Complaints))
	for _, c := range snapshot.Complaints {
		if state.matches(c) {
			rows = append(rows, c)
		}
	}
	SortComplaints(rows, state.SortKey, state.Direction)

	categories := CountByCategory(snapshot.Complaints)
	known := make([]string, 0, len(categories)+1)
	known = append(known, FilterAll)
	for _, b := range categories {
		known = append(known, b.Label)
	}

	return View{
		Rows:            rows,
		CategoryCounts:  categories,
		UrgencyCounts:   CountByUrgency(snapshot.Complaints),
		KnownCategories: known,
		Total:           len(snapshot.Complaints),
		Showing:         len(rows),
		State:           state,
	}
}

func (s FilterSortState) matches(c Complaint) bool {
	if s.Urgency != FilterAll && c.UrgencyLabel() != s.Urgency {
		return false
	}
	if s.Category != FilterAll && c.CategoryLabel() != s.Category {
		return false
	}
	term := strings.ToLower(s.Search)
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.Summary), term) ||
		strings.Contains(strings.ToLower(c.Text()), term) ||
		strings.Contains(strings.ToLower(c.Category), term)
}

// SortComplaints stable-sorts rows in place. An unregistered key leaves the
// order untouched.
func SortComplaints(rows []Complaint, key SortKey, dir OrderDirection) {
	cmp, ok := comparators[key]
	if !ok {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if dir == Descending {
			return cmp(rows[i], rows[j]) > 0
		}
		return cmp(rows[i], rows[j]) < 0
	})
}
