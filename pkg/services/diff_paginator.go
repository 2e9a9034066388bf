package services

import (
	"sort"
	"strings"

	"github.com/matriflow/matriflow-engine/pkg/models"
)

// Paginator defaults. LargeDiffThreshold is the record count past which the
// performance metrics flag a diff as large.
const (
	DefaultPageSize    = 50
	MaxPageSize        = 500
	LargeDiffThreshold = 1000
)

// PaginateOptions drive filtering, sorting and slicing of a computed diff.
// Zero values fall back to page 1, the default page size, id ordering
// ascending, and no filters.
type PaginateOptions struct {
	Page        int
	PageSize    int
	SortBy      string // id | type | changes | impact
	SortOrder   string // asc | desc
	Types       []string
	Search      string
	ImpactLevel string
}

// Pagination is the page metadata returned alongside a page of records.
type Pagination struct {
	Page            int  `json:"page"`
	PageSize        int  `json:"page_size"`
	Total           int  `json:"total"`
	TotalPages      int  `json:"total_pages"`
	HasNextPage     bool `json:"has_next_page"`
	HasPreviousPage bool `json:"has_previous_page"`
}

// PaginatedDiff is one page of a filtered, sorted diff. Summary and
// metadata are those of the underlying diff, untouched by pagination.
type PaginatedDiff struct {
	Entries    []models.DiffEntryRecord `json:"entries"`
	Summary    models.DiffSummary       `json:"summary"`
	Metadata   models.DiffMetadata      `json:"metadata"`
	Pagination Pagination               `json:"pagination"`
}

// PerformanceMetrics reports cheap statistics about an unpaginated diff,
// used by callers to warn about very large results.
type PerformanceMetrics struct {
	TotalEntries      int  `json:"total_entries"`
	Added             int  `json:"added"`
	Removed           int  `json:"removed"`
	Modified          int  `json:"modified"`
	Unchanged         int  `json:"unchanged"`
	TotalFieldChanges int  `json:"total_field_changes"`
	LargeDiff         bool `json:"large_diff"`
}

// DiffPaginator filters, sorts and slices an already-computed diff. It
// never mutates the diff it is given.
type DiffPaginator interface {
	Paginate(diff *models.MatrixDiff, opts PaginateOptions) *PaginatedDiff
	PerformanceMetrics(diff *models.MatrixDiff) PerformanceMetrics
}

type diffPaginator struct {
	analyzer ImpactAnalyzer
}

// NewDiffPaginator creates a paginator. The analyzer supplies per-record
// impact levels for the impactLevel filter and the impact sort order.
func NewDiffPaginator(analyzer ImpactAnalyzer) DiffPaginator {
	return &diffPaginator{analyzer: analyzer}
}

var _ DiffPaginator = (*diffPaginator)(nil)

func (s *diffPaginator) Paginate(diff *models.MatrixDiff, opts PaginateOptions) *PaginatedDiff {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	// Strict processing order: types, search, impactLevel, sort, slice.
	filtered := filterByTypes(diff.Entries, opts.Types)
	filtered = filterBySearch(filtered, opts.Search)
	filtered = s.filterByImpactLevel(filtered, opts.ImpactLevel)
	s.sortRecords(filtered, opts.SortBy, opts.SortOrder)

	total := len(filtered)
	totalPages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return &PaginatedDiff{
		Entries:  filtered[start:end],
		Summary:  diff.Summary,
		Metadata: diff.Metadata,
		Pagination: Pagination{
			Page:            page,
			PageSize:        pageSize,
			Total:           total,
			TotalPages:      totalPages,
			HasNextPage:     page < totalPages,
			HasPreviousPage: page > 1 && total > 0,
		},
	}
}

func (s *diffPaginator) PerformanceMetrics(diff *models.MatrixDiff) PerformanceMetrics {
	fieldChanges := 0
	for i := range diff.Entries {
		fieldChanges += len(diff.Entries[i].Changes)
	}
	return PerformanceMetrics{
		TotalEntries:      len(diff.Entries),
		Added:             diff.Summary.Added,
		Removed:           diff.Summary.Removed,
		Modified:          diff.Summary.Modified,
		Unchanged:         diff.Summary.Unchanged,
		TotalFieldChanges: fieldChanges,
		LargeDiff:         len(diff.Entries) > LargeDiffThreshold,
	}
}

// filterByTypes keeps records whose type is in the set. An empty set keeps
// everything. Always copies so later sorting cannot touch the source diff.
func filterByTypes(records []models.DiffEntryRecord, types []string) []models.DiffEntryRecord {
	if len(types) == 0 {
		out := make([]models.DiffEntryRecord, len(records))
		copy(out, records)
		return out
	}
	wanted := make(map[models.DiffEntryType]bool, len(types))
	for _, t := range types {
		wanted[models.DiffEntryType(strings.ToLower(strings.TrimSpace(t)))] = true
	}
	out := make([]models.DiffEntryRecord, 0, len(records))
	for _, record := range records {
		if wanted[record.Type] {
			out = append(out, record)
		}
	}
	return out
}

// filterBySearch keeps records whose display fields contain the term,
// case-insensitively.
func filterBySearch(records []models.DiffEntryRecord, search string) []models.DiffEntryRecord {
	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return records
	}
	out := records[:0]
	for _, record := range records {
		if recordMatches(&record, term) {
			out = append(out, record)
		}
	}
	return out
}

func recordMatches(record *models.DiffEntryRecord, term string) bool {
	entry := record.DisplayEntry()
	if entry == nil {
		return false
	}
	for _, field := range []string{
		entry.RuleName, entry.Device,
		entry.SrcZone, entry.SrcName, entry.DstZone, entry.DstName,
		entry.Requester, entry.Comment,
	} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func (s *diffPaginator) filterByImpactLevel(records []models.DiffEntryRecord, level string) []models.DiffEntryRecord {
	wanted := models.RiskLevel(strings.ToLower(strings.TrimSpace(level)))
	if wanted == "" {
		return records
	}
	out := records[:0]
	for _, record := range records {
		if s.analyzer.RecordImpactLevel(&record) == wanted {
			out = append(out, record)
		}
	}
	return out
}

func (s *diffPaginator) sortRecords(records []models.DiffEntryRecord, sortBy, sortOrder string) {
	desc := strings.EqualFold(sortOrder, "desc")

	var less func(a, b *models.DiffEntryRecord) bool
	switch strings.ToLower(sortBy) {
	case "type":
		less = func(a, b *models.DiffEntryRecord) bool { return a.Type < b.Type }
	case "changes":
		less = func(a, b *models.DiffEntryRecord) bool { return len(a.Changes) < len(b.Changes) }
	case "impact":
		less = func(a, b *models.DiffEntryRecord) bool {
			return s.analyzer.RecordImpactLevel(a).Rank() < s.analyzer.RecordImpactLevel(b).Rank()
		}
	default:
		less = func(a, b *models.DiffEntryRecord) bool { return a.EntryID() < b.EntryID() }
	}

	sort.SliceStable(records, func(i, j int) bool {
		if desc {
			return less(&records[j], &records[i])
		}
		return less(&records[i], &records[j])
	})
}
