package models

import "time"

// DiffEntryType classifies one entry of a matrix diff.
type DiffEntryType string

const (
	DiffEntryAdded     DiffEntryType = "added"
	DiffEntryRemoved   DiffEntryType = "removed"
	DiffEntryModified  DiffEntryType = "modified"
	DiffEntryUnchanged DiffEntryType = "unchanged"
)

// RiskLevel is the severity of a diff or of a single diff record.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels for comparison and sorting. Unknown levels rank
// below low.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// DiffChange is one field-level difference on a modified entry. Values are
// carried verbatim as they appeared on the entries.
type DiffChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// DiffEntryRecord is the per-entry outcome of a diff.
// Added and removed records carry Entry (the new and the old entry
// respectively); modified records carry OldEntry, NewEntry and a non-empty
// Changes list; unchanged records carry Entry and no Changes.
type DiffEntryRecord struct {
	Type     DiffEntryType `json:"type"`
	Entry    *FlowEntry    `json:"entry,omitempty"`
	OldEntry *FlowEntry    `json:"old_entry,omitempty"`
	NewEntry *FlowEntry    `json:"new_entry,omitempty"`
	Changes  []DiffChange  `json:"changes,omitempty"`
}

// DisplayEntry returns the entry to show for this record: the new side for
// modified records, the carried entry otherwise.
func (r *DiffEntryRecord) DisplayEntry() *FlowEntry {
	if r.Type == DiffEntryModified {
		return r.NewEntry
	}
	return r.Entry
}

// EntryID returns the flow entry id this record refers to, or 0 when the
// record is malformed.
func (r *DiffEntryRecord) EntryID() int {
	if e := r.DisplayEntry(); e != nil {
		return e.ID
	}
	return 0
}

// HasChange reports whether the record carries a change for the given field.
func (r *DiffEntryRecord) HasChange(field string) bool {
	for _, c := range r.Changes {
		if c.Field == field {
			return true
		}
	}
	return false
}

// Change returns the change for the given field, if any.
func (r *DiffEntryRecord) Change(field string) (DiffChange, bool) {
	for _, c := range r.Changes {
		if c.Field == field {
			return c, true
		}
	}
	return DiffChange{}, false
}

// DiffSummary holds the aggregate counts of a diff. Total always equals the
// sum of the four buckets and the size of the id union across both
// snapshots.
type DiffSummary struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	Total     int `json:"total"`
}

// DiffMetadata identifies the two versions a diff was computed between.
// It is carried through unchanged for reporting.
type DiffMetadata struct {
	FromVersion   int       `json:"from_version"`
	ToVersion     int       `json:"to_version"`
	FromDate      time.Time `json:"from_date"`
	ToDate        time.Time `json:"to_date"`
	FromCreatedBy string    `json:"from_created_by"`
	ToCreatedBy   string    `json:"to_created_by"`
}

// MatrixDiff is the full structural diff between two matrix snapshots.
// It is created once by the diff engine and read-only afterward.
type MatrixDiff struct {
	Entries  []DiffEntryRecord `json:"entries"`
	Summary  DiffSummary       `json:"summary"`
	Metadata DiffMetadata      `json:"metadata"`
}

// QuickDiff is a condensed diff used for lightweight change detection.
type QuickDiff struct {
	HasChanges  bool   `json:"has_changes"`
	ChangeCount int    `json:"change_count"`
	Summary     string `json:"summary"`
}

// ImpactAnalysis is the risk assessment derived from a matrix diff.
type ImpactAnalysis struct {
	RiskLevel       RiskLevel `json:"risk_level"`
	CriticalChanges []string  `json:"critical_changes"`
	ImpactedZones   []string  `json:"impacted_zones"`
	Recommendations []string  `json:"recommendations"`
}

// VersionStat summarizes the change volume of one consecutive version
// transition. Version is the later version of the pair.
type VersionStat struct {
	Version     int    `json:"version"`
	ChangeCount int    `json:"change_count"`
	HasChanges  bool   `json:"has_changes"`
	Summary     string `json:"summary"`
}
