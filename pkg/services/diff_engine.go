package services

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matriflow/matriflow-engine/pkg/apperrors"
	"github.com/matriflow/matriflow-engine/pkg/models"
)

// NoChangesSummary is the quick-diff summary when two snapshots are equal.
// The French literal is part of the external contract.
const NoChangesSummary = "Aucun changement"

// DiffEngine computes structural diffs between two matrix snapshots.
// All methods are pure: inputs are never mutated and identical inputs
// always produce identical output.
type DiffEngine interface {
	// GenerateDiff matches entries between the two snapshots by id and
	// classifies each as added, removed, modified or unchanged.
	GenerateDiff(oldSnapshot, newSnapshot *models.MatrixSnapshot, metadata models.DiffMetadata) (*models.MatrixDiff, error)
	// GenerateQuickDiff computes a condensed diff without version metadata.
	GenerateQuickDiff(oldSnapshot, newSnapshot *models.MatrixSnapshot) (*models.QuickDiff, error)
}

type diffEngine struct {
	logger *zap.Logger
}

// NewDiffEngine creates a new diff engine.
func NewDiffEngine(logger *zap.Logger) DiffEngine {
	return &diffEngine{
		logger: logger.Named("diff-engine"),
	}
}

var _ DiffEngine = (*diffEngine)(nil)

// comparedField pairs a wire field name with its accessor. The id is the
// matching key and is never compared.
type comparedField struct {
	name string
	get  func(*models.FlowEntry) string
}

var comparedFields = []comparedField{
	{"request_type", func(e *models.FlowEntry) string { return e.RequestType }},
	{"rule_status", func(e *models.FlowEntry) string { return e.RuleStatus }},
	{"rule_name", func(e *models.FlowEntry) string { return e.RuleName }},
	{"device", func(e *models.FlowEntry) string { return e.Device }},
	{"src_zone", func(e *models.FlowEntry) string { return e.SrcZone }},
	{"src_name", func(e *models.FlowEntry) string { return e.SrcName }},
	{"src_cidr", func(e *models.FlowEntry) string { return e.SrcCIDR }},
	{"src_service", func(e *models.FlowEntry) string { return e.SrcService }},
	{"dst_zone", func(e *models.FlowEntry) string { return e.DstZone }},
	{"dst_name", func(e *models.FlowEntry) string { return e.DstName }},
	{"dst_cidr", func(e *models.FlowEntry) string { return e.DstCIDR }},
	{"protocol_group", func(e *models.FlowEntry) string { return e.ProtocolGroup }},
	{"dst_service", func(e *models.FlowEntry) string { return e.DstService }},
	{"action", func(e *models.FlowEntry) string { return e.Action }},
	{"implementation_date", func(e *models.FlowEntry) string { return formatImplementationDate(e.ImplementationDate) }},
	{"requester", func(e *models.FlowEntry) string { return e.Requester }},
	{"comment", func(e *models.FlowEntry) string { return e.Comment }},
}

func formatImplementationDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (s *diffEngine) GenerateDiff(oldSnapshot, newSnapshot *models.MatrixSnapshot, metadata models.DiffMetadata) (*models.MatrixDiff, error) {
	oldByID, err := indexSnapshot(oldSnapshot)
	if err != nil {
		return nil, fmt.Errorf("old snapshot: %w", err)
	}
	newByID, err := indexSnapshot(newSnapshot)
	if err != nil {
		return nil, fmt.Errorf("new snapshot: %w", err)
	}

	diff := &models.MatrixDiff{
		Entries:  make([]models.DiffEntryRecord, 0, len(oldSnapshot.Entries)+len(newSnapshot.Entries)),
		Metadata: metadata,
	}

	// Fixed output convention: old-snapshot order first (removed, modified
	// and unchanged interleaved as they appear), then added entries in
	// new-snapshot order. Repeated calls on identical inputs are
	// byte-identical.
	for i := range oldSnapshot.Entries {
		oldEntry := &oldSnapshot.Entries[i]
		newEntry, exists := newByID[oldEntry.ID]
		if !exists {
			diff.Entries = append(diff.Entries, models.DiffEntryRecord{
				Type:  models.DiffEntryRemoved,
				Entry: oldEntry,
			})
			diff.Summary.Removed++
			continue
		}

		changes := compareEntries(oldEntry, newEntry)
		if len(changes) > 0 {
			diff.Entries = append(diff.Entries, models.DiffEntryRecord{
				Type:     models.DiffEntryModified,
				OldEntry: oldEntry,
				NewEntry: newEntry,
				Changes:  changes,
			})
			diff.Summary.Modified++
		} else {
			diff.Entries = append(diff.Entries, models.DiffEntryRecord{
				Type:  models.DiffEntryUnchanged,
				Entry: newEntry,
			})
			diff.Summary.Unchanged++
		}
	}

	for i := range newSnapshot.Entries {
		newEntry := &newSnapshot.Entries[i]
		if _, exists := oldByID[newEntry.ID]; exists {
			continue
		}
		diff.Entries = append(diff.Entries, models.DiffEntryRecord{
			Type:  models.DiffEntryAdded,
			Entry: newEntry,
		})
		diff.Summary.Added++
	}

	diff.Summary.Total = diff.Summary.Added + diff.Summary.Removed + diff.Summary.Modified + diff.Summary.Unchanged

	s.logger.Debug("Generated matrix diff",
		zap.Int("from_version", metadata.FromVersion),
		zap.Int("to_version", metadata.ToVersion),
		zap.Int("added", diff.Summary.Added),
		zap.Int("removed", diff.Summary.Removed),
		zap.Int("modified", diff.Summary.Modified),
		zap.Int("total", diff.Summary.Total))

	return diff, nil
}

func (s *diffEngine) GenerateQuickDiff(oldSnapshot, newSnapshot *models.MatrixSnapshot) (*models.QuickDiff, error) {
	diff, err := s.GenerateDiff(oldSnapshot, newSnapshot, models.DiffMetadata{})
	if err != nil {
		return nil, err
	}

	changeCount := diff.Summary.Added + diff.Summary.Removed + diff.Summary.Modified
	return &models.QuickDiff{
		HasChanges:  changeCount > 0,
		ChangeCount: changeCount,
		Summary:     summarizeCounts(diff.Summary),
	}, nil
}

// summarizeCounts builds the compact "+a -r ~m" summary, listing only the
// non-zero buckets.
func summarizeCounts(summary models.DiffSummary) string {
	var parts []string
	if summary.Added > 0 {
		parts = append(parts, fmt.Sprintf("+%d", summary.Added))
	}
	if summary.Removed > 0 {
		parts = append(parts, fmt.Sprintf("-%d", summary.Removed))
	}
	if summary.Modified > 0 {
		parts = append(parts, fmt.Sprintf("~%d", summary.Modified))
	}
	if len(parts) == 0 {
		return NoChangesSummary
	}
	return strings.Join(parts, " ")
}

// compareEntries returns one DiffChange per differing field. Comparison is
// literal value equality; empty values are not normalized or skipped.
func compareEntries(oldEntry, newEntry *models.FlowEntry) []models.DiffChange {
	var changes []models.DiffChange
	for _, f := range comparedFields {
		oldValue := f.get(oldEntry)
		newValue := f.get(newEntry)
		if oldValue != newValue {
			changes = append(changes, models.DiffChange{
				Field:    f.name,
				OldValue: oldValue,
				NewValue: newValue,
			})
		}
	}
	return changes
}

// indexSnapshot validates a snapshot and builds its id index. A nil
// snapshot, a nil entries slice, a non-positive id or a duplicate id all
// fail fast rather than being silently treated as empty.
func indexSnapshot(snapshot *models.MatrixSnapshot) (map[int]*models.FlowEntry, error) {
	if snapshot == nil || snapshot.Entries == nil {
		return nil, fmt.Errorf("%w: missing entries", apperrors.ErrInvalidSnapshot)
	}

	byID := make(map[int]*models.FlowEntry, len(snapshot.Entries))
	for i := range snapshot.Entries {
		entry := &snapshot.Entries[i]
		if entry.ID <= 0 {
			return nil, fmt.Errorf("%w: entry at index %d has no id", apperrors.ErrInvalidSnapshot, i)
		}
		if _, dup := byID[entry.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate entry id %d", apperrors.ErrInvalidSnapshot, entry.ID)
		}
		byID[entry.ID] = entry
	}
	return byID, nil
}
