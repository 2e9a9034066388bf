package services

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/matriflow/matriflow-engine/pkg/models"
)

// VersionStatsAggregator summarizes the change volume of a matrix's
// version history, one stat per consecutive version transition.
type VersionStatsAggregator interface {
	// GenerateVersionStats quick-diffs each consecutive snapshot pair.
	// Input order does not matter: snapshots are sorted by version
	// ascending before pairing. A list of n snapshots yields n-1 stats.
	GenerateVersionStats(snapshots []models.VersionedSnapshot) ([]models.VersionStat, error)
}

type versionStatsAggregator struct {
	engine DiffEngine
	logger *zap.Logger
}

// NewVersionStatsAggregator creates a new aggregator backed by the given
// diff engine.
func NewVersionStatsAggregator(engine DiffEngine, logger *zap.Logger) VersionStatsAggregator {
	return &versionStatsAggregator{
		engine: engine,
		logger: logger.Named("version-stats"),
	}
}

var _ VersionStatsAggregator = (*versionStatsAggregator)(nil)

func (s *versionStatsAggregator) GenerateVersionStats(snapshots []models.VersionedSnapshot) ([]models.VersionStat, error) {
	stats := []models.VersionStat{}
	if len(snapshots) < 2 {
		return stats, nil
	}

	ordered := make([]models.VersionedSnapshot, len(snapshots))
	copy(ordered, snapshots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Version < ordered[j].Version
	})

	for i := 1; i < len(ordered); i++ {
		prev, curr := ordered[i-1], ordered[i]
		quick, err := s.engine.GenerateQuickDiff(prev.Snapshot, curr.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to diff versions %d and %d: %w", prev.Version, curr.Version, err)
		}
		stats = append(stats, models.VersionStat{
			Version:     curr.Version,
			ChangeCount: quick.ChangeCount,
			HasChanges:  quick.HasChanges,
			Summary:     quick.Summary,
		})
	}

	s.logger.Debug("Generated version stats", zap.Int("transitions", len(stats)))
	return stats, nil
}
