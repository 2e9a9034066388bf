package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matriflow/matriflow-engine/pkg/apperrors"
	"github.com/matriflow/matriflow-engine/pkg/models"
)

func newStatsAggregator() VersionStatsAggregator {
	logger := zap.NewNop()
	return NewVersionStatsAggregator(NewDiffEngine(logger), logger)
}

func TestVersionStats_TwoVersions(t *testing.T) {
	aggregator := newStatsAggregator()

	stats, err := aggregator.GenerateVersionStats([]models.VersionedSnapshot{
		{Version: 1, Snapshot: oldTestSnapshot()},
		{Version: 2, Snapshot: newTestSnapshot()},
	})
	require.NoError(t, err)

	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Version)
	assert.Equal(t, 3, stats[0].ChangeCount)
	assert.True(t, stats[0].HasChanges)
	assert.Contains(t, stats[0].Summary, "+1")
}

func TestVersionStats_IdenticalConsecutiveVersions(t *testing.T) {
	aggregator := newStatsAggregator()
	snapshot := oldTestSnapshot()

	stats, err := aggregator.GenerateVersionStats([]models.VersionedSnapshot{
		{Version: 1, Snapshot: snapshot},
		{Version: 2, Snapshot: oldTestSnapshot()},
	})
	require.NoError(t, err)

	require.Len(t, stats, 1)
	assert.False(t, stats[0].HasChanges)
	assert.Equal(t, 0, stats[0].ChangeCount)
	assert.Equal(t, "Aucun changement", stats[0].Summary)
}

func TestVersionStats_ShortHistories(t *testing.T) {
	aggregator := newStatsAggregator()

	stats, err := aggregator.GenerateVersionStats(nil)
	require.NoError(t, err)
	assert.Empty(t, stats)

	stats, err = aggregator.GenerateVersionStats([]models.VersionedSnapshot{
		{Version: 1, Snapshot: oldTestSnapshot()},
	})
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestVersionStats_SortsInputByVersion(t *testing.T) {
	aggregator := newStatsAggregator()

	// Out of order on purpose: pairing must follow version numbers, not
	// slice order.
	stats, err := aggregator.GenerateVersionStats([]models.VersionedSnapshot{
		{Version: 3, Snapshot: newTestSnapshot()},
		{Version: 1, Snapshot: oldTestSnapshot()},
		{Version: 2, Snapshot: oldTestSnapshot()},
	})
	require.NoError(t, err)

	require.Len(t, stats, 2)
	assert.Equal(t, 2, stats[0].Version)
	assert.False(t, stats[0].HasChanges)
	assert.Equal(t, 3, stats[1].Version)
	assert.True(t, stats[1].HasChanges)
	assert.Equal(t, 3, stats[1].ChangeCount)
}

func TestVersionStats_PropagatesInvalidSnapshot(t *testing.T) {
	aggregator := newStatsAggregator()

	_, err := aggregator.GenerateVersionStats([]models.VersionedSnapshot{
		{Version: 1, Snapshot: oldTestSnapshot()},
		{Version: 2, Snapshot: nil},
	})
	require.ErrorIs(t, err, apperrors.ErrInvalidSnapshot)
}
