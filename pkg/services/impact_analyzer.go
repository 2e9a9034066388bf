package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/matriflow/matriflow-engine/pkg/models"
)

// French literals embedded in analysis output. They are part of the
// external contract consumed by the change-approval UI; do not translate.
const (
	manualReviewRecommendation = "Révision manuelle requise avant déploiement"
	noActionRecommendation     = "Aucune action requise"
)

// ImpactAnalyzer derives a risk assessment from a computed matrix diff.
// Analysis is stateless and deterministic.
type ImpactAnalyzer interface {
	// Analyze classifies the overall risk of a diff and collects critical
	// findings, impacted zones and remediation recommendations.
	Analyze(diff *models.MatrixDiff) *models.ImpactAnalysis
	// RecordImpactLevel classifies a single diff record with the same
	// cascade Analyze applies across the whole diff.
	RecordImpactLevel(record *models.DiffEntryRecord) models.RiskLevel
}

type impactAnalyzer struct {
	logger *zap.Logger
}

// NewImpactAnalyzer creates a new impact analyzer.
func NewImpactAnalyzer(logger *zap.Logger) ImpactAnalyzer {
	return &impactAnalyzer{
		logger: logger.Named("impact-analyzer"),
	}
}

var _ ImpactAnalyzer = (*impactAnalyzer)(nil)

func (s *impactAnalyzer) Analyze(diff *models.MatrixDiff) *models.ImpactAnalysis {
	analysis := &models.ImpactAnalysis{
		RiskLevel:       models.RiskLow,
		CriticalChanges: []string{},
		ImpactedZones:   []string{},
		Recommendations: []string{},
	}

	seenZones := make(map[string]bool)
	for i := range diff.Entries {
		record := &diff.Entries[i]
		if record.Type == models.DiffEntryUnchanged {
			continue
		}

		level := s.RecordImpactLevel(record)
		if level.Rank() > analysis.RiskLevel.Rank() {
			analysis.RiskLevel = level
		}
		if finding := describeFinding(record, level); finding != "" {
			analysis.CriticalChanges = append(analysis.CriticalChanges, finding)
		}
		collectZones(record, seenZones, &analysis.ImpactedZones)
	}

	analysis.Recommendations = buildRecommendations(analysis.RiskLevel, diff.Summary)

	s.logger.Debug("Analyzed diff impact",
		zap.String("risk_level", string(analysis.RiskLevel)),
		zap.Int("critical_changes", len(analysis.CriticalChanges)),
		zap.Strings("impacted_zones", analysis.ImpactedZones))

	return analysis
}

// RecordImpactLevel applies the risk cascade at record granularity:
//
//	critical: an action transition from ALLOW to DENY
//	high:     removal of an ACTIVE ALLOW rule, or a CIDR change combined
//	          with an action change
//	medium:   any addition, or a zone/service/protocol change without an
//	          action narrowing
//	low:      everything else, including unchanged records
func (s *impactAnalyzer) RecordImpactLevel(record *models.DiffEntryRecord) models.RiskLevel {
	switch record.Type {
	case models.DiffEntryModified:
		if isActionNarrowing(record) {
			return models.RiskCritical
		}
		if (record.HasChange("src_cidr") || record.HasChange("dst_cidr")) && record.HasChange("action") {
			return models.RiskHigh
		}
		if record.HasChange("src_zone") || record.HasChange("dst_zone") ||
			record.HasChange("dst_service") || record.HasChange("protocol_group") {
			return models.RiskMedium
		}
		return models.RiskLow

	case models.DiffEntryRemoved:
		if record.Entry != nil && record.Entry.RuleStatus == models.RuleStatusActive && record.Entry.Action == models.ActionAllow {
			return models.RiskHigh
		}
		return models.RiskLow

	case models.DiffEntryAdded:
		return models.RiskMedium

	default:
		return models.RiskLow
	}
}

func isActionNarrowing(record *models.DiffEntryRecord) bool {
	change, ok := record.Change("action")
	return ok && change.OldValue == models.ActionAllow && change.NewValue == models.ActionDeny
}

// describeFinding renders the human-readable finding for critical and high
// records. Lower levels produce no finding.
func describeFinding(record *models.DiffEntryRecord, level models.RiskLevel) string {
	name := recordRuleName(record)
	switch {
	case level == models.RiskCritical:
		return fmt.Sprintf("Règle %s : action modifiée de ALLOW à DENY", name)
	case level == models.RiskHigh && record.Type == models.DiffEntryRemoved:
		return fmt.Sprintf("Règle active %s (ALLOW) supprimée", name)
	case level == models.RiskHigh:
		return fmt.Sprintf("Règle %s : modification simultanée du CIDR et de l'action", name)
	default:
		return ""
	}
}

func recordRuleName(record *models.DiffEntryRecord) string {
	entry := record.DisplayEntry()
	if entry == nil {
		return "?"
	}
	if entry.RuleName != "" {
		return entry.RuleName
	}
	return fmt.Sprintf("#%d", entry.ID)
}

// collectZones appends every non-empty zone on the record's entries,
// deduplicated in insertion order.
func collectZones(record *models.DiffEntryRecord, seen map[string]bool, zones *[]string) {
	for _, entry := range []*models.FlowEntry{record.Entry, record.OldEntry, record.NewEntry} {
		if entry == nil {
			continue
		}
		for _, zone := range []string{entry.SrcZone, entry.DstZone} {
			if zone == "" || seen[zone] {
				continue
			}
			seen[zone] = true
			*zones = append(*zones, zone)
		}
	}
}

func buildRecommendations(level models.RiskLevel, summary models.DiffSummary) []string {
	switch level {
	case models.RiskCritical, models.RiskHigh:
		recs := []string{manualReviewRecommendation}
		if summary.Removed > 0 {
			recs = append(recs, "Vérifier que les règles supprimées ne portent plus de trafic")
		}
		recs = append(recs, "Planifier le déploiement hors des heures de production")
		return recs
	case models.RiskMedium:
		return []string{"Valider les nouvelles règles avec l'équipe sécurité"}
	default:
		return []string{noActionRecommendation}
	}
}
