package services

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/matriflow/matriflow-engine/pkg/apperrors"
	"github.com/matriflow/matriflow-engine/pkg/models"
)

// ExportFormat selects the rendering of an exported diff.
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatCSV      ExportFormat = "csv"
	FormatMarkdown ExportFormat = "markdown"
)

// ContentType returns the MIME type for the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatMarkdown:
		return "text/markdown"
	default:
		return "application/json"
	}
}

// Extension returns the attachment file extension for the format.
func (f ExportFormat) Extension() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatMarkdown:
		return "md"
	default:
		return "json"
	}
}

// DiffExporter renders a computed diff, plus an optional impact analysis,
// into a transportable document.
type DiffExporter interface {
	// Export renders the diff in the requested format. A format outside
	// json/csv/markdown fails with ErrUnsupportedFormat; it never silently
	// falls back to JSON.
	Export(diff *models.MatrixDiff, impact *models.ImpactAnalysis, format ExportFormat) (string, error)
}

type diffExporter struct{}

// NewDiffExporter creates a new diff exporter.
func NewDiffExporter() DiffExporter {
	return &diffExporter{}
}

var _ DiffExporter = (*diffExporter)(nil)

func (s *diffExporter) Export(diff *models.MatrixDiff, impact *models.ImpactAnalysis, format ExportFormat) (string, error) {
	switch format {
	case FormatJSON:
		return exportJSON(diff, impact)
	case FormatCSV:
		return exportCSV(diff)
	case FormatMarkdown:
		return exportMarkdown(diff, impact), nil
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnsupportedFormat, format)
	}
}

// jsonExport is the JSON document shape: the full diff plus the impact
// analysis when one was computed.
type jsonExport struct {
	Entries  []models.DiffEntryRecord `json:"entries"`
	Summary  models.DiffSummary       `json:"summary"`
	Metadata models.DiffMetadata      `json:"metadata"`
	Impact   *models.ImpactAnalysis   `json:"impact,omitempty"`
}

func exportJSON(diff *models.MatrixDiff, impact *models.ImpactAnalysis) (string, error) {
	payload := jsonExport{
		Entries:  diff.Entries,
		Summary:  diff.Summary,
		Metadata: diff.Metadata,
		Impact:   impact,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal diff: %w", err)
	}
	return string(data), nil
}

var csvHeader = []string{
	"Type", "ID", "Rule Name", "Device",
	"Source Zone", "Source Name", "Source CIDR",
	"Destination Zone", "Destination Name", "Destination CIDR",
	"Service", "Action", "Changes",
}

func exportCSV(diff *models.MatrixDiff) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range diff.Entries {
		record := &diff.Entries[i]
		entry := record.DisplayEntry()
		if entry == nil {
			continue
		}
		row := []string{
			string(record.Type),
			strconv.Itoa(entry.ID),
			entry.RuleName,
			entry.Device,
			entry.SrcZone,
			entry.SrcName,
			entry.SrcCIDR,
			entry.DstZone,
			entry.DstName,
			entry.DstCIDR,
			entry.DstService,
			entry.Action,
			formatChanges(record.Changes),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}
	return sb.String(), nil
}

func formatChanges(changes []models.DiffChange) string {
	if len(changes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		parts = append(parts, fmt.Sprintf("%s: %s -> %s", c.Field, c.OldValue, c.NewValue))
	}
	return strings.Join(parts, "; ")
}

func exportMarkdown(diff *models.MatrixDiff, impact *models.ImpactAnalysis) string {
	var sb strings.Builder

	sb.WriteString("# Matrix Diff Report\n\n")
	meta := diff.Metadata
	fmt.Fprintf(&sb, "Comparing version %d (%s) to version %d (%s).\n\n",
		meta.FromVersion, meta.FromDate.Format("2006-01-02"),
		meta.ToVersion, meta.ToDate.Format("2006-01-02"))
	if meta.FromCreatedBy != "" || meta.ToCreatedBy != "" {
		fmt.Fprintf(&sb, "Authors: %s → %s\n\n", meta.FromCreatedBy, meta.ToCreatedBy)
	}

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- **Added**: %d\n", diff.Summary.Added)
	fmt.Fprintf(&sb, "- **Modified**: %d\n", diff.Summary.Modified)
	fmt.Fprintf(&sb, "- **Removed**: %d\n", diff.Summary.Removed)
	fmt.Fprintf(&sb, "- **Unchanged**: %d\n", diff.Summary.Unchanged)
	fmt.Fprintf(&sb, "- **Total**: %d\n\n", diff.Summary.Total)

	if impact != nil {
		sb.WriteString("## Impact Analysis\n\n")
		fmt.Fprintf(&sb, "**Risk Level**: %s\n\n", impact.RiskLevel)
		if len(impact.CriticalChanges) > 0 {
			sb.WriteString("### Critical Changes\n\n")
			for _, change := range impact.CriticalChanges {
				fmt.Fprintf(&sb, "- %s\n", change)
			}
			sb.WriteString("\n")
		}
		if len(impact.ImpactedZones) > 0 {
			fmt.Fprintf(&sb, "**Impacted Zones**: %s\n\n", strings.Join(impact.ImpactedZones, ", "))
		}
		if len(impact.Recommendations) > 0 {
			sb.WriteString("### Recommendations\n\n")
			for _, rec := range impact.Recommendations {
				fmt.Fprintf(&sb, "- %s\n", rec)
			}
			sb.WriteString("\n")
		}
	}

	writeMarkdownSection(&sb, "Added Rules", diff, models.DiffEntryAdded)
	writeMarkdownSection(&sb, "Removed Rules", diff, models.DiffEntryRemoved)
	writeModifiedSection(&sb, diff)

	return sb.String()
}

func writeMarkdownSection(sb *strings.Builder, title string, diff *models.MatrixDiff, entryType models.DiffEntryType) {
	var lines []string
	for i := range diff.Entries {
		record := &diff.Entries[i]
		if record.Type != entryType || record.Entry == nil {
			continue
		}
		e := record.Entry
		lines = append(lines, fmt.Sprintf("- `#%d` %s — %s/%s → %s/%s (%s)",
			e.ID, e.RuleName, e.SrcZone, e.SrcCIDR, e.DstZone, e.DstCIDR, e.Action))
	}
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(sb, "## %s\n\n", title)
	for _, line := range lines {
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n")
}

func writeModifiedSection(sb *strings.Builder, diff *models.MatrixDiff) {
	wroteHeader := false
	for i := range diff.Entries {
		record := &diff.Entries[i]
		if record.Type != models.DiffEntryModified || record.NewEntry == nil {
			continue
		}
		if !wroteHeader {
			sb.WriteString("## Modified Rules\n\n")
			wroteHeader = true
		}
		fmt.Fprintf(sb, "- `#%d` %s\n", record.NewEntry.ID, record.NewEntry.RuleName)
		for _, c := range record.Changes {
			fmt.Fprintf(sb, "  - %s: `%s` → `%s`\n", c.Field, c.OldValue, c.NewValue)
		}
	}
	if wroteHeader {
		sb.WriteString("\n")
	}
}
