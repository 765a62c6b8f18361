// Package export renders an event's changelog into downloadable files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/neofi/eventapi/internal/domain"
	"github.com/neofi/eventapi/internal/service"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat resolves a query-string format value, defaulting to CSV.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

var header = []string{"version", "change_type", "changed_by", "source_version", "created_at", "changes"}

// WriteCSV writes one row per changelog entry.
func WriteCSV(w io.Writer, entries []service.ChangelogEntry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, entry := range entries {
		if err := writer.Write(entryRow(entry)); err != nil {
			return fmt.Errorf("failed to write row for version %d: %w", entry.VersionNumber, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX writes the changelog as a single-sheet workbook.
func WriteXLSX(w io.Writer, entries []service.ChangelogEntry) error {
	file := excelize.NewFile()
	defer file.Close()

	const sheet = "Changelog"
	index, err := file.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	file.SetActiveSheet(index)
	if err := file.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	headerRow := make([]any, len(header))
	for i, column := range header {
		headerRow[i] = column
	}
	if err := file.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, entry := range entries {
		row := entryRow(entry)
		values := make([]any, len(row))
		for j, value := range row {
			values[j] = value
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i+2, err)
		}
		if err := file.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row for version %d: %w", entry.VersionNumber, err)
		}
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func entryRow(entry service.ChangelogEntry) []string {
	source := ""
	if entry.SourceVersion != nil {
		source = fmt.Sprintf("%d", *entry.SourceVersion)
	}
	return []string{
		fmt.Sprintf("%d", entry.VersionNumber),
		string(entry.ChangeType),
		entry.ChangedBy,
		source,
		entry.CreatedAt.UTC().Format(time.RFC3339),
		renderSummary(entry.Summary),
	}
}

// renderSummary flattens field diffs into a compact human-readable line.
func renderSummary(diffs []domain.FieldDiff) string {
	if len(diffs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(diffs))
	for _, diff := range diffs {
		switch diff.Status {
		case domain.DiffAdded:
			parts = append(parts, fmt.Sprintf("%s: added %v", diff.Field, diff.New))
		case domain.DiffRemoved:
			parts = append(parts, fmt.Sprintf("%s: removed %v", diff.Field, diff.Old))
		case domain.DiffModified:
			parts = append(parts, fmt.Sprintf("%s: %v -> %v", diff.Field, diff.Old, diff.New))
		}
	}
	return strings.Join(parts, "; ")
}
