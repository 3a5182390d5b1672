// package formatter exports migration ledgers to various formats (CSV, Markdown, plain text, YAML, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
)

// entries returns every ledger entry in source order, falling back to migrated then errors for results
// decoded from JSON (which carry no Items).
func entries(result *models.RunResult) []models.MigrationResult {
	if len(result.Items) > 0 {
		return result.Items
	}
	out := make([]models.MigrationResult, 0, len(result.Migrated)+len(result.Errors))
	out = append(out, result.Migrated...)
	return append(out, result.Errors...)
}

func destinationID(item models.MigrationResult) string {
	if item.DestinationID == 0 {
		return ""
	}
	return strconv.FormatInt(item.DestinationID, 10)
}

// ExportToCSV converts a RunResult to CSV format with columns: Source ID, Source Name, Status, Destination ID,
// Destination Key, Error, Warnings
func ExportToCSV(result *models.RunResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Source ID", "Source Name", "Status", "Destination ID", "Destination Key", "Error", "Warnings"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range entries(result) {
		record := []string{
			item.SourceID,
			item.SourceName,
			string(item.Status),
			destinationID(item),
			item.DestinationKey,
			item.Error,
			strings.Join(item.Warnings, "; "),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a RunResult to a Markdown report
func ExportToMarkdown(result *models.RunResult) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Migration: %s\n\n", result.AssetType)
	if result.Message != "" {
		fmt.Fprintf(&buf, "%s\n\n", result.Message)
	}

	fmt.Fprintf(&buf, "**Attempted**: %d\n", result.Attempted)
	fmt.Fprintf(&buf, "**Migrated**: %d\n", result.MigratedCount)
	fmt.Fprintf(&buf, "**Failed**: %d\n", result.FailedCount)
	if !result.StartedAt.IsZero() && !result.CompletedAt.IsZero() {
		fmt.Fprintf(&buf, "**Duration**: %s\n", result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond))
	}
	if result.DataExtension != nil {
		fmt.Fprintf(&buf, "**Data extension**: %s (%s), %d rows\n", result.DataExtension.Name, result.DataExtension.Key, result.RowsInserted)
	}
	buf.WriteString("\n## Items\n\n")
	buf.WriteString("| Source | Status | Destination | Notes |\n|---|---|---|---|\n")

	cell := func(s string) string {
		return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
	}
	for _, item := range entries(result) {
		notes := item.Warnings
		if item.Error != "" {
			notes = append([]string{item.Error}, notes...)
		}
		fmt.Fprintf(&buf, "| %s (%s) | %s | %s | %s |\n",
			cell(item.SourceName), cell(item.SourceID), item.Status, destinationID(item), cell(strings.Join(notes, "; ")))
	}

	if len(result.Lists) > 0 {
		buf.WriteString("\n## Lists\n\n")
		for _, l := range result.Lists {
			if l.Error != "" {
				fmt.Fprintf(&buf, "- %s: %s\n", l.Name, l.Error)
				continue
			}
			fmt.Fprintf(&buf, "- %s → folder %d\n", l.Name, l.FolderID)
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts a RunResult to plain text format
func ExportToText(result *models.RunResult) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Migration: %s\n", result.AssetType)
	if result.Message != "" {
		fmt.Fprintf(&buf, "%s\n", result.Message)
	}
	buf.WriteString("\n")

	for i, item := range entries(result) {
		mark := "✓"
		detail := destinationID(item)
		if item.Status != models.StatusSuccess {
			mark, detail = "✗", item.Error
		}
		fmt.Fprintf(&buf, "%d. %s %s (%s)\n", i+1, mark, item.SourceName, detail)
	}

	return buf.Bytes(), nil
}

// summary is the ledger-free view of a run written next to CSV exports.
type summary struct {
	Success       bool                     `json:"success"`
	Message       string                   `json:"message"`
	AssetType     models.AssetType         `json:"assetType"`
	Attempted     int                      `json:"attempted"`
	MigratedCount int                      `json:"migratedCount"`
	FailedCount   int                      `json:"failedCount"`
	DataExtension *models.DestinationAsset `json:"dataExtension,omitempty"`
	RowsInserted  int                      `json:"rowsInserted,omitempty"`
	Lists         []models.ListResult      `json:"lists,omitempty"`
	StartedAt     time.Time                `json:"startedAt"`
	CompletedAt   time.Time                `json:"completedAt"`
}

// ToMetadataJSON generates a JSON representation of run totals (without the ledger)
func ToMetadataJSON(result *models.RunResult) ([]byte, error) {
	return shared.MarshalJSON(summary{
		Success:       result.Success,
		Message:       result.Message,
		AssetType:     result.AssetType,
		Attempted:     result.Attempted,
		MigratedCount: result.MigratedCount,
		FailedCount:   result.FailedCount,
		DataExtension: result.DataExtension,
		RowsInserted:  result.RowsInserted,
		Lists:         result.Lists,
		StartedAt:     result.StartedAt,
		CompletedAt:   result.CompletedAt,
	}, true)
}

type yamlItem struct {
	SourceID       string   `yaml:"source_id"`
	SourceName     string   `yaml:"source_name"`
	Status         string   `yaml:"status"`
	DestinationID  int64    `yaml:"destination_id,omitempty"`
	DestinationKey string   `yaml:"destination_key,omitempty"`
	Error          string   `yaml:"error,omitempty"`
	Warnings       []string `yaml:"warnings,omitempty"`
}

type yamlLedger struct {
	AssetType     string     `yaml:"asset_type"`
	Success       bool       `yaml:"success"`
	Message       string     `yaml:"message"`
	Attempted     int        `yaml:"attempted"`
	Migrated      int        `yaml:"migrated"`
	Failed        int        `yaml:"failed"`
	RowsInserted  int        `yaml:"rows_inserted,omitempty"`
	DataExtension string     `yaml:"data_extension,omitempty"`
	Items         []yamlItem `yaml:"items"`
}

// ExportToYAML writes totals followed by every ledger entry in source order.
func ExportToYAML(result *models.RunResult) ([]byte, error) {
	doc := yamlLedger{
		AssetType:    string(result.AssetType),
		Success:      result.Success,
		Message:      result.Message,
		Attempted:    result.Attempted,
		Migrated:     result.MigratedCount,
		Failed:       result.FailedCount,
		RowsInserted: result.RowsInserted,
		Items:        []yamlItem{},
	}
	if de := result.DataExtension; de != nil {
		doc.DataExtension = de.Key
	}
	for _, item := range entries(result) {
		doc.Items = append(doc.Items, yamlItem{
			SourceID:       item.SourceID,
			SourceName:     item.SourceName,
			Status:         string(item.Status),
			DestinationID:  item.DestinationID,
			DestinationKey: item.DestinationKey,
			Error:          item.Error,
			Warnings:       item.Warnings,
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	LedgerFile   string
	MetadataFile string
}

// WriteCSVExport exports a ledger to CSV format with accompanying metadata JSON file.
//
// Defaults to the asset type as the base filename & creates {base}_ledger.csv and {base}_summary.json
func WriteCSVExport(result *models.RunResult, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = string(result.AssetType)
	}

	csvData, err := ExportToCSV(result)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	ledgerFile := baseFilepath + "_ledger.csv"
	if err := os.WriteFile(ledgerFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(result)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_summary.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		LedgerFile:   ledgerFile,
		MetadataFile: metadataFile,
	}, nil
}

// WriteMarkdownExport exports a ledger to {dir}/README.md, creating the directory.
//
// Directory name defaults to "{assetType}-migration".
func WriteMarkdownExport(result *models.RunResult, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = string(result.AssetType) + "-migration"
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	mdData, err := ExportToMarkdown(result)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}
	return mdFile, nil
}

// WriteTextExport exports a ledger to plain text format.
//
// Defaults to {assetType}_ledger.txt as the filename.
func WriteTextExport(result *models.RunResult, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_ledger.txt", result.AssetType)
	}

	textData, err := ExportToText(result)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}
