package formatter

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/desertthunder/hsmc/internal/models"
	th "github.com/desertthunder/hsmc/internal/testing"
)

func sampleResult() *models.RunResult {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &models.RunResult{
		Success:     true,
		Message:     "Migrated 1 of 2 emails (1 failed)",
		AssetType:   models.AssetEmails,
		StartedAt:   started,
		CompletedAt: started.Add(1500 * time.Millisecond),
	}
	r.Record(models.MigrationResult{
		SourceID:       "101",
		SourceName:     "Welcome | Spring",
		DestinationID:  9001,
		DestinationKey: "welcome-key",
		Status:         models.StatusSuccess,
		Warnings:       []string{"content block \"hero\" kept inline"},
	})
	r.Record(models.MigrationResult{
		SourceID:   "102",
		SourceName: "Newsletter",
		Status:     models.StatusError,
		Error:      "asset create failed: 400",
	})
	return r
}

func TestExporters(t *testing.T) {
	t.Run("ExportToYAML", func(t *testing.T) {
		data, err := ExportToYAML(sampleResult())
		if err != nil {
			t.Fatalf("ExportToYAML failed: %v", err)
		}

		var doc yamlLedger
		if err := yaml.Unmarshal(data, &doc); err != nil {
			t.Fatalf("output is not YAML: %v\n%s", err, data)
		}
		if doc.AssetType != "emails" || doc.Attempted != 2 || doc.Failed != 1 {
			t.Errorf("unexpected totals: %+v", doc)
		}
		if len(doc.Items) != 2 || doc.Items[0].DestinationID != 9001 || doc.Items[1].Error != "asset create failed: 400" {
			t.Errorf("unexpected items: %+v", doc.Items)
		}
		if doc.Items[0].SourceName != "Welcome | Spring" || len(doc.Items[0].Warnings) != 1 {
			t.Errorf("first item did not survive encoding: %+v", doc.Items[0])
		}
	})

	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(sampleResult())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header plus 2 rows, got %d: %q", len(lines), data)
		}
		if lines[0] != "Source ID,Source Name,Status,Destination ID,Destination Key,Error,Warnings" {
			t.Errorf("unexpected headers: %s", lines[0])
		}
		if !strings.HasPrefix(lines[1], "101,Welcome | Spring,success,9001,welcome-key,,") {
			t.Errorf("unexpected first row: %s", lines[1])
		}
		if lines[2] != "102,Newsletter,error,,,asset create failed: 400," {
			t.Errorf("unexpected second row: %s", lines[2])
		}
	})

	t.Run("ExportToCSV without items falls back to migrated then errors", func(t *testing.T) {
		r := sampleResult()
		r.Items = nil

		data, err := ExportToCSV(r)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}
		output := string(data)
		if strings.Index(output, "101") > strings.Index(output, "102") {
			t.Errorf("expected migrated entries first, got %s", output)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		r := sampleResult()
		r.DataExtension = &models.DestinationAsset{Name: "HubSpot Contacts", Key: "de-key"}
		r.RowsInserted = 12
		r.Lists = []models.ListResult{
			{ListID: "1", Name: "Leads", FolderID: 77},
			{ListID: "2", Name: "Customers", Error: "folder create failed"},
		}

		data, err := ExportToMarkdown(r)
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}
		output := string(data)

		for _, want := range []string{
			"# Migration: emails",
			"Migrated 1 of 2 emails (1 failed)",
			"**Attempted**: 2",
			"**Failed**: 1",
			"**Duration**: 1.5s",
			"**Data extension**: HubSpot Contacts (de-key), 12 rows",
			`| Welcome \| Spring (101) | success | 9001 |`,
			"| Newsletter (102) | error |  | asset create failed: 400 |",
			"- Leads → folder 77",
			"- Customers: folder create failed",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToMarkdown omits empty sections", func(t *testing.T) {
		data, err := ExportToMarkdown(&models.RunResult{AssetType: models.AssetForms})
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}
		output := string(data)
		if strings.Contains(output, "## Lists") || strings.Contains(output, "Duration") {
			t.Errorf("unexpected optional sections: %s", output)
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(sampleResult())
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}
		output := string(data)

		if !strings.Contains(output, "1. ✓ Welcome | Spring (9001)") {
			t.Errorf("missing success line: %s", output)
		}
		if !strings.Contains(output, "2. ✗ Newsletter (asset create failed: 400)") {
			t.Errorf("missing failure line: %s", output)
		}
	})

	t.Run("ToMetadataJSON", func(t *testing.T) {
		data, err := ToMetadataJSON(sampleResult())
		if err != nil {
			t.Fatalf("ToMetadataJSON failed: %v", err)
		}

		var got map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got["assetType"] != "emails" || got["attempted"] != float64(2) || got["failedCount"] != float64(1) {
			t.Errorf("unexpected summary: %v", got)
		}
		if _, ok := got["migrated"]; ok {
			t.Errorf("summary should not carry the ledger: %v", got)
		}
	})
}

func TestFileWriters(t *testing.T) {
	t.Run("WriteCSVExport", func(t *testing.T) {
		t.Run("default base name", func(t *testing.T) {
			tempDir := t.TempDir()
			originalDir := th.MustGetwd(t)
			th.MustChdir(t, tempDir)
			defer th.MustChdir(t, originalDir)

			result, err := WriteCSVExport(sampleResult(), "")
			if err != nil {
				t.Fatalf("WriteCSVExport failed: %v", err)
			}
			if result.LedgerFile != "emails_ledger.csv" || result.MetadataFile != "emails_summary.json" {
				t.Errorf("unexpected file names: %+v", result)
			}

			th.AssertFileExists(t, result.LedgerFile)
			th.AssertFileExists(t, result.MetadataFile)

			if content := th.MustReadFile(t, result.LedgerFile); !strings.Contains(content, "welcome-key") {
				t.Errorf("ledger missing entry: %s", content)
			}
			if content := th.MustReadFile(t, result.MetadataFile); !strings.Contains(content, `"migratedCount": 1`) {
				t.Errorf("summary missing totals: %s", content)
			}
		})

		t.Run("custom base path", func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "run")
			result, err := WriteCSVExport(sampleResult(), base)
			if err != nil {
				t.Fatalf("WriteCSVExport failed: %v", err)
			}
			th.AssertFileExists(t, base+"_ledger.csv")
			th.AssertFileExists(t, result.MetadataFile)
		})

		t.Run("unwritable path", func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "missing", "run")
			if _, err := WriteCSVExport(sampleResult(), base); err == nil {
				t.Error("expected error for missing directory")
			}
		})
	})

	t.Run("WriteMarkdownExport", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "report")
		path, err := WriteMarkdownExport(sampleResult(), dir)
		if err != nil {
			t.Fatalf("WriteMarkdownExport failed: %v", err)
		}
		if path != filepath.Join(dir, "README.md") {
			t.Errorf("unexpected path %s", path)
		}
		if content := th.MustReadFile(t, path); !strings.Contains(content, "# Migration: emails") {
			t.Errorf("unexpected README: %s", content)
		}
	})

	t.Run("WriteTextExport", func(t *testing.T) {
		tempDir := t.TempDir()
		originalDir := th.MustGetwd(t)
		th.MustChdir(t, tempDir)
		defer th.MustChdir(t, originalDir)

		path, err := WriteTextExport(sampleResult(), "")
		if err != nil {
			t.Fatalf("WriteTextExport failed: %v", err)
		}
		if path != "emails_ledger.txt" {
			t.Errorf("unexpected path %s", path)
		}
		th.AssertFileExists(t, path)
	})
}
