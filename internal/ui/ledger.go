package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/hsmc/internal/models"
)

// maxNameWidth truncates long source names in ledger tables.
const maxNameWidth = 40

// RenderLedger formats a run result as a colored summary followed by one row per item.
func RenderLedger(result *models.RunResult) string {
	if result == nil {
		return styles.err.Render("No result available")
	}

	var b strings.Builder
	header := styles.ok.Render("✓ " + result.Message)
	if result.FailedCount > 0 {
		header = styles.warn.Render("! " + result.Message)
	}
	b.WriteString(header)
	b.WriteString("\n")

	if result.DataExtension != nil {
		fmt.Fprintf(&b, "Data extension: %s (%s), %d rows\n", result.DataExtension.Name, result.DataExtension.Key, result.RowsInserted)
	}
	b.WriteString("\n")

	items := result.Items
	if len(items) == 0 {
		items = append(append(items, result.Migrated...), result.Errors...)
	}

	var ids, names, marks, notes []string
	for _, item := range items {
		ids = append(ids, item.SourceID)
		names = append(names, truncate(item.SourceName, maxNameWidth))

		if item.Status == models.StatusSuccess {
			dest := strconv.FormatInt(item.DestinationID, 10)
			if item.DestinationKey != "" {
				dest += " " + item.DestinationKey
			}
			marks = append(marks, styles.ok.Render("✓ ")+dest)
		} else {
			marks = append(marks, styles.err.Render("✗ ")+item.Error)
		}

		notes = append(notes, styles.help.Render(strings.Join(item.Warnings, "; ")))
	}

	if len(items) > 0 {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			column("SOURCE", ids),
			column("NAME", names),
			column("RESULT", marks),
			column("WARNINGS", notes),
		))
		b.WriteString("\n")
	}

	if len(result.Lists) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.title.Render("Lists"))
		b.WriteString("\n")
		for _, l := range result.Lists {
			if l.Error != "" {
				fmt.Fprintf(&b, "  %s %s: %s\n", styles.err.Render("✗"), l.Name, l.Error)
				continue
			}
			fmt.Fprintf(&b, "  %s %s → folder %d\n", styles.ok.Render("✓"), l.Name, l.FolderID)
		}
	}

	return b.String()
}

// RenderFolders formats a folder listing as an aligned table.
func RenderFolders(folders []models.Folder) string {
	if len(folders) == 0 {
		return styles.help.Render("No folders found")
	}
	var ids, names, parents []string
	for _, f := range folders {
		ids = append(ids, strconv.FormatInt(f.ID, 10))
		names = append(names, f.Name)
		parents = append(parents, strconv.FormatInt(f.ParentID, 10))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		column("ID", ids),
		column("NAME", names),
		column("PARENT", parents),
	)
}

// Success renders msg in the success style.
func Success(msg string) string { return styles.ok.Render(msg) }

// Failure renders msg in the error style.
func Failure(msg string) string { return styles.err.Render(msg) }

func column(title string, rows []string) string {
	lines := append([]string{styles.help.Render(title)}, rows...)
	return styles.cell.Render(strings.Join(lines, "\n"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
