// Package ui implements an interactive terminal interface using bubbletea's Elm architecture, plus lipgloss
// renderers for migration ledgers used by the non-interactive commands.
//
// The TUI provides a multi-view workflow for a single migration:
//  1. [AssetListView] : Pick an asset type (contacts, emails, forms, templates, workflows)
//  2. [PreviewView] : Browse the HubSpot items that would be read
//  3. [ConfirmView] : Confirm the run
//  4. [RunView] : Monitor real-time progress updates
//  5. [ResultView] : Display the per-item ledger
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the migration engine, providing non-blocking status reporting during runs.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
