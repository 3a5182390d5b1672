package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	AssetListView ViewState = iota
	PreviewView
	ConfirmView
	RunView
	ResultView
)

// Migrator previews and runs migrations. Implemented by [tasks.Engine].
type Migrator interface {
	Preview(ctx context.Context, assetType models.AssetType, req *models.MigrationRequest) ([]models.SourceAsset, error)
	Run(ctx context.Context, assetType models.AssetType, req *models.MigrationRequest, progress chan<- tasks.ProgressUpdate) (*models.RunResult, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	view      ViewState
	engine    Migrator
	req       models.MigrationRequest
	width     int
	height    int
	assetList list.Model
	preview   list.Model
	selected  models.AssetType
	run       *runHandle
	spinner   spinner.Model
	progress  tasks.ProgressUpdate
	result    *models.RunResult
	err       error
	help      help.Model
	keys      keyMap
}

// NewModel creates a new TUI model. req is copied into every preview and run.
func NewModel(ctx context.Context, engine Migrator, req models.MigrationRequest) *Model {
	assetList := list.New(assetTypeItems(models.MigratableTypes), list.NewDefaultDelegate(), 0, 0)
	assetList.Title = "HubSpot → Marketing Cloud"

	preview := list.New(nil, list.NewDefaultDelegate(), 0, 0)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.title.UnsetMarginBottom()

	return &Model{
		ctx:       ctx,
		view:      AssetListView,
		engine:    engine,
		req:       req,
		assetList: assetList,
		preview:   preview,
		spinner:   s,
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Init has nothing to load: asset types are static.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.assetList.SetSize(msg.Width-4, msg.Height-8)
		m.preview.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case AssetListView:
			return m.handleAssetListKeys(msg)
		case PreviewView:
			return m.handlePreviewKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case RunView:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case previewLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.view = AssetListView
			return m, nil
		}
		m.preview = list.New(sourceItems(msg.assets), list.NewDefaultDelegate(), 0, 0)
		m.preview.Title = fmt.Sprintf("%d %s in HubSpot", len(msg.assets), msg.assetType)
		m.preview.SetSize(m.width-4, m.height-8)
		m.view = PreviewView
		return m, nil

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case runCompleteMsg:
		m.result = msg.result
		m.err = msg.err
		m.run = nil
		m.view = ResultView
		return m, nil

	case spinner.TickMsg:
		if m.view != RunView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case AssetListView:
		return m.renderAssetList()
	case PreviewView:
		return m.renderPreview()
	case ConfirmView:
		return m.renderConfirm()
	case RunView:
		return m.renderRun()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleAssetListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.assetList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter":
		if it, ok := m.assetList.SelectedItem().(assetTypeItem); ok {
			m.selected = it.assetType
			m.err = nil
			return m, m.fetchPreview(it.assetType)
		}
	}

	var cmd tea.Cmd
	m.assetList, cmd = m.assetList.Update(msg)
	return m, cmd
}

func (m *Model) handlePreviewKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.preview.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = AssetListView
		return m, nil
	case "enter":
		m.view = ConfirmView
		return m, nil
	}

	var cmd tea.Cmd
	m.preview, cmd = m.preview.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q", "n", "esc":
		m.view = PreviewView
		return m, nil
	case "y":
		m.view = RunView
		m.progress = tasks.ProgressUpdate{}
		return m, tea.Batch(m.startRun(), m.spinner.Tick)
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		m.view = AssetListView
		m.result = nil
		m.err = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case AssetListView:
		m.assetList, cmd = m.assetList.Update(msg)
	case PreviewView:
		m.preview, cmd = m.preview.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchPreview(assetType models.AssetType) tea.Cmd {
	req := m.req
	return func() tea.Msg {
		assets, err := m.engine.Preview(m.ctx, assetType, &req)
		return previewLoadedMsg{assetType: assetType, assets: assets, err: err}
	}
}

// startRun launches the engine in the background. The progress channel is closed before the result is
// delivered, so [Model.waitForProgress] sees every buffered update first.
func (m *Model) startRun() tea.Cmd {
	h := &runHandle{
		progress: make(chan tasks.ProgressUpdate, 50),
		done:     make(chan runCompleteMsg, 1),
	}
	m.run = h

	req := m.req
	assetType := m.selected
	go func() {
		result, err := m.engine.Run(m.ctx, assetType, &req, h.progress)
		close(h.progress)
		h.done <- runCompleteMsg{result: result, err: err}
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	h := m.run
	return func() tea.Msg {
		if h == nil {
			return runCompleteMsg{}
		}
		update, ok := <-h.progress
		if !ok {
			return <-h.done
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderAssetList() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.quit})
	view := m.assetList.View()
	if m.err != nil {
		view = fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Error: %v", m.err)), view)
	}
	return fmt.Sprintf("%s\n\n%s", view, helpView)
}

func (m *Model) renderPreview() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.migrate, m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.preview.View(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Migrate %s to Marketing Cloud?", m.selected))
	info := fmt.Sprintf("\nItems: %d\n", len(m.preview.Items()))
	if m.req.FolderID != 0 {
		info += fmt.Sprintf("Folder: %d\n", m.req.FolderID)
	}
	if m.selected == models.AssetContacts && m.req.IncludeLists {
		info += "Lists: included\n"
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderRun() string {
	title := styles.title.Render(fmt.Sprintf("Migrating %s", m.selected))

	var phase string
	switch m.progress.Phase {
	case tasks.ResolvingCredentials:
		phase = "Resolving credentials..."
	case tasks.ReadingSource:
		phase = "Reading from HubSpot..."
	case tasks.Converting, tasks.Writing:
		phase = fmt.Sprintf("Writing to Marketing Cloud (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.Aggregating:
		phase = "Aggregating results..."
	default:
		phase = "Starting..."
	}

	return fmt.Sprintf("%s\n\n%s %s\n%s", title, m.spinner.View(), phase, styles.help.Render(m.progress.Message))
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.again, m.keys.quit})
	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Migration failed: %v", m.err)), helpView)
	}
	return fmt.Sprintf("%s\n%s", RenderLedger(m.result), helpView)
}
