package ui

import (
	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/tasks"
)

// previewLoadedMsg carries the source collection for the selected asset type.
type previewLoadedMsg struct {
	assetType models.AssetType
	assets    []models.SourceAsset
	err       error
}

// progressUpdateMsg forwards one engine update.
type progressUpdateMsg tasks.ProgressUpdate

// runCompleteMsg is sent once the engine returns.
type runCompleteMsg struct {
	result *models.RunResult
	err    error
}

// runHandle connects a running migration to the event loop.
type runHandle struct {
	progress chan tasks.ProgressUpdate
	done     chan runCompleteMsg
}
