package tasks

import (
	"fmt"

	"github.com/desertthunder/hsmc/internal/models"
)

// ProgressUpdate represents a progress event during a migration run.
//
// Used to send real-time updates to the CLI or HTTP layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Run phase
	Step    int    // Current item number within phase
	Total   int    // Total items in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data (the item's ledger entry when writing)
}

// Phase of a migration run.
type Phase int

const (
	Idle Phase = iota
	ResolvingCredentials
	ReadingSource
	Converting
	Writing
	Aggregating
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case ResolvingCredentials:
		return "resolving-credentials"
	case ReadingSource:
		return "reading-source"
	case Converting:
		return "converting"
	case Writing:
		return "writing"
	case Aggregating:
		return "aggregating"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// Terminal reports whether no further updates follow p.
func (p Phase) Terminal() bool {
	return p == Done || p == Failed
}

func resolvingUpdate(platform models.Platform) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolvingCredentials,
		Message: fmt.Sprintf("Resolving %s credentials...", platform),
	}
}

func readingUpdate(assetType models.AssetType) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ReadingSource,
		Message: fmt.Sprintf("Reading %s from HubSpot...", assetType),
	}
}

func foundUpdate(assetType models.AssetType, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ReadingSource,
		Total:   total,
		Message: fmt.Sprintf("Found %d %s", total, assetType),
	}
}

func convertingUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Converting,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Converting: %s...", step, total, name),
	}
}

func writingUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Writing,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Writing: %s...", step, total, name),
	}
}

func itemUpdate(step, total int, res models.MigrationResult) ProgressUpdate {
	mark := "✓"
	detail := fmt.Sprintf("id %d", res.DestinationID)
	if res.Status != models.StatusSuccess {
		mark, detail = "✗", res.Error
	}
	return ProgressUpdate{
		Phase:   Writing,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s (%s)", step, total, mark, res.SourceName, detail),
		Data:    res,
	}
}

func aggregatingUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Aggregating,
		Step:    total,
		Total:   total,
		Message: "Aggregating results...",
	}
}

func doneUpdate(result *models.RunResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    result.Attempted,
		Total:   result.Attempted,
		Message: result.Message,
		Data:    result,
	}
}

func failedUpdate(err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Failed,
		Message: err.Error(),
		Data:    err,
	}
}
