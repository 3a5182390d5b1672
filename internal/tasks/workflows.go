package tasks

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/services"
)

// v4 automation action type ids.
const (
	actionTypeDelay = "0-1"
	actionTypeEmail = "0-4"
)

// migrateWorkflows maps each workflow's actions onto journey activities and creates a draft journey.
func migrateWorkflows(ctx context.Context, r *run) error {
	flows, err := r.fetch(ctx, models.AssetWorkflows)
	if err != nil {
		return err
	}

	total := len(flows)
	for i, asset := range flows {
		step := i + 1
		if ctx.Err() != nil {
			r.record(step, total, failure(asset, ctx.Err(), nil))
			continue
		}

		sendProgress(r.progress, convertingUpdate(step, total, asset.Name))
		actions, warnings := r.workflowActions(ctx, asset)
		activities, mapWarnings := journeyActivities(actions)
		warnings = append(warnings, mapWarnings...)

		sendProgress(r.progress, writingUpdate(step, total, asset.Name))
		journey, err := r.dst.CreateJourney(ctx, services.JourneyInput{
			Name:        asset.Name,
			Description: "Migrated from HubSpot workflow " + asset.ID,
			Activities:  activities,
		})
		if err != nil {
			r.record(step, total, failure(asset, err, warnings))
			continue
		}
		if journey.Via == "draft" && len(activities) > 0 {
			warnings = append(warnings, "journey definition rejected; created as an empty draft")
		}
		r.record(step, total, success(asset, journey, warnings))
	}
	return nil
}

// workflowActions returns the raw action list, preferring the detail payload.
func (r *run) workflowActions(ctx context.Context, asset models.SourceAsset) ([]map[string]any, []string) {
	if actions := actionList(asset.Properties); len(actions) > 0 {
		return actions, nil
	}
	detail, err := r.src.FetchDetail(ctx, asset)
	if err != nil {
		return nil, []string{"workflow detail unavailable, journey has no activities: " + err.Error()}
	}
	return actionList(detail), nil
}

func actionList(bag map[string]any) []map[string]any {
	raw, _ := bag["actions"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, a := range raw {
		if m, ok := a.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// journeyActivities maps workflow actions in order. Delays become WAIT and emails become EMAILV2;
// every other action is skipped with a warning.
func journeyActivities(actions []map[string]any) ([]services.JourneyActivity, []string) {
	var activities []services.JourneyActivity
	var warnings []string
	for i, a := range actions {
		key := fmt.Sprintf("%s-%d", actionKind(a), i+1)
		switch actionKind(a) {
		case "delay":
			amount, unit := waitDuration(a)
			activities = append(activities, services.WaitActivity(strings.ToUpper(key), amount, unit))
		case "email":
			id := emailContentID(a)
			name := "Send email " + strconv.FormatInt(id, 10)
			activities = append(activities, services.EmailActivity(strings.ToUpper(key), name, id))
			warnings = append(warnings, fmt.Sprintf("action %d sends HubSpot email %d; relink it to the migrated email", i+1, id))
		default:
			warnings = append(warnings, fmt.Sprintf("action %d (%s) has no journey equivalent and was skipped", i+1, actionLabel(a)))
		}
	}
	return activities, warnings
}

func actionKind(a map[string]any) string {
	switch t := strings.ToUpper(anyText(a["type"])); {
	case t == "DELAY" || anyText(a["actionTypeId"]) == actionTypeDelay:
		return "delay"
	case t == "EMAIL" || anyText(a["actionTypeId"]) == actionTypeEmail:
		return "email"
	default:
		return "other"
	}
}

func actionLabel(a map[string]any) string {
	for _, k := range []string{"type", "actionTypeId"} {
		if s := anyText(a[k]); s != "" {
			return s
		}
	}
	return "unknown"
}

// waitDuration reads v3 delayMillis or v4 fields.delta/time_unit and picks the largest whole unit.
func waitDuration(a map[string]any) (int, string) {
	var d time.Duration
	if ms, err := strconv.ParseInt(anyText(a["delayMillis"]), 10, 64); err == nil {
		d = time.Duration(ms) * time.Millisecond
	} else if fields, ok := a["fields"].(map[string]any); ok {
		delta, _ := strconv.ParseInt(anyText(fields["delta"]), 10, 64)
		unit := map[string]time.Duration{
			"MINUTES": time.Minute,
			"HOURS":   time.Hour,
			"DAYS":    24 * time.Hour,
			"WEEKS":   7 * 24 * time.Hour,
		}[strings.ToUpper(anyText(fields["time_unit"]))]
		if unit == 0 {
			unit = time.Minute
		}
		d = time.Duration(delta) * unit
	}

	day := 24 * time.Hour
	switch {
	case d <= 0:
		return 1, "DAYS"
	case d%(7*day) == 0:
		return int(d / (7 * day)), "WEEKS"
	case d%day == 0:
		return int(d / day), "DAYS"
	case d%time.Hour == 0:
		return int(d / time.Hour), "HOURS"
	default:
		return max(1, int(d/time.Minute)), "MINUTES"
	}
}

func emailContentID(a map[string]any) int64 {
	candidates := []any{a["emailContentId"], a["emailId"]}
	if fields, ok := a["fields"].(map[string]any); ok {
		candidates = append(candidates, fields["content_id"])
	}
	for _, c := range candidates {
		if id, err := strconv.ParseInt(anyText(c), 10, 64); err == nil {
			return id
		}
	}
	return 0
}

// anyText renders JSON scalars as strings; whole floats print without a fraction.
func anyText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
