package services

import (
	"context"
	"fmt"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
)

const journeysPath = "/interaction/v1/interactions"

// JourneyActivity is one step of a journey definition.
type JourneyActivity struct {
	Key                    string         `json:"key"`
	Name                   string         `json:"name"`
	Type                   string         `json:"type"`
	ConfigurationArguments map[string]any `json:"configurationArguments,omitempty"`
	Metadata               map[string]any `json:"metaData,omitempty"`
	Outcomes               []any          `json:"outcomes"`
}

// WaitActivity waits amount units (minutes, hours, days or weeks).
func WaitActivity(key string, amount int, unit string) JourneyActivity {
	return JourneyActivity{
		Key:  key,
		Name: fmt.Sprintf("Wait %d %s", amount, unit),
		Type: "WAIT",
		ConfigurationArguments: map[string]any{
			"waitDuration": amount,
			"waitUnit":     unit,
		},
		Outcomes: []any{},
	}
}

// EmailActivity sends the email asset with the given id.
func EmailActivity(key, name string, emailID int64) JourneyActivity {
	return JourneyActivity{
		Key:  key,
		Name: name,
		Type: "EMAILV2",
		ConfigurationArguments: map[string]any{
			"triggeredSend": map[string]any{
				"emailId":               emailID,
				"autoAddSubscribers":    true,
				"autoUpdateSubscribers": true,
			},
		},
		Metadata: map[string]any{"category": "message"},
		Outcomes: []any{},
	}
}

// JourneyInput describes a journey to create.
type JourneyInput struct {
	Name        string
	Description string
	Activities  []JourneyActivity
}

// CreateJourney creates a journey with its activities, falling back to an empty draft
// when the full definition is rejected.
func (s *SFMCService) CreateJourney(ctx context.Context, in JourneyInput) (*models.DestinationAsset, error) {
	key := shared.CustomerKey(in.Name, s.now())
	definition := func(activities []JourneyActivity) map[string]any {
		if activities == nil {
			activities = []JourneyActivity{}
		}
		return map[string]any{
			"key":                key,
			"name":               in.Name,
			"description":        in.Description,
			"workflowApiVersion": 1.0,
			"triggers":           []any{},
			"goals":              []any{},
			"activities":         activities,
		}
	}

	post := func(ctx context.Context, body map[string]any) (*models.DestinationAsset, error) {
		resp, err := s.rest.Expect(s.rest.PostJSON(ctx, journeysPath, body))
		if err != nil {
			return nil, err
		}
		obj := resp.Object()
		journey := s.asset(models.KindJourney, in.Name, key, obj)
		journey.ExternalRef = anyString(obj["id"])
		return journey, nil
	}

	return s.writeChain(ctx, "journey", in.Name, 0,
		shared.Strategy[*models.DestinationAsset]{Name: "full", Run: func(ctx context.Context) (*models.DestinationAsset, error) {
			return post(ctx, definition(in.Activities))
		}},
		shared.Strategy[*models.DestinationAsset]{Name: "draft", Run: func(ctx context.Context) (*models.DestinationAsset, error) {
			return post(ctx, definition(nil))
		}},
	)
}
