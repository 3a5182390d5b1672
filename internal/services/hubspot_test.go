package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
	tu "github.com/desertthunder/hsmc/internal/testing"
)

func newHubSpot(t *testing.T) (*HubSpotService, *tu.StubServer) {
	t.Helper()
	stub := tu.NewStubServer(t)
	cred := &models.Credential{Platform: models.PlatformHubSpot, AccessToken: "hs"}
	return NewHubSpotService(stub.URL, cred, nil, nil), stub
}

func TestFetchCollection(t *testing.T) {
	t.Run("Current Endpoint With Pagination", func(t *testing.T) {
		hs, stub := newHubSpot(t)
		stub.Handle(http.MethodGet, "/crm/v3/objects/contacts", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("after") == "" {
				tu.WriteJSON(w, http.StatusOK, map[string]any{
					"results": []any{map[string]any{"id": "1", "properties": map[string]any{"email": "a@x.io", "firstname": "Ann"}}},
					"paging":  map[string]any{"next": map[string]any{"after": "cursor-2"}},
				})
				return
			}
			tu.WriteJSON(w, http.StatusOK, map[string]any{
				"results": []any{map[string]any{"id": "2", "properties": map[string]any{"email": "b@x.io"}}},
			})
		})

		assets, err := hs.FetchCollection(context.Background(), models.AssetContacts, 10)
		require.NoError(t, err)
		require.Len(t, assets, 2)
		assert.Equal(t, "1", assets[0].ID)
		assert.Equal(t, "Ann", assets[0].Name)
		assert.Equal(t, "b@x.io", assets[1].Properties["email"])
		assert.Equal(t, "/crm/v3/objects/contacts", assets[0].Endpoint)
		assert.Equal(t, 0, stub.Count(http.MethodGet, "/contacts/v1"))

		calls := stub.Calls(http.MethodGet, "/crm/v3/objects/contacts")
		require.Len(t, calls, 2)
		assert.Equal(t, "Bearer hs", calls[0].Header.Get("Authorization"))
	})

	t.Run("Falls Back To Legacy Endpoint", func(t *testing.T) {
		hs, stub := newHubSpot(t)
		stub.JSON(http.MethodGet, "/crm/v3/objects/contacts", http.StatusForbidden, map[string]any{"message": "scope"})
		stub.JSON(http.MethodGet, "/contacts/v1/lists/all/contacts/all", http.StatusOK, map[string]any{
			"contacts": []any{map[string]any{
				"vid":        float64(42),
				"properties": map[string]any{"email": map[string]any{"value": "legacy@x.io"}},
			}},
			"has-more": false,
		})

		assets, err := hs.FetchCollection(context.Background(), models.AssetContacts, 10)
		require.NoError(t, err)
		require.Len(t, assets, 1)
		assert.Equal(t, "42", assets[0].ID)
		assert.Equal(t, "legacy@x.io", assets[0].Properties["email"])
		assert.Equal(t, "legacy@x.io", assets[0].Name)
	})

	t.Run("Empty Answer Tries Next", func(t *testing.T) {
		hs, stub := newHubSpot(t)
		stub.JSON(http.MethodGet, "/marketing/v3/forms", http.StatusOK, map[string]any{"results": []any{}})
		stub.JSON(http.MethodGet, "/forms/v2/forms", http.StatusOK, []any{
			map[string]any{"guid": "f-1", "name": "Signup"},
		})

		assets, err := hs.FetchCollection(context.Background(), models.AssetForms, 10)
		require.NoError(t, err)
		require.Len(t, assets, 1)
		assert.Equal(t, "f-1", assets[0].ID)
		assert.Equal(t, "/forms/v2/forms", assets[0].Endpoint)
	})

	t.Run("Exhausted", func(t *testing.T) {
		hs, stub := newHubSpot(t)
		stub.JSON(http.MethodGet, "/", http.StatusInternalServerError, map[string]any{"message": "down"})

		_, err := hs.FetchCollection(context.Background(), models.AssetTemplates, 10)

		var readErr *shared.SourceReadError
		require.ErrorAs(t, err, &readErr)
		assert.Equal(t, []string{"/content/api/v2/templates", "/cms/v3/templates"}, readErr.Tried)
		assert.True(t, errors.Is(err, shared.ErrSourceRead))
		assert.Equal(t, http.StatusInternalServerError, shared.StatusCode(err))
	})

	t.Run("Respects Limit", func(t *testing.T) {
		hs, stub := newHubSpot(t)
		stub.JSON(http.MethodGet, "/marketing/v3/emails", http.StatusOK, map[string]any{
			"results": []any{
				map[string]any{"id": "1", "name": "a"},
				map[string]any{"id": "2", "name": "b"},
				map[string]any{"id": "3", "name": "c"},
			},
			"paging": map[string]any{"next": map[string]any{"after": "x"}},
		})

		assets, err := hs.FetchCollection(context.Background(), models.AssetEmails, 2)
		require.NoError(t, err)
		assert.Len(t, assets, 2)
		assert.Equal(t, "limit=2", stub.Calls(http.MethodGet, "/marketing/v3/emails")[0].Query)
	})

	t.Run("Unsupported Type", func(t *testing.T) {
		hs, _ := newHubSpot(t)
		_, err := hs.FetchCollection(context.Background(), models.AssetType("deals"), 10)
		assert.ErrorIs(t, err, shared.ErrUnsupported)
	})
}

func TestFetchDetail(t *testing.T) {
	hs, stub := newHubSpot(t)
	stub.JSON(http.MethodGet, "/content/api/v2/templates/7", http.StatusNotFound, map[string]any{})
	stub.JSON(http.MethodGet, "/cms/v3/templates/7", http.StatusOK, map[string]any{"source": "<p>hi</p>"})

	detail, err := hs.FetchDetail(context.Background(), models.SourceAsset{Type: models.AssetTemplates, ID: "7"})
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", detail["source"])

	_, err = hs.FetchDetail(context.Background(), models.SourceAsset{Type: models.AssetLists, ID: "1"})
	assert.ErrorIs(t, err, shared.ErrUnsupported)
}

func TestNextCursor(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"v3", map[string]any{"paging": map[string]any{"next": map[string]any{"after": "abc"}}}, "abc"},
		{"legacy vid offset", map[string]any{"has-more": true, "vid-offset": float64(99)}, "99"},
		{"legacy offset", map[string]any{"hasMore": true, "offset": float64(20)}, "20"},
		{"no more", map[string]any{"has-more": false, "vid-offset": float64(99)}, ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextCursor(tt.body))
		})
	}
}

func TestFetchListMembers(t *testing.T) {
	hs, stub := newHubSpot(t)

	_, err := hs.FetchListMembers(context.Background(), "42")
	assert.ErrorIs(t, err, shared.ErrUnsupported)
	assert.Zero(t, stub.Count(http.MethodGet, "/"))
}
