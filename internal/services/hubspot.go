// HubSpot source reader with ordered endpoint fallback
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
)

const hubspotBaseURL = "https://api.hubapi.com"

// contactProperties are requested explicitly from the v3 contacts API, which otherwise returns only a handful.
var contactProperties = []string{
	"email", "firstname", "lastname", "company", "phone", "mobilephone", "jobtitle",
	"city", "state", "country", "zip", "website", "lifecyclestage", "createdate", "lastmodifieddate",
}

// sourceEndpoint is one way of reading a collection.
type sourceEndpoint struct {
	path       string
	limitParam string
	detail     string // format string taking the item id; empty when there is no detail call
	extra      url.Values
}

// sourceEndpoints lists, per asset type, the endpoints to try in order: current API first, then legacy ones.
var sourceEndpoints = map[models.AssetType][]sourceEndpoint{
	models.AssetContacts: {
		{path: "/crm/v3/objects/contacts", limitParam: "limit",
			extra: url.Values{"properties": {strings.Join(contactProperties, ",")}}},
		{path: "/contacts/v1/lists/all/contacts/all", limitParam: "count",
			extra: url.Values{"property": contactProperties}},
	},
	models.AssetForms: {
		{path: "/marketing/v3/forms", limitParam: "limit", detail: "/marketing/v3/forms/%s"},
		{path: "/forms/v2/forms", limitParam: "limit", detail: "/forms/v2/forms/%s"},
	},
	models.AssetTemplates: {
		{path: "/content/api/v2/templates", limitParam: "limit", detail: "/content/api/v2/templates/%s"},
		{path: "/cms/v3/templates", limitParam: "limit", detail: "/cms/v3/templates/%s"},
	},
	models.AssetEmails: {
		{path: "/marketing/v3/emails", limitParam: "limit", detail: "/marketing/v3/emails/%s"},
		{path: "/marketing-emails/v1/emails", limitParam: "limit", detail: "/marketing-emails/v1/emails/%s"},
	},
	models.AssetWorkflows: {
		{path: "/automation/v4/flows", limitParam: "limit", detail: "/automation/v4/flows/%s"},
		{path: "/automation/v3/workflows", limitParam: "limit", detail: "/automation/v3/workflows/%s"},
	},
	models.AssetLists: {
		{path: "/crm/v3/lists", limitParam: "count"},
		{path: "/contacts/v1/lists", limitParam: "count"},
	},
}

// collectionKeys are the fields a collection answer may carry its items under.
var collectionKeys = []string{"results", "objects", "contacts", "lists", "workflows", "flows"}

// HubSpotService reads source assets from HubSpot.
type HubSpotService struct {
	api    *APIService
	logger *log.Logger
}

// NewHubSpotService creates a reader authorized with cred. An empty baseURL means the public API.
func NewHubSpotService(baseURL string, cred *models.Credential, client *http.Client, logger *log.Logger) *HubSpotService {
	if baseURL == "" {
		baseURL = hubspotBaseURL
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &HubSpotService{
		api:    NewAPIService(string(models.PlatformHubSpot), baseURL, BearerClient(client, cred.AccessToken)),
		logger: shared.WithLogger(logger, "service", "hubspot"),
	}
}

// FetchCollection reads up to limit items of assetType, trying each known endpoint until one answers with items.
func (h *HubSpotService) FetchCollection(ctx context.Context, assetType models.AssetType, limit int) ([]models.SourceAsset, error) {
	endpoints, ok := sourceEndpoints[assetType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnsupported, assetType)
	}
	if limit <= 0 {
		limit = 50
	}

	strategies := make([]shared.Strategy[[]models.SourceAsset], 0, len(endpoints))
	for _, ep := range endpoints {
		strategies = append(strategies, shared.Strategy[[]models.SourceAsset]{
			Name: ep.path,
			Run: func(ctx context.Context) ([]models.SourceAsset, error) {
				return h.fetchFrom(ctx, assetType, ep, limit)
			},
		})
	}

	assets, winner, tried, err := shared.FirstSuccess(ctx, strategies...)
	if err != nil {
		h.logger.Error("source read failed", "type", assetType, "tried", tried, "err", err)
		return nil, &shared.SourceReadError{AssetType: string(assetType), Tried: tried, Err: err}
	}
	if len(tried) > 1 {
		h.logger.Warn("fell back to legacy endpoint", "type", assetType, "endpoint", winner, "tried", tried)
	}
	h.logger.Info("source collection read", "type", assetType, "endpoint", winner, "count", len(assets))
	return assets, nil
}

func (h *HubSpotService) fetchFrom(ctx context.Context, assetType models.AssetType, ep sourceEndpoint, limit int) ([]models.SourceAsset, error) {
	var assets []models.SourceAsset
	cursor := ""

	for len(assets) < limit {
		q := url.Values{}
		for k, v := range ep.extra {
			q[k] = v
		}
		q.Set(ep.limitParam, strconv.Itoa(min(limit-len(assets), 100)))
		if cursor != "" {
			q.Set(cursorParam(ep), cursor)
		}

		resp, err := h.api.Expect(h.api.Get(ctx, ep.path+"?"+q.Encode()))
		if err != nil {
			return nil, err
		}

		items := collectionItems(resp.JSONData)
		for _, item := range items {
			if len(assets) == limit {
				break
			}
			assets = append(assets, toSourceAsset(assetType, item, ep.path))
		}

		cursor = nextCursor(resp.Object())
		if cursor == "" || len(items) == 0 {
			break
		}
	}

	if len(assets) == 0 {
		return nil, shared.ErrEmptyResult
	}
	return assets, nil
}

func cursorParam(ep sourceEndpoint) string {
	switch {
	case strings.HasPrefix(ep.path, "/contacts/v1/lists/all"):
		return "vidOffset"
	case strings.HasPrefix(ep.path, "/contacts/v1") || strings.HasPrefix(ep.path, "/content/api/v2") ||
		strings.HasPrefix(ep.path, "/forms/v2") || strings.HasPrefix(ep.path, "/marketing-emails/v1"):
		return "offset"
	default:
		return "after"
	}
}

// nextCursor reads the continuation token of v3 (paging.next.after) and legacy (has-more + offset) answers.
func nextCursor(body map[string]any) string {
	if body == nil {
		return ""
	}
	if paging, ok := body["paging"].(map[string]any); ok {
		if next, ok := paging["next"].(map[string]any); ok {
			return anyString(next["after"])
		}
	}
	more, _ := body["has-more"].(bool)
	if !more {
		more, _ = body["hasMore"].(bool)
	}
	if !more {
		return ""
	}
	for _, k := range []string{"vid-offset", "offset"} {
		if v := anyString(body[k]); v != "" {
			return v
		}
	}
	return ""
}

// collectionItems sniffs the shape of a collection answer.
func collectionItems(data any) []map[string]any {
	var raw []any
	switch v := data.(type) {
	case []any:
		raw = v
	case map[string]any:
		for _, k := range collectionKeys {
			if list, ok := v[k].([]any); ok {
				raw = list
				break
			}
		}
	}

	items := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items
}

// toSourceAsset normalizes one item. v3 properties maps and legacy {prop: {value}} bags are flattened.
func toSourceAsset(assetType models.AssetType, item map[string]any, endpoint string) models.SourceAsset {
	props := item
	if p, ok := item["properties"].(map[string]any); ok && assetType == models.AssetContacts {
		props = make(map[string]any, len(p))
		for k, v := range p {
			if nested, ok := v.(map[string]any); ok {
				props[k] = nested["value"]
				continue
			}
			props[k] = v
		}
	}

	id := firstString(item, "id", "vid", "listId", "guid", "flowId")
	name := firstString(item, "name", "label", "title", "subject")
	if name == "" && assetType == models.AssetContacts {
		name = strings.TrimSpace(anyString(props["firstname"]) + " " + anyString(props["lastname"]))
		if name == "" {
			name = anyString(props["email"])
		}
	}
	if name == "" {
		name = fmt.Sprintf("%s %s", strings.TrimSuffix(string(assetType), "s"), id)
	}

	return models.SourceAsset{Type: assetType, ID: id, Name: name, Properties: props, Endpoint: endpoint}
}

// FetchDetail performs the per-item call that carries full content. Callers treat failure as non-fatal.
func (h *HubSpotService) FetchDetail(ctx context.Context, asset models.SourceAsset) (map[string]any, error) {
	var strategies []shared.Strategy[map[string]any]
	for _, ep := range sourceEndpoints[asset.Type] {
		if ep.detail == "" {
			continue
		}
		path := fmt.Sprintf(ep.detail, url.PathEscape(asset.ID))
		strategies = append(strategies, shared.Strategy[map[string]any]{
			Name: path,
			Run: func(ctx context.Context) (map[string]any, error) {
				resp, err := h.api.Expect(h.api.Get(ctx, path))
				if err != nil {
					return nil, err
				}
				obj := resp.Object()
				if len(obj) == 0 {
					return nil, shared.ErrEmptyResult
				}
				return obj, nil
			},
		})
	}
	if len(strategies) == 0 {
		return nil, fmt.Errorf("%w: no detail endpoint for %s", shared.ErrUnsupported, asset.Type)
	}

	detail, _, tried, err := shared.FirstSuccess(ctx, strategies...)
	if err != nil {
		h.logger.Warn("detail fetch failed", "type", asset.Type, "id", asset.ID, "tried", tried, "err", err)
		return nil, err
	}
	return detail, nil
}

// FetchListMembers is not supported: lists migrate as data folder names only.
func (h *HubSpotService) FetchListMembers(ctx context.Context, listID string) ([]models.SourceAsset, error) {
	return nil, fmt.Errorf("%w: list membership for %s", shared.ErrUnsupported, listID)
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := anyString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func anyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
