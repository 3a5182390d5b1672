package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/desertthunder/hsmc/internal/converter"
	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
)

const assetsPath = "/asset/v1/content/assets"

// contentBlockLevels is the escalation applied to a content block that the destination rejects.
var contentBlockLevels = []converter.SanitizeLevel{converter.SanitizeNone, converter.SanitizeStrict, converter.SanitizePlain}

// EmailInput describes an email to create.
type EmailInput struct {
	Name      string
	Subject   string
	Preheader string
	HTML      string
	FolderID  int64
}

func assetType(name string, id int) map[string]any {
	return map[string]any{"name": name, "id": id}
}

func withCategory(body map[string]any, folderID int64) map[string]any {
	if folderID > 0 {
		body["category"] = map[string]any{"id": folderID}
	}
	return body
}

// postAsset creates one Content Builder asset and reads its id.
func (s *SFMCService) postAsset(ctx context.Context, kind models.DestinationKind, name, key string, body map[string]any) (*models.DestinationAsset, error) {
	resp, err := s.rest.Expect(s.rest.PostJSON(ctx, assetsPath, body))
	if err != nil {
		return nil, err
	}
	return s.asset(kind, name, key, resp.Object()), nil
}

// writeChain runs strategies in order and wraps exhaustion in a [shared.WriteError].
func (s *SFMCService) writeChain(ctx context.Context, entity, name string, folderID int64, strategies ...shared.Strategy[*models.DestinationAsset]) (*models.DestinationAsset, error) {
	created, winner, tried, err := shared.FirstSuccess(ctx, strategies...)
	if err != nil {
		s.logger.Error("write failed", "entity", entity, "name", name, "tried", tried, "err", err)
		return nil, &shared.WriteError{Entity: entity, Name: name, Attempts: len(tried), Err: err}
	}

	created.Via = winner
	created.FolderID = folderID
	if len(tried) > 1 {
		s.logger.Warn("write used fallback payload", "entity", entity, "name", name, "via", winner)
	}
	s.logger.Info("asset created", "entity", entity, "name", created.Name, "id", created.ID, "via", winner)
	return created, nil
}

// CreateContentBlock creates an HTML content block, resubmitting up to twice with stronger sanitization
// when the destination rejects the content.
func (s *SFMCService) CreateContentBlock(ctx context.Context, name, html string, folderID int64) (*models.DestinationAsset, error) {
	var lastErr error
	for attempt, level := range contentBlockLevels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		blockName := name
		if attempt > 0 && IsCollision(lastErr) {
			blockName = shared.UniqueName(name, s.now())
		}
		key := shared.CustomerKey(blockName, s.now())
		body := withCategory(map[string]any{
			"name":        blockName,
			"customerKey": key,
			"assetType":   assetType("htmlblock", assetTypeHTMLBlock),
			"content":     converter.Sanitize(html, level),
		}, folderID)

		block, err := s.postAsset(ctx, models.KindContentBlock, blockName, key, body)
		if err == nil {
			block.Via = "sanitize:" + level.String()
			block.FolderID = folderID
			if attempt > 0 {
				s.logger.Warn("content block accepted after sanitizing", "name", name, "level", level, "attempt", attempt+1)
			}
			return block, nil
		}

		lastErr = err
		var apiErr *shared.APIError
		if !errors.As(err, &apiErr) {
			return nil, &shared.WriteError{Entity: "content block", Name: name, Attempts: attempt + 1, Err: err}
		}
		s.logger.Debug("content block rejected", "name", name, "level", level, "status", apiErr.StatusCode)
	}
	return nil, &shared.WriteError{Entity: "content block", Name: name, Attempts: len(contentBlockLevels), Err: lastErr}
}

// CreateEmail creates an HTML email: REST htmlemail, then a classic SOAP Email, then a minimal REST body.
func (s *SFMCService) CreateEmail(ctx context.Context, in EmailInput) (*models.DestinationAsset, error) {
	subject := in.Subject
	if subject == "" {
		subject = in.Name
	}
	key := shared.CustomerKey(in.Name, s.now())

	return s.writeChain(ctx, "email", in.Name, in.FolderID,
		shared.Strategy[*models.DestinationAsset]{Name: "rest:htmlemail", Run: func(ctx context.Context) (*models.DestinationAsset, error) {
			return s.postAsset(ctx, models.KindEmail, in.Name, key, withCategory(map[string]any{
				"name":        in.Name,
				"customerKey": key,
				"assetType":   assetType("htmlemail", assetTypeHTMLEmail),
				"views": map[string]any{
					"html":        map[string]any{"content": in.HTML},
					"subjectline": map[string]any{"content": subject},
					"preheader":   map[string]any{"content": in.Preheader},
				},
				"data": map[string]any{"email": map[string]any{"options": map[string]any{"characterEncoding": "utf-8"}}},
			}, in.FolderID))
		}},
		shared.Strategy[*models.DestinationAsset]{Name: "soap:email", Run: func(ctx context.Context) (*models.DestinationAsset, error) {
			inner := xmlElem("CustomerKey", key) +
				xmlElem("Name", in.Name) +
				xmlElem("Subject", subject) +
				xmlElem("HTMLBody", in.HTML) +
				"<IsHTMLPaste>true</IsHTMLPaste>"
			if in.FolderID > 0 {
				inner += xmlElem("CategoryID", strconv.FormatInt(in.FolderID, 10))
			}
			res, err := s.soapCreate(ctx, "Email", inner)
			if err != nil {
				return nil, err
			}
			return s.asset(models.KindEmail, in.Name, key, map[string]any{"id": res.NewID, "objectID": res.NewObjectID}), nil
		}},
		shared.Strategy[*models.DestinationAsset]{Name: "rest:minimal", Run: func(ctx context.Context) (*models.DestinationAsset, error) {
			return s.postAsset(ctx, models.KindEmail, in.Name, "", map[string]any{
				"name":      in.Name,
				"assetType": map[string]any{"id": assetTypeHTMLEmail},
				"views":     map[string]any{"html": map[string]any{"content": in.HTML}},
			})
		}},
	)
}

// CreateTemplate creates an email template, falling back to an htmlblock asset carrying the template HTML.
func (s *SFMCService) CreateTemplate(ctx context.Context, name, html string, folderID int64) (*models.DestinationAsset, error) {
	key := shared.CustomerKey(name, s.now())

	return s.writeChain(ctx, "template", name, folderID,
		shared.Strategy[*models.DestinationAsset]{Name: "rest:template", Run: func(ctx context.Context) (*models.DestinationAsset, error) {
			return s.postAsset(ctx, models.KindTemplate, name, key, withCategory(map[string]any{
				"name":        name,
				"customerKey": key,
				"assetType":   assetType("template", assetTypeTemplate),
				"content":     html,
			}, folderID))
		}},
		shared.Strategy[*models.DestinationAsset]{Name: "rest:htmlblock", Run: func(ctx context.Context) (*models.DestinationAsset, error) {
			alt := key + "-b"
			return s.postAsset(ctx, models.KindTemplate, name, alt, withCategory(map[string]any{
				"name":        name,
				"customerKey": alt,
				"assetType":   assetType("htmlblock", assetTypeHTMLBlock),
				"content":     html,
				"description": "Template migrated from HubSpot",
			}, folderID))
		}},
	)
}

// CreateCloudPage creates a landing page, falling back to a minimal body.
func (s *SFMCService) CreateCloudPage(ctx context.Context, name, html string, folderID int64) (*models.DestinationAsset, error) {
	key := shared.CustomerKey(name, s.now())

	return s.writeChain(ctx, "cloud page", name, folderID,
		shared.Strategy[*models.DestinationAsset]{Name: "rest:webpage", Run: func(ctx context.Context) (*models.DestinationAsset, error) {
			return s.postAsset(ctx, models.KindCloudPage, name, key, withCategory(map[string]any{
				"name":        name,
				"customerKey": key,
				"assetType":   assetType("webpage", assetTypeWebPage),
				"content":     html,
				"views":       map[string]any{"html": map[string]any{"content": html}},
			}, folderID))
		}},
		shared.Strategy[*models.DestinationAsset]{Name: "rest:minimal", Run: func(ctx context.Context) (*models.DestinationAsset, error) {
			return s.postAsset(ctx, models.KindCloudPage, name, "", map[string]any{
				"name":      name,
				"assetType": map[string]any{"id": assetTypeWebPage},
				"content":   html,
			})
		}},
	)
}

// TestContentBlock creates a throwaway content block to check write access to folderID.
func (s *SFMCService) TestContentBlock(ctx context.Context, folderID int64) (*models.DestinationAsset, error) {
	name := fmt.Sprintf("hsmc connectivity test %s", s.now().UTC().Format("20060102-150405"))
	return s.CreateContentBlock(ctx, name, "<p>Connectivity test block created by hsmc.</p>", folderID)
}
