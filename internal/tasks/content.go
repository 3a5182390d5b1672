package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/hsmc/internal/converter"
	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/services"
	"github.com/desertthunder/hsmc/internal/shared"
)

// blockFolderName is the asset folder that receives extracted content blocks when subfolders are enabled.
const blockFolderName = "HubSpot Content Blocks"

// rendered is converted source content ready for writing.
type rendered struct {
	HTML     string
	Detail   map[string]any
	Warnings []string
}

// render fetches the item's detail and converts it. Neither failure is fatal: the
// placeholder body stands in and a warning is recorded.
func (r *run) render(ctx context.Context, asset models.SourceAsset) rendered {
	out := rendered{Detail: asset.Properties}

	detail, err := r.src.FetchDetail(ctx, asset)
	if err != nil {
		out.HTML = converter.PlaceholderHTML(asset.Name)
		out.Warnings = append(out.Warnings, "detail fetch failed, placeholder body used: "+err.Error())
		return out
	}
	out.Detail = detail

	html, err := converter.Convert(detail, nil)
	if err != nil {
		// List payloads sometimes carry the body the detail endpoint left out.
		if html, err = converter.Convert(asset.Properties, nil); err != nil {
			out.HTML = converter.PlaceholderHTML(asset.Name)
			out.Warnings = append(out.Warnings, "nothing to convert, placeholder body used")
			return out
		}
	}
	out.HTML = html
	return out
}

// blockFolder returns the folder for content blocks, creating the subfolder on first use.
func (r *run) blockFolder(ctx context.Context) int64 {
	if !r.engine.opts.ContentBlockSubfolders {
		return r.req.FolderID
	}
	if r.blocksFolder != nil {
		return *r.blocksFolder
	}

	id := r.req.FolderID
	folder, err := r.dst.GetOrCreateFolder(ctx, services.FolderAsset, blockFolderName, r.req.FolderID)
	if err != nil {
		r.logger.Warn("content block subfolder unavailable; using target folder", "err", err)
	} else {
		id = folder.ID
	}
	r.blocksFolder = &id
	return id
}

// storeBlocks extracts reusable fragments from html, stores each as a content block and
// returns html with references to the stored blocks. Fragments that fail to store stay inline.
func (r *run) storeBlocks(ctx context.Context, name, html string) (string, []string) {
	extraction := converter.ExtractModules(html)
	if len(extraction.Modules) == 0 {
		return html, nil
	}

	var warnings []string
	folderID := r.blockFolder(ctx)
	refs := make(map[string]int64, len(extraction.Modules))
	for _, m := range extraction.Modules {
		block, err := r.dst.CreateContentBlock(ctx, fmt.Sprintf("%s - %s", name, m.ID), m.HTML, folderID)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("content block %s kept inline: %v", m.ID, err))
			continue
		}
		refs[m.ID] = block.ID
	}
	return converter.SubstituteReferences(extraction.HTML, refs, extraction.Modules), warnings
}

// migrateContent runs the shared template/email pipeline over every item. write creates the
// final asset from the item, its rendered body and its detail object.
func (r *run) migrateContent(ctx context.Context, items []models.SourceAsset, write func(ctx context.Context, asset models.SourceAsset, html string, detail map[string]any) (*models.DestinationAsset, error)) {
	total := len(items)
	for i, asset := range items {
		if ctx.Err() != nil {
			r.record(i+1, total, failure(asset, ctx.Err(), nil))
			continue
		}

		sendProgress(r.progress, convertingUpdate(i+1, total, asset.Name))
		body := r.render(ctx, asset)
		html, warnings := r.storeBlocks(ctx, asset.Name, body.HTML)
		warnings = append(body.Warnings, warnings...)

		sendProgress(r.progress, writingUpdate(i+1, total, asset.Name))
		dest, err := write(ctx, asset, html, body.Detail)
		if err != nil {
			r.record(i+1, total, failure(asset, err, warnings))
			continue
		}
		r.record(i+1, total, success(asset, dest, warnings))
	}
}

// migrateTemplates converts fetched templates, then the request's custom templates.
func migrateTemplates(ctx context.Context, r *run) error {
	items, err := r.fetch(ctx, models.AssetTemplates)
	if err != nil {
		var readErr *shared.SourceReadError
		if len(r.req.CustomTemplates) == 0 || !errors.As(err, &readErr) {
			return err
		}
		r.logger.Warn("no templates read from HubSpot; migrating custom templates only", "err", err)
	}

	write := func(ctx context.Context, asset models.SourceAsset, html string, _ map[string]any) (*models.DestinationAsset, error) {
		return r.dst.CreateTemplate(ctx, asset.Name, html, r.req.FolderID)
	}
	r.migrateContent(ctx, items, write)
	r.migrateCustomTemplates(ctx, len(items), write)
	return nil
}

// migrateCustomTemplates writes user-supplied templates after the fetched ones. Their
// HTML is used as given, so no detail fetch happens.
func (r *run) migrateCustomTemplates(ctx context.Context, offset int, write func(context.Context, models.SourceAsset, string, map[string]any) (*models.DestinationAsset, error)) {
	total := offset + len(r.req.CustomTemplates)
	for i, ct := range r.req.CustomTemplates {
		step := offset + i + 1
		asset := models.SourceAsset{Type: models.AssetTemplates, ID: fmt.Sprintf("custom-%d", i+1), Name: ct.Name}
		if asset.Name == "" {
			asset.Name = fmt.Sprintf("Custom Template %d", i+1)
		}

		sendProgress(r.progress, convertingUpdate(step, total, asset.Name))
		html, err := converter.Convert(ct.HTML, nil)
		var warnings []string
		if err != nil {
			html = converter.PlaceholderHTML(asset.Name)
			warnings = append(warnings, "custom template is empty, placeholder body used")
		}
		html, blockWarnings := r.storeBlocks(ctx, asset.Name, html)
		warnings = append(warnings, blockWarnings...)

		sendProgress(r.progress, writingUpdate(step, total, asset.Name))
		dest, err := write(ctx, asset, html, nil)
		if err != nil {
			r.record(step, total, failure(asset, err, warnings))
			continue
		}
		r.record(step, total, success(asset, dest, warnings))
	}
}

// migrateEmails converts marketing emails into HTML email assets.
func migrateEmails(ctx context.Context, r *run) error {
	items, err := r.fetch(ctx, models.AssetEmails)
	if err != nil {
		return err
	}

	r.migrateContent(ctx, items, func(ctx context.Context, asset models.SourceAsset, html string, detail map[string]any) (*models.DestinationAsset, error) {
		return r.dst.CreateEmail(ctx, services.EmailInput{
			Name:      asset.Name,
			Subject:   propString([]string{"subject"}, detail, asset.Properties),
			Preheader: propString([]string{"previewText", "preheader", "preview_key"}, detail, asset.Properties),
			HTML:      html,
			FolderID:  r.req.FolderID,
		})
	})
	return nil
}

// propString returns the first non-empty string value of keys, looking in each bag in turn.
func propString(keys []string, bags ...map[string]any) string {
	for _, m := range bags {
		for _, k := range keys {
			if s, ok := m[k].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
