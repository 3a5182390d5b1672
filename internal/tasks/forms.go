package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/hsmc/internal/converter"
	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/services"
	"github.com/desertthunder/hsmc/internal/shared"
)

// submittedAtField is the capture timestamp column every submission data extension carries.
const submittedAtField = "SubmittedAt"

// migrateForms creates a submission data extension per form, then a cloud page that renders
// the form and writes each POST into that data extension.
func migrateForms(ctx context.Context, r *run) error {
	forms, err := r.fetch(ctx, models.AssetForms)
	if err != nil {
		return err
	}

	total := len(forms)
	for i, asset := range forms {
		step := i + 1
		if ctx.Err() != nil {
			r.record(step, total, failure(asset, ctx.Err(), nil))
			continue
		}

		sendProgress(r.progress, convertingUpdate(step, total, asset.Name))
		def, warnings := r.decodeForm(ctx, asset)

		names := make([]string, 0, len(def.Fields))
		for _, f := range def.Fields {
			names = append(names, f.Name)
		}
		fields := append(services.BuildFields(names, nil), services.DEField{Name: submittedAtField, Type: services.FieldDate})
		deName := asset.Name + " Submissions"
		deDef := services.DataExtensionDef{
			Name:     deName,
			Key:      shared.CustomerKey(deName, r.engine.now()),
			FolderID: r.req.FolderID,
			Fields:   fields,
		}
		if deDef.PrimaryKey() == services.SyntheticKeyField {
			def.GeneratedKey = services.SyntheticKeyField
			warnings = append(warnings, "form has no email field; submissions keyed by "+services.SyntheticKeyField)
		}

		sendProgress(r.progress, writingUpdate(step, total, asset.Name))
		de, err := r.dst.CreateDataExtension(ctx, deDef)
		if err != nil {
			r.record(step, total, failure(asset, err, warnings))
			continue
		}

		page, err := r.dst.CreateCloudPage(ctx, asset.Name, converter.FormHTML(def, de.Name), r.req.FolderID)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("submission data extension %q was created", de.Name))
			r.record(step, total, failure(asset, err, warnings))
			continue
		}
		r.record(step, total, success(asset, page, warnings))
	}
	return nil
}

// decodeForm reads the form's fields from the collection payload, falling back to the detail endpoint when the
// listing omitted them.
func (r *run) decodeForm(ctx context.Context, asset models.SourceAsset) (converter.FormDefinition, []string) {
	def := converter.DecodeForm(asset.ID, asset.Name, asset.Properties)
	if len(def.Fields) > 0 {
		return def, nil
	}

	detail, err := r.src.FetchDetail(ctx, asset)
	if err != nil {
		return def, []string{"form detail unavailable, no fields migrated: " + err.Error()}
	}
	def = converter.DecodeForm(asset.ID, asset.Name, detail)
	if len(def.Fields) == 0 {
		return def, []string{"form has no fields"}
	}
	return def, nil
}
