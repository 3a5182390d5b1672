package tasks

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/services"
	"github.com/desertthunder/hsmc/internal/shared"
)

// contactsDEName is the base name of the data extension that receives contacts.
const contactsDEName = "HubSpot Contacts"

// migrateContacts creates one data extension from the union of contact properties and inserts every contact as a row.
func migrateContacts(ctx context.Context, r *run) error {
	contacts, err := r.fetch(ctx, models.AssetContacts)
	if err != nil {
		return err
	}
	total := len(contacts)

	seen := map[string]bool{}
	var properties []string
	rows := make([]map[string]any, 0, total)
	for _, c := range contacts {
		row := make(map[string]any, len(c.Properties)+1)
		for k, v := range c.Properties {
			row[k] = v
			if !seen[k] {
				seen[k] = true
				properties = append(properties, k)
			}
		}
		if _, ok := row["id"]; !ok {
			row["id"] = c.ID
		}
		rows = append(rows, row)
	}
	sort.Strings(properties)

	sendProgress(r.progress, convertingUpdate(0, total, contactsDEName))
	fields := services.BuildFields(properties, rows)
	def := services.DataExtensionDef{
		Name:     contactsDEName,
		Key:      shared.CustomerKey(contactsDEName, r.engine.now()),
		FolderID: r.req.FolderID,
		Fields:   fields,
		Sendable: true,
	}

	sendProgress(r.progress, writingUpdate(0, total, def.Name))
	de, err := r.dst.CreateDataExtension(ctx, def)
	if err != nil {
		for i, c := range contacts {
			r.record(i+1, total, failure(c, err, nil))
		}
		r.includeLists(ctx)
		return nil
	}
	r.result.DataExtension = de

	var warnings []string
	pk := def.PrimaryKey()
	if pk == services.SyntheticKeyField {
		warnings = append(warnings, "no email-like property; rows keyed by contact id in "+services.SyntheticKeyField)
	}

	inserted, err := r.dst.InsertRows(ctx, de.Key, fields, pk, rows)
	if err != nil {
		return err
	}
	r.result.RowsInserted = inserted.RowsInserted

	byIndex := make(map[int]services.RowResult, len(inserted.Rows))
	for _, row := range inserted.Rows {
		byIndex[row.Index] = row
	}
	for i, c := range contacts {
		row, ok := byIndex[i]
		switch {
		case !ok:
			r.record(i+1, total, failure(c, fmt.Errorf("%w: row not attempted", shared.ErrWrite), warnings))
		case row.Error != "":
			r.record(i+1, total, failure(c, fmt.Errorf("%w: %s", shared.ErrWrite, row.Error), warnings))
		default:
			res := success(c, de, warnings)
			res.DestinationKey = row.Key
			r.record(i+1, total, res)
		}
	}

	r.includeLists(ctx)
	return nil
}

// includeLists mirrors each contact list as a data folder when the request asks for it.
// Folder creation runs in parallel, bounded by the engine's ListWorkers.
func (r *run) includeLists(ctx context.Context) {
	if !r.req.IncludeLists {
		return
	}

	lists, err := r.src.FetchCollection(ctx, models.AssetLists, r.req.Limit)
	if err != nil {
		r.logger.Warn("could not read contact lists", "err", err)
		r.result.Lists = []models.ListResult{{Error: err.Error()}}
		return
	}

	results := make([]models.ListResult, len(lists))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.engine.opts.ListWorkers)
	for i, list := range lists {
		g.Go(func() error {
			res := models.ListResult{ListID: list.ID, Name: list.Name}
			folder, err := r.dst.GetOrCreateFolder(gctx, services.FolderData, list.Name, 0)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.FolderID = folder.ID
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	r.result.Lists = results
	r.logger.Info("contact lists mirrored", "lists", len(results))
}
