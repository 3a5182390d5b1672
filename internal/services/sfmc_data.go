package services

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/desertthunder/hsmc/internal/converter"
	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
)

// Data extension field types.
const (
	FieldText    = "Text"
	FieldNumber  = "Number"
	FieldDecimal = "Decimal"
	FieldDate    = "Date"
	FieldBoolean = "Boolean"
	FieldEmail   = "EmailAddress"
)

// SyntheticKeyField is added when no source property can serve as the primary key.
const SyntheticKeyField = "SubscriberKey"

// DEField is one column of a data extension.
type DEField struct {
	Name         string `json:"name"`
	Source       string `json:"source,omitempty"`
	Type         string `json:"type"`
	MaxLength    int    `json:"maxLength,omitempty"`
	Scale        int    `json:"scale,omitempty"`
	IsPrimaryKey bool   `json:"isPrimaryKey,omitempty"`
	IsRequired   bool   `json:"isRequired,omitempty"`
}

// DataExtensionDef describes a data extension to create.
type DataExtensionDef struct {
	Name     string
	Key      string
	FolderID int64
	Fields   []DEField
	Sendable bool
}

// PrimaryKey returns the name of the primary key column.
func (d DataExtensionDef) PrimaryKey() string {
	for _, f := range d.Fields {
		if f.IsPrimaryKey {
			return f.Name
		}
	}
	return ""
}

var (
	intPattern     = regexp.MustCompile(`^-?\d{1,18}$`)
	decimalPattern = regexp.MustCompile(`^-?\d+\.\d+$`)
	datePattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?)?$`)
)

// isEmailName reports whether name is exactly "email" once normalized.
func isEmailName(name string) bool {
	return strings.EqualFold(converter.ColumnName(name), "email")
}

// inferType classifies one property from its name and the values seen for it.
func inferType(name string, values []string) (string, int) {
	lower := strings.ToLower(name)
	if isEmailName(name) {
		return FieldEmail, 254
	}

	var nonEmpty []string
	longest := 0
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			nonEmpty = append(nonEmpty, v)
			longest = max(longest, len(v))
		}
	}

	all := func(match func(string) bool) bool {
		if len(nonEmpty) == 0 {
			return false
		}
		for _, v := range nonEmpty {
			if !match(v) {
				return false
			}
		}
		return true
	}

	switch {
	case all(func(v string) bool { return v == "true" || v == "false" }):
		return FieldBoolean, 0
	case all(intPattern.MatchString) && !strings.Contains(lower, "phone") && !strings.Contains(lower, "zip"):
		return FieldNumber, 0
	case all(func(v string) bool { return intPattern.MatchString(v) || decimalPattern.MatchString(v) }) && !strings.Contains(lower, "phone"):
		return FieldDecimal, 0
	case all(datePattern.MatchString), len(nonEmpty) == 0 && (strings.HasSuffix(lower, "date") || strings.HasSuffix(lower, "_at")):
		return FieldDate, 0
	case strings.Contains(lower, "email") && (len(nonEmpty) == 0 || all(func(v string) bool { return strings.Contains(v, "@") })):
		return FieldEmail, 254
	}

	if longest > 255 {
		return FieldText, 4000
	}
	return FieldText, 255
}

// BuildFields derives data extension columns from property names and sample rows.
//
// Exactly one field is the primary key: the field named email when there is one, then the
// first other email-typed field, otherwise a synthesized [SyntheticKeyField] placed first.
// A name merely containing "email" is typed as email only when its samples hold addresses.
func BuildFields(properties []string, samples []map[string]any) []DEField {
	fields := make([]DEField, 0, len(properties)+1)
	seen := map[string]bool{}

	for _, prop := range properties {
		col := converter.ColumnName(prop)
		if seen[strings.ToLower(col)] {
			continue
		}
		seen[strings.ToLower(col)] = true

		values := make([]string, 0, len(samples))
		for _, row := range samples {
			values = append(values, anyString(row[prop]))
		}
		typ, length := inferType(prop, values)

		f := DEField{Name: col, Source: prop, Type: typ, MaxLength: length}
		if typ == FieldDecimal {
			f.MaxLength, f.Scale = 18, 2
		}
		fields = append(fields, f)
	}

	pk := -1
	for i := range fields {
		if fields[i].Type != FieldEmail {
			continue
		}
		if isEmailName(fields[i].Name) {
			pk = i
			break
		}
		if pk < 0 {
			pk = i
		}
	}
	if pk >= 0 {
		fields[pk].IsPrimaryKey = true
		fields[pk].IsRequired = true
		return fields
	}

	if seen[strings.ToLower(SyntheticKeyField)] {
		for i := range fields {
			if strings.EqualFold(fields[i].Name, SyntheticKeyField) {
				fields[i].Type, fields[i].MaxLength = FieldText, 254
				fields[i].IsPrimaryKey, fields[i].IsRequired = true, true
				return fields
			}
		}
	}

	key := DEField{Name: SyntheticKeyField, Type: FieldText, MaxLength: 254, IsPrimaryKey: true, IsRequired: true}
	return append([]DEField{key}, fields...)
}

// collisionPattern recognizes a name or key clash in a create response body.
var collisionPattern = regexp.MustCompile(`(?i)already exists|already in use|duplicate|must be unique|is not unique`)

// IsCollision reports whether err is a destination name/key collision.
func IsCollision(err error) bool {
	var apiErr *shared.APIError
	return errors.As(err, &apiErr) && collisionPattern.MatchString(apiErr.Body)
}

func deFieldsXML(fields []DEField) string {
	var b strings.Builder
	b.WriteString("<Fields>")
	for _, f := range fields {
		b.WriteString("<Field>")
		b.WriteString(xmlElem("CustomerKey", f.Name))
		b.WriteString(xmlElem("Name", f.Name))
		b.WriteString(xmlElem("FieldType", f.Type))
		if f.MaxLength > 0 && (f.Type == FieldText || f.Type == FieldEmail || f.Type == FieldDecimal) {
			b.WriteString(xmlElem("MaxLength", strconv.Itoa(f.MaxLength)))
		}
		if f.Scale > 0 {
			b.WriteString(xmlElem("Scale", strconv.Itoa(f.Scale)))
		}
		b.WriteString(xmlElem("IsPrimaryKey", strconv.FormatBool(f.IsPrimaryKey)))
		b.WriteString(xmlElem("IsRequired", strconv.FormatBool(f.IsRequired)))
		b.WriteString("</Field>")
	}
	b.WriteString("</Fields>")
	return b.String()
}

func (s *SFMCService) createDataExtensionOnce(ctx context.Context, def DataExtensionDef) (*models.DestinationAsset, error) {
	var b strings.Builder
	b.WriteString(xmlElem("CustomerKey", def.Key))
	b.WriteString(xmlElem("Name", def.Name))
	b.WriteString(xmlElem("Description", "Migrated from HubSpot"))
	if def.FolderID > 0 {
		b.WriteString(xmlElem("CategoryID", strconv.FormatInt(def.FolderID, 10)))
	}
	if def.Sendable {
		pk := def.PrimaryKey()
		b.WriteString("<IsSendable>true</IsSendable><SendableDataExtensionField>")
		b.WriteString(xmlElem("CustomerKey", pk))
		b.WriteString(xmlElem("Name", pk))
		b.WriteString("</SendableDataExtensionField><SendableSubscriberField><Name>Subscriber Key</Name></SendableSubscriberField>")
	}
	b.WriteString(deFieldsXML(def.Fields))

	res, err := s.soapCreate(ctx, "DataExtension", b.String())
	if err != nil {
		return nil, err
	}

	body := map[string]any{"id": res.NewID, "objectID": res.NewObjectID}
	return s.asset(models.KindDataExtension, def.Name, def.Key, body), nil
}

// CreateDataExtension creates def, retrying once under a uniquified name and key when the first attempt collides.
func (s *SFMCService) CreateDataExtension(ctx context.Context, def DataExtensionDef) (*models.DestinationAsset, error) {
	if def.Key == "" {
		def.Key = shared.CustomerKey(def.Name, s.now())
	}

	de, err := s.createDataExtensionOnce(ctx, def)
	if err == nil {
		s.logger.Info("data extension created", "name", def.Name, "key", de.Key, "fields", len(def.Fields))
		return de, nil
	}
	if !IsCollision(err) {
		return nil, &shared.WriteError{Entity: "data extension", Name: def.Name, Attempts: 1, Err: err}
	}

	retry := def
	retry.Name = shared.UniqueName(def.Name, s.now())
	retry.Key = shared.CustomerKey(retry.Name, s.now())
	s.logger.Warn("data extension name collision; retrying", "name", def.Name, "retry", retry.Name)

	de, err = s.createDataExtensionOnce(ctx, retry)
	if err != nil {
		return nil, &shared.WriteError{Entity: "data extension", Name: def.Name, Attempts: 2, Err: err}
	}
	return de, nil
}

// RowResult is the outcome of inserting one row.
type RowResult struct {
	Index int    `json:"index"`
	Key   string `json:"key"`
	Error string `json:"error,omitempty"`
}

// InsertResult aggregates [SFMCService.InsertRows].
type InsertResult struct {
	RowsInserted int         `json:"rowsInserted"`
	Failed       int         `json:"failed"`
	Rows         []RowResult `json:"rows"`
}

// InsertRows upserts rows one request at a time into the data extension with key deKey.
//
// Each row is keyed by the primaryKey column. A failed row is recorded and the rest continue;
// only a cancelled context stops the loop early.
func (s *SFMCService) InsertRows(ctx context.Context, deKey string, fields []DEField, primaryKey string, rows []map[string]any) (InsertResult, error) {
	var out InsertResult
	path := "/hub/v1/dataevents/key:" + url.PathEscape(deKey) + "/rowset"

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		values := map[string]string{}
		for _, f := range fields {
			src := f.Source
			if src == "" {
				src = f.Name
			}
			if v := anyString(row[src]); v != "" {
				values[f.Name] = formatValue(f, v)
			}
		}

		key := values[primaryKey]
		if key == "" {
			key = anyString(row["id"])
		}
		res := RowResult{Index: i, Key: key}
		if key == "" {
			res.Error = "row has no value for primary key " + primaryKey
			out.Rows = append(out.Rows, res)
			out.Failed++
			continue
		}
		delete(values, primaryKey)

		payload := []map[string]any{{
			"keys":   map[string]string{primaryKey: key},
			"values": values,
		}}
		if _, err := s.rest.Expect(s.rest.PostJSON(ctx, path, payload)); err != nil {
			res.Error = err.Error()
			out.Failed++
			s.logger.Warn("row insert failed", "de", deKey, "row", i, "err", err)
		} else {
			out.RowsInserted++
		}
		out.Rows = append(out.Rows, res)
	}

	s.logger.Info("rows inserted", "de", deKey, "inserted", out.RowsInserted, "failed", out.Failed)
	return out, nil
}

func formatValue(f DEField, v string) string {
	switch f.Type {
	case FieldDate:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC().Format("2006-01-02T15:04:05")
			}
		}
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05")
		}
	case FieldText, FieldEmail:
		if f.MaxLength > 0 && utf8.RuneCountInString(v) > f.MaxLength {
			return string([]rune(v)[:f.MaxLength])
		}
	}
	return v
}
