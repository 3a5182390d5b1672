package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/hsmc/internal/models"
)

var (
	_ list.Item = assetTypeItem{}
	_ list.Item = sourceItem{}
)

var assetDescriptions = map[models.AssetType]string{
	models.AssetContacts:  "Sendable data extension, lists become data folders",
	models.AssetEmails:    "Content Builder emails with shared content blocks",
	models.AssetForms:     "Submission data extension plus a CloudPage",
	models.AssetTemplates: "Content Builder templates",
	models.AssetWorkflows: "Draft journeys with wait and email activities",
}

// assetTypeItem wraps [models.AssetType] to implement [list.Item].
type assetTypeItem struct {
	assetType models.AssetType
}

func (i assetTypeItem) FilterValue() string { return string(i.assetType) }
func (i assetTypeItem) Title() string       { return string(i.assetType) }
func (i assetTypeItem) Description() string { return assetDescriptions[i.assetType] }

// sourceItem wraps [models.SourceAsset] to implement [list.Item].
type sourceItem struct {
	asset models.SourceAsset
}

func (i sourceItem) FilterValue() string { return i.asset.Name }
func (i sourceItem) Title() string {
	if i.asset.Name == "" {
		return i.asset.ID
	}
	return i.asset.Name
}
func (i sourceItem) Description() string {
	desc := fmt.Sprintf("id %s", i.asset.ID)
	if n := len(i.asset.Properties); n > 0 {
		keys := make([]string, 0, n)
		for k := range i.asset.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 4 {
			keys = append(keys[:4], "…")
		}
		desc = fmt.Sprintf("%s • %s", desc, strings.Join(keys, ", "))
	}
	return desc
}

func assetTypeItems(types []models.AssetType) []list.Item {
	items := make([]list.Item, len(types))
	for i, t := range types {
		items[i] = assetTypeItem{assetType: t}
	}
	return items
}

func sourceItems(assets []models.SourceAsset) []list.Item {
	items := make([]list.Item, len(assets))
	for i, a := range assets {
		items[i] = sourceItem{asset: a}
	}
	return items
}
