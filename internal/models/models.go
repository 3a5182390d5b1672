// package models defines the data model for the HubSpot → Marketing Cloud migration service
package models

import (
	"encoding/json"
	"time"
)

// Platform identifies one side of a migration.
type Platform string

const (
	PlatformHubSpot Platform = "hubspot"
	PlatformSFMC    Platform = "sfmc"
)

// Credential is a resolved, usable set of credentials for one platform.
//
// Credentials live for a single request and are never cached in-process.
type Credential struct {
	Platform     Platform  `json:"platform"`
	ClientID     string    `json:"clientId,omitempty"`
	ClientSecret string    `json:"-"`
	Subdomain    string    `json:"subdomain,omitempty"` // SFMC tenant subdomain, or the OAuth redirect URI for HubSpot
	AccountID    string    `json:"accountId,omitempty"`
	AccessToken  string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
	RestBaseURL  string    `json:"restBaseUrl,omitempty"`
	SoapBaseURL  string    `json:"soapBaseUrl,omitempty"`
}

// Expired reports whether the credential is past its declared TTL.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// SFMCCredentials are the client-credentials values a user supplies for Marketing Cloud.
type SFMCCredentials struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Subdomain    string `json:"subdomain"`
	AccountID    string `json:"accountId,omitempty"`
}

// Complete reports whether id, secret and subdomain are all present.
func (c *SFMCCredentials) Complete() bool {
	return c != nil && c.ClientID != "" && c.ClientSecret != "" && c.Subdomain != ""
}

// StoredToken is one row of the token store, keyed by (UserID, Platform).
type StoredToken struct {
	UserID    string          `json:"user_id"`
	Platform  Platform        `json:"platform"`
	Token     json.RawMessage `json:"token"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HubSpotTokenBlob is the JSON stored for the HubSpot platform.
type HubSpotTokenBlob struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// SFMCTokenBlob is the JSON stored for the SFMC platform: client credentials plus the last issued token.
type SFMCTokenBlob struct {
	SFMCCredentials
	AccessToken string    `json:"access_token,omitempty"`
	Expiry      time.Time `json:"expiry,omitempty"`
}

// AssetType names a migratable source collection.
type AssetType string

const (
	AssetContacts  AssetType = "contacts"
	AssetForms     AssetType = "forms"
	AssetTemplates AssetType = "templates"
	AssetEmails    AssetType = "emails"
	AssetWorkflows AssetType = "workflows"
	AssetLists     AssetType = "lists"
)

// MigratableTypes lists the asset types exposed under /api/migrate.
var MigratableTypes = []AssetType{AssetContacts, AssetEmails, AssetForms, AssetTemplates, AssetWorkflows}

// ParseAssetType validates s against [MigratableTypes].
func ParseAssetType(s string) (AssetType, bool) {
	for _, t := range MigratableTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// SourceAsset is an opaque record read from HubSpot. Properties holds whatever bag the answering endpoint returned.
type SourceAsset struct {
	Type       AssetType      `json:"type"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
	Endpoint   string         `json:"endpoint,omitempty"`
}

// DestinationKind names an entity created in Marketing Cloud.
type DestinationKind string

const (
	KindDataExtension DestinationKind = "dataExtension"
	KindFolder        DestinationKind = "folder"
	KindContentBlock  DestinationKind = "contentBlock"
	KindEmail         DestinationKind = "email"
	KindTemplate      DestinationKind = "template"
	KindCloudPage     DestinationKind = "cloudPage"
	KindJourney       DestinationKind = "journey"
)

// DestinationAsset is an entity created at the destination.
//
// Synthetic is set when no real id could be read from the response and a time-based one was substituted.
type DestinationAsset struct {
	Kind        DestinationKind `json:"kind"`
	ID          int64           `json:"id"`
	Key         string          `json:"key,omitempty"`
	Name        string          `json:"name"`
	Synthetic   bool            `json:"synthetic,omitempty"`
	Via         string          `json:"via,omitempty"` // which payload shape or API version succeeded
	FolderID    int64           `json:"folderId,omitempty"`
	ExternalRef string          `json:"externalRef,omitempty"`
}

// Folder is a destination folder (content category or data folder).
type Folder struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID int64  `json:"parentId"`
	Type     string `json:"type,omitempty"`
}

// Status of a single migrated item.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// MigrationResult is the ledger entry for one source item.
type MigrationResult struct {
	SourceID       string   `json:"sourceId"`
	SourceName     string   `json:"sourceName"`
	DestinationID  int64    `json:"destinationId,omitempty"`
	DestinationKey string   `json:"destinationKey,omitempty"`
	Status         Status   `json:"status"`
	Error          string   `json:"error,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// ListResult records the folder created for one contact list.
type ListResult struct {
	ListID   string `json:"listId"`
	Name     string `json:"name"`
	FolderID int64  `json:"folderId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RunResult is the aggregate answer of one orchestrator run.
type RunResult struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	AssetType     AssetType         `json:"assetType"`
	Migrated      []MigrationResult `json:"migrated"`
	Errors        []MigrationResult `json:"errors,omitempty"`
	Attempted     int               `json:"attempted"`
	MigratedCount int               `json:"migratedCount"`
	FailedCount   int               `json:"failedCount"`
	DataExtension *DestinationAsset `json:"dataExtension,omitempty"`
	RowsInserted  int               `json:"rowsInserted,omitempty"`
	Lists         []ListResult      `json:"lists,omitempty"`
	Items         []MigrationResult `json:"-"` // every entry in source order
	StartedAt     time.Time         `json:"startedAt"`
	CompletedAt   time.Time         `json:"completedAt"`
}

// Record appends r to the ledger and keeps the counters in sync.
func (r *RunResult) Record(res MigrationResult) {
	r.Attempted++
	r.Items = append(r.Items, res)
	if res.Status == StatusSuccess {
		r.MigratedCount++
		r.Migrated = append(r.Migrated, res)
		return
	}
	r.FailedCount++
	r.Errors = append(r.Errors, res)
}

// CustomTemplate is a user-supplied template migrated alongside the fetched ones.
type CustomTemplate struct {
	Name string `json:"name"`
	HTML string `json:"html"`
}

// MigrationRequest is the body of POST /api/migrate/{type}.
type MigrationRequest struct {
	UserID          string           `json:"userId"`
	HubSpotToken    string           `json:"hubspotToken,omitempty"`
	SFMCCredentials *SFMCCredentials `json:"sfmcCredentials,omitempty"`
	Limit           int              `json:"limit,omitempty"`
	FolderID        int64            `json:"folderId,omitempty"`
	IncludeLists    bool             `json:"includeLists,omitempty"`
	CustomTemplates []CustomTemplate `json:"customTemplates,omitempty"`
}
