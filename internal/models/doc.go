// Package models defines the transient request/response shapes that flow through a migration run.
//
// None of these types are persisted except [StoredToken], which the token store keeps keyed by (user, platform).
//
//   - [Credential] : resolved per request, never cached
//   - [SourceAsset] : opaque HubSpot record with a property bag whose shape depends on the endpoint that answered
//   - [DestinationAsset] : entity created in Marketing Cloud, identified by numeric id and/or customer key
//   - [MigrationResult] / [RunResult] : per-item ledger and the aggregate answer of one run
package models
