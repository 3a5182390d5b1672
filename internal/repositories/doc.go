// Package repositories implements the token store, the only persisted state of the service.
//
// A stored token is a JSON blob keyed by (user_id, platform): the HubSpot OAuth token, or the Marketing Cloud
// client credentials plus the last issued access token. Writes are upserts, so the last writer wins.
//
// Implementations:
//   - [SQLiteTokenStore] : local database, tokens table created by the embedded migrations
//   - [SupabaseTokenStore] : hosted PostgREST table, merge-duplicates upserts
//
// [NewTokenStore] picks the hosted store when its URL and anon key are configured.
package repositories
