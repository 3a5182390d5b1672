// Package services talks to the two vendor platforms: HubSpot as the source and Salesforce Marketing Cloud as the destination.
//
// # HTTP
//
// [APIService] is the shared raw client. It returns every answer as an [APIResponse]; [APIService.Expect]
// converts non-2xx answers into [shared.APIError]. Bearer auth is attached by an oauth2 transport
// ([BearerClient]) and Marketing Cloud requests additionally wait on a rate limiter.
//
// # Credentials
//
// [Resolver] resolves per-request credentials:
//   - HubSpot: request bearer token, else the stored token. The OAuth code exchange goes through [oauth2.Config].
//   - Marketing Cloud: request client credentials, else stored ones, always exchanged for a fresh token.
//
// # Source reads
//
// [HubSpotService.FetchCollection] walks an ordered endpoint list per asset type (current API first,
// then legacy) with [shared.FirstSuccess]. A non-empty answer wins; exhaustion yields [shared.SourceReadError].
//
// # Destination writes
//
// [SFMCService] creates folders, data extensions, content blocks, emails, templates, cloud pages and
// journeys. Each create runs a short fallback chain of payload shapes and fails with [shared.WriteError].
// Ids are read from the response by [ExtractID]; when nothing usable is present a time-based id is used
// and the asset is marked Synthetic.
package services
