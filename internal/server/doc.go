// Package server provides HTTP routing, middleware, and the JSON API for the migration web service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [Logging] and [Recover] are installed by [New].
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering. Wrong methods and
// unknown paths answer with the JSON error envelope {"success": false, "error": "..."}.
//
// # Routes
//
//	GET  /                             dashboard (internal/web)
//	GET  /healthz                      liveness
//	GET  /api/auth/hubspot             OAuth authorize redirect / code callback
//	POST /api/auth/sfmc                verify and store Marketing Cloud client credentials
//	POST /api/migrate/{type}           run one migration (contacts, emails, forms, templates, workflows)
//	POST /api/sfmc/folders             list data folders
//	POST /api/sfmc/email-folders       list content (email) folders
//	POST /api/sfmc/test-content-block  write a throwaway content block
//
// Run-fatal errors map to status codes by sentinel: credential and input errors are 400, source reads
// are 400 when HubSpot answered 4xx and 500 otherwise. Rejected request-supplied Marketing Cloud
// credentials always produce the same 400 message.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the HubSpot authorization-code flow. It issues single-use state tokens,
// exchanges the code, stores the token under a fresh temporary user id and sends the result through a
// channel for CLI callers.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
