// Package tasks orchestrates HubSpot → Marketing Cloud migrations with real-time progress reporting.
//
// # Core Operation
//
// [Engine.Run] migrates one asset collection per call:
//
//  1. Resolve HubSpot, then Marketing Cloud credentials ([CredentialResolver])
//  2. Read the source collection ([Source]); a read that exhausts every endpoint ends the run
//  3. Convert and write each item in source order ([Destination]); item failures land in the ledger
//  4. Aggregate into a [models.RunResult]
//
// Per asset type:
//   - contacts : one data extension from the union of contact properties, one row per contact;
//     with includeLists, each contact list becomes a data folder (bounded parallel, errgroup)
//   - templates : detail → HTML → content blocks → template; custom templates follow the fetched ones
//   - emails : detail → HTML → content blocks → HTML email
//   - forms : submission data extension → cloud page with the form and its AMPscript capture
//   - workflows : delay and email actions → WAIT and EMAILV2 journey activities
//
// # Progress Reporting
//
// All runs use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data (the item's ledger entry
// while writing, the run result when done). Updates use select with default to prevent blocking.
package tasks
