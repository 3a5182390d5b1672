// Package converter rewrites HubSpot rich content into Marketing Cloud email HTML.
//
// # Modules
//
// HubSpot content arrives either as HTML carrying HubL tags or as a JSON map of widgets. Each widget is decoded
// into a [Module], a small tagged union whose [Kind] is chosen by the first matching detection rule
// (path substring, then key presence, then text heuristics). Anything that matches no rule is [KindUnknown]
// and goes through the generic renderer.
//
// # Templating
//
// Personalization tokens ({{ contact.firstname }}) become personalization strings (%%FirstName%%) or
// AttributeValue lookups, HubL conditionals become AMPscript IF blocks, and whatever templating syntax is left
// afterwards is stripped so it never reaches a subscriber's inbox.
//
// # Content blocks
//
// [ExtractModules] cuts reusable fragments out of a document and leaves placeholders behind.
// Once the fragments exist as content blocks, [SubstituteReferences] swaps each placeholder for a
// ContentBlockbyId call, inlining the fragment again when its block could not be created.
//
// # Escaping
//
// Every value copied from a source field into markup passes through [EscapeHTML], [EscapeXML] or
// [EscapeAMPscript]. Renderers never interpolate raw field values.
package converter
