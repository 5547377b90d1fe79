// Package schema defines the entities stored in the local card cache and the
// raw record shapes served by the ArkhamDB public API.
//
// # Overview
//
// Two families of types live here:
//
//   - Feed records (CardJSON, TabooJSON, TabooCardJSON, FaqJSON, RuleJSON, Pack)
//     mirror the JSON returned by arkhamdb.com and the bundled rules files.
//     They are validated at the boundary and never written to the database.
//   - Cache entities (Card, EncounterSet, TabooSet, Rule, FaqEntry) are the
//     normalized rows owned by the cache database. They carry `db` tags for
//     sqlx and `json` tags for export.
//
// # Cache Tokens
//
// CardCache and TabooCache pair a row count with the Last-Modified header of
// the response that produced it. The calling layer persists them and hands
// them back on the next sync:
//
//	{ "cardCount": 4215, "lastModified": "Tue, 06 Oct 2026 10:00:00 GMT" }
//
// If the live row count no longer matches the token, the conditional request
// is skipped and a full fetch is forced.
//
// # Composite IDs
//
// Base cards are keyed by their code. Taboo variants are keyed by
// "<taboo_set_id>-<code>". When a sync batch still produces colliding ids the
// sync pass suffixes "_<n>" to every member of the collision group.
//
// # Taboo Card Lists
//
// The taboo feed embeds each list's card changes as a JSON-encoded string:
//
//	{ "id": 5, "date_start": "2023-08-30", "cards": "[{\"code\":\"60123\",\"text\":\"...\"}]" }
//
// TabooJSON.ParseCards performs the second decoding pass and reports a
// NestedJSONError when the embedded string is not valid JSON.
package schema
