// Package docket imports legislative scrape output into a durable store.
// Scraped jurisdictions, organizations, people, memberships and bills are
// matched against what earlier runs stored and merged in place, so that
// re-importing the same scrape changes nothing and stored ids stay stable.
//
// # Pipeline
//
// An import runs in three steps:
//
//  1. Transform: each record may be rewritten or dropped by an optional
//     Risor script at transform/{type}.risor under the scripts directory.
//
//  2. Import: entity types are imported in dependency order (jurisdiction
//     first, bills last). Each importer matches records on their natural key
//     and reports every record as created, updated, unchanged or failed.
//
//  3. Record: the totals of the run are written to the import_runs table.
//
// References between records use scrape-local ids or pseudo ids such as
// ~{"name": "Adam Smith"}. Local ids resolve to the ids assigned earlier in
// the same run; pseudo ids are matched against the store.
//
// # Usage
//
//	e, err := docket.New("docket.db", docket.WithScriptsDir("scripts"))
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	report, err := e.ImportDir(ctx, "ocd-jurisdiction/country:us/state:ex/government", "_data/ex")
//
//	bill, err := e.Query().Bill(ctx, jurisdictionID, "1900", "HB 1")
//
// A postgres:// DSN selects PostgreSQL instead of SQLite.
package docket
