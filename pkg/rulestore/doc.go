// Package rulestore keeps named bbcode rule sets in a SQL database.
//
// A rule set is an ordered list of rules (pattern and template) plus a name,
// a description, and a revision that grows every time the rules change. The
// name "default" is reserved: it always resolves to the built-in tag set of
// the bbcode package and cannot be created, modified, or deleted.
//
// The schema is plain SQLite. The caller opens the database with the driver of
// their choice (mattn/go-sqlite3 or modernc.org/sqlite), calls SetupSchema
// once, and then creates a Store:
//
//	if err := rulestore.SetupSchema(db); err != nil { ... }
//	store, err := rulestore.NewStore(db, logger)
//	if err != nil { ... }
//	defer store.Close()
//
//	table, info, err := store.Table(ctx, "forum")
//	html, err := bbcode.NewTransformer(table).TransformSkippingVerbatim(post)
//
// Every write validates the rules by compiling them first, so a set that is
// in the store always compiles.
package rulestore
