// Package quarry couples a fluent, dialect-aware SQL statement builder
// to a caching, streaming execution engine.
//
// Statements are assembled by chaining builder calls, executed against
// a relational backend through the dialect.Driver collaborator, and
// returned as a Result envelope that either streams rows lazily from
// the cursor or holds them materialized. When caching is armed, results
// are serialized and served from the cache collaborator on subsequent
// identical statements without touching the backend.
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine := quarry.New(drv,
//	    quarry.WithCache(memcache.New()),
//	    quarry.WithLogger(quarry.NewSlogLogger(nil)),
//	)
//
//	engine.Builder().
//	    Select("orders", "id", "amount").
//	    Where("status", sql.OpEQ, "open").
//	    Limit(20)
//	res, err := engine.Cached(5 * time.Minute).Execute(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer res.Close()
//	for {
//	    row, err := res.Next()
//	    if err != nil || row == nil {
//	        break
//	    }
//	    fmt.Println(row["id"], row["amount"])
//	}
//
// Two error kinds surface to callers: builder-misuse errors (detected
// before any backend round trip, matched with IsMisuse) and backend
// execution errors (matched with IsExec). Cache faults are absorbed:
// they are logged and degrade to a cache miss.
package quarry
