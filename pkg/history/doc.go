// Package history keeps a durable log of CORS policy changes.
//
// Every ChangeEvent published by config.Store (successful publishes,
// rejected updates and resets) becomes one Record in a SQLite database:
//
//	store, err := history.NewSQLiteStore(history.SQLiteConfig{DBPath: "data/history.db"})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	policies.OnChange(store.Listener())
//
// Records are listed newest first by the admin API. Recording happens inside
// the policy store's write lock, so the backend keeps a single connection
// and writes are short single-row inserts.
package history
