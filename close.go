package pagedb

// Close commits pending changes and releases the data file. Closing an
// already-closed database is a no-op.
func (db *DB) Close() error {
	if db == nil {
		return nil
	}
	return db.store.Close()
}
