// Package resource provides global resource management for a pagedb
// instance: a managed-memory budget backing page cache admission, a
// background worker pool, and IO pacing for backup and maintenance traffic.
//
// A single Controller is shared by the store, the page cache, and the backup
// path, so one configured limit bounds the whole database rather than each
// subsystem separately. A nil *Controller is valid everywhere and enforces
// nothing, which keeps the zero-configuration path free of checks.
package resource
