// Package file loads the knowledge core configuration from a TOML file.
//
// Load decodes and validates a Config. Cache keeps the last good Config
// for a TTL and serves the ranking settings to the retrieval service.
// Watcher invalidates a Cache when the file changes on disk.
package file
