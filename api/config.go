// Package api provides the HTTP API for feeding agent messages into echoes and
// driving triplet records through their lifecycle.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8082")
	ListenAddr string
}
