package models

// APIServer is the caller-facing HTTP surface.
type APIServer interface {
	// Start blocks serving the API until Shutdown is called.
	Start()
	// Shutdown gracefully stops the server.
	Shutdown() error
}
