// Package app assembles the dive operations console server.
//
// NewApplication opens the configured record store, starts the websocket
// hub, and builds the wizard and health services and the chi router. The
// router keeps /ws outside the instrumented group because the OTel and
// logging middleware wrap the ResponseWriter, which would break the
// upgrade.
//
// Shutdown order matters: the HTTP server stops accepting requests, open
// wizard sessions are closed and announced to websocket clients, then the
// hub, store and telemetry providers are released.
package app
