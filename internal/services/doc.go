// Package services sits between the HTTP handlers and the wizard engine.
//
// WizardService owns the live wizard sessions, one per operation being
// edited, and fans their snapshots and notifications out to websocket
// clients. HealthService reports on the store, the websocket hub and the
// session table.
package services
