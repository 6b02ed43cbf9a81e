// Package http implements the JSON API of the dive operations console.
//
// Handlers are thin: they decode and validate the request, call a service
// and render the result. Every failure goes through the shared
// errors.ErrorHandler so clients always receive RFC 7807 problem details.
//
// Routes
//
//	POST   /api/wizard/sessions                           open a wizard
//	GET    /api/wizard/sessions                           list open wizards
//	GET    /api/wizard/sessions/{id}                      current snapshot
//	DELETE /api/wizard/sessions/{id}                      close a wizard
//	POST   /api/wizard/sessions/{id}/navigate             goto, next or previous
//	POST   /api/wizard/sessions/{id}/steps/{step}/complete
//	POST   /api/wizard/sessions/{id}/refresh
//	GET    /api/records                                   list records
//	GET    /api/records/{id}
//	POST   /api/records/{id}/documents/{kind}/sign
//	DELETE /api/records/{id}/documents/{kind}/sign
//	GET    /api/health, /api/health/live, /api/version
//	POST   /api/logs                                      browser console logs
package http
