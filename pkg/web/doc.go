// Package web serves the accent detection page and its JSON API.
//
// Routes:
//
//	GET  /             the page
//	POST /             form fallback for browsers without JavaScript
//	POST /api/analyze  multipart "file" or "url" (form or JSON body)
//	GET  /api/events   WebSocket stream of pipeline events
//	GET  /api/health   model and transcoder information
//
// API responses use the envelope {status, data} or {status, error{code, message}}.
package web
