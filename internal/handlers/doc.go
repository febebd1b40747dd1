// Package handlers implements the HTTP and WebSocket API: upload and
// conversion endpoints, job lifecycle operations, sticker downloads,
// preview frames, cache administration, and health checks.
package handlers
