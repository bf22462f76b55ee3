// Package websocket streams job progress to subscribers over websocket
// connections.
//
// A Streamer polls a resource at a fixed interval and writes a frame each
// time its JSON encoding changes:
//
//	{"type":"update","data":{...},"timestamp":"2026-01-02T15:04:05Z"}
//
// The last frame of a finished resource has type "complete" and is followed
// by a normal close. Pings keep idle connections alive between changes.
package websocket
