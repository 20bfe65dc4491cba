// Package server is the WebSocket and HTTP transport of the livechat server.
//
// It upgrades connections, runs one read pump and one write pump per client,
// enforces origin, frame size and rate limits, and hands every decoded frame to
// a chat.Hub. Configuration, routing, middleware and the http.Server helpers
// live here as well.
package server
