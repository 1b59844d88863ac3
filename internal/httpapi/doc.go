// Package httpapi exposes a pdfjobs pipeline over HTTP with chi: one JSON
// endpoint per operation and a websocket stream of terminal events.
package httpapi
