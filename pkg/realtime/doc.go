// Package realtime pushes messages to pages after their response ended.
//
// Every page gets a channel id in its bootstrap state. The client connects
// to the hub's websocket endpoint with ?channel=<id>; messages pushed before
// the client connects are buffered until it does or the channel expires.
package realtime
