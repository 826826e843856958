// Package admin serves the read-only gRPC view of live calls and the
// standard gRPC health service.
package admin

import "time"

// Service identity. There is no .proto; messages are well-known types.
const (
	ServiceName = "voicebridge.v1.Admin"

	listSessionsMethod = "/" + ServiceName + "/ListSessions"
	getSessionMethod   = "/" + ServiceName + "/GetSession"
)

// Connection defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// Clients may not ping more often than this
	MinClientPingInterval = 5 * time.Second

	// Per-call deadline used by Client when the caller sets none
	DefaultCallTimeout = 2 * time.Second
)
