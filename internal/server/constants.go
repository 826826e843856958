// Package server provides the HTTP routes and the telephony WebSocket endpoint
package server

// Body of GET /, the liveness text telephony webhooks are pointed at.
const LivenessText = "voice bridge running"
