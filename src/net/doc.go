// Package net implements the transports used to push federation messages to
// other nodes.
//
// A federation message is a JSON document POSTed to a route under the base URL
// of the target user (http://[node]/[username]/[route]). The routes are
// grouped in two tiers:
//
// - public/: called by the counterpart of a friend-request exchange (send,
// accept and deny)
//
// - friend/: called by an established friend (unfriend, invites)
//
// There are two implementations of the Transport interface:
//
// - HTTP: the production transport. Every push is bounded by a timeout so
// that an unreachable peer cannot stall the caller.
//
// - Inmem: in-memory transport used only for testing. Nodes are connected to
// each other by address, and can be disconnected to simulate network failures.
//
// Both transports report failures with the DeliveryFailed error kind. A
// failure is permanent (cf. IsPermanent) when the peer answered and refused
// the message; retrying such a message is pointless.
package net
