// Package agent tracks live agent connections.
//
// A Session wraps one accepted connection after its handshake: it carries
// the agent id the peer announced and serializes writes so that replies
// from the connection's own handler and notices from other handlers never
// interleave on the wire.
//
// The Registry maps connection ids to sessions. Lookups are by connection,
// not by agent id, because two connections may announce the same id.
package agent
