// Package server accepts agent connections and runs one handler per
// connection.
//
// Lifecycle of a connection:
//
//  1. Handshake: the agent's first line is its id. The session is
//     registered and the house id is written back. A connection that
//     does not complete this within the handshake timeout is dropped.
//  2. Requests: GET_AUCTION_STATE, "<itemID> <amount>" and EXIT_MESSAGE
//     are handled in order until the agent exits, the connection fails,
//     or a malformed line arrives.
//  3. Teardown: the session is deregistered and the bank is told the
//     agent left.
//
// Outbid notices are sent after the bid has been applied, never while an
// item lock is held. Depending on configuration they go to the bank, to
// the displaced agent's own connection, or both.
package server
