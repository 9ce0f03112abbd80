// Package bank delivers messages to the external settlement service.
//
// The house talks to the bank over one persistent connection, either a
// plain TCP line stream or a WebSocket carrying one line per text frame.
// Register performs the startup exchange that assigns the house its id.
//
// After registration every message goes through an Outbox: producers
// never block, and a single sender delivers in order, reconnecting with
// exponential backoff until each message is written. Messages are not
// dropped while the process runs.
package bank
