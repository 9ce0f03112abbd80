// Package model defines shared data types used across the auction house.
//
// Conventions:
//   - Money: int64 whole bidcoin units, no fractions
//   - Item IDs: int64, allocated once per process, never reused
//   - Agent IDs: opaque strings supplied by the agent at handshake
//   - Connection IDs: uint64, one per accepted agent connection
package model
