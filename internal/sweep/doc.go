// Package sweep closes items whose bidding window has run out.
//
// The Sweeper keeps a min-heap of countdown deadlines fed by
// auction.House through Schedule, and sleeps until the earliest one. A
// bounded reconcile interval caps every sleep, and each wake also asks
// the house for any due item the heap missed, so a deadline is never
// skipped and the loop never spins.
//
// Closing an item settles it: the winner is resolved to an agent id, a
// TRANSFER_FUNDS request goes to the bank channel, and the house replaces
// the item. Items that never received a bid have no countdown and stay
// open.
package sweep
