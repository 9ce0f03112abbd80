// Package auction implements the Item Registry, the Bid Ledger and the House
// that combines them.
//
// The House:
//   - Holds a fixed-size rotating inventory of items (replenished on close)
//   - Accepts a bid only if it beats both the minimum and the current bid
//   - Starts an item's closing countdown on its first accepted bid only
//   - Swaps the high bidder in the ledger under the same per-item lock as
//     the acceptance, so accepted bids on one item are totally ordered
//   - Closes an expired item, removes it and adds a replacement as one unit
//
// Each item has its own mutex. The registry map lock is only held to look
// items up or change membership, so bids on different items never contend.
package auction
