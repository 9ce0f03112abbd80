// Package journal appends auction events to PostgreSQL.
//
// Accepted bids and closed items are queued by Record without blocking
// the caller and written in batches, either when a batch fills or on
// the flush interval. Rows are keyed by event id and inserted with
// ON CONFLICT DO NOTHING, so a retried batch never duplicates events.
package journal
