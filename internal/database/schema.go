package database

// EventsTable is the journal table name.
const EventsTable = "auction_events"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS auction_events (
		event_id    UUID PRIMARY KEY,
		kind        TEXT NOT NULL,
		house_id    TEXT NOT NULL,
		item_id     BIGINT NOT NULL,
		item_name   TEXT NOT NULL,
		agent_id    TEXT NOT NULL DEFAULT '',
		amount      BIGINT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS auction_events_item_idx
		ON auction_events (house_id, item_id, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS auction_events_kind_idx
		ON auction_events (kind, occurred_at)`,
}
