// Package database provides the PostgreSQL connection pool used by the
// event journal, and the schema it writes to.
//
// The journal is append-only: rows are inserted, never updated or read
// back by the house.
package database
