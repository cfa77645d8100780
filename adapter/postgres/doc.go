// Package postgres adapts an append-only events table to the receiver
// source contract. Message IDs are bigserial row IDs, fetches are keyset
// scans, and consumer-group positions live in a group_cursors table.
package postgres
