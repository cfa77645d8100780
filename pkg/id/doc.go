// Package id generates compact, time-ordered instance identifiers. The CLI
// uses them as default consumer names so concurrent group members never
// collide.
package id
