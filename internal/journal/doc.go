// Package journal records migration runs and their per-unit outcomes in a SQLite database
// and renders the recorded history.
package journal
