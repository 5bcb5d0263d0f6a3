// Package stats contains the per-user performance aggregate for Math Runner.
//
// The aggregate is a rolling summary of every game session a player has
// finished: cumulative score, best score, response-time totals, per-category
// hit rates and a bounded window of recent sessions. All derived values
// (averages, accuracies, trend) are recomputed from cumulative counters so
// that repeated updates can never drift.
package stats
