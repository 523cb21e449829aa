// Package batch releases a polygon set to the display layer in fixed-size,
// paced chunks.
//
// Loader.Run walks the chunks in input order. Before each chunk it checks
// the interaction gate, drops ids that were already rendered, waits the
// settle delay, checks the gate again and only then hands the chunk to the
// Display. Every id in a delivered chunk is marked rendered. A true gate
// reading at any check ends the run with Aborted; chunks already delivered
// stay delivered.
package batch
