// Package flow implements the program-flow monitor: control-flow integrity
// by signature accumulation.
//
// Instrumented code reports checkpoints; each checkpoint identifier is
// folded into a rolling signature with an order-sensitive mixing function
// (rotate-left by one, XOR with the identifier scaled by the golden-ratio
// constant). Visiting the same checkpoints in a different order, or a
// different number of times, yields a different signature.
//
// The safety monitor calls Verify once per verification window. Verify
// checks the accumulated signature against the expected value when one has
// been set, and independently requires that at least one checkpoint was
// reported since the previous window, so a dead thread that stops
// reporting fails verification even if its last signature was correct.
//
// Checkpoint is safe to call from any goroutine; Verify and Reset belong
// to the single monitor goroutine.
package flow
