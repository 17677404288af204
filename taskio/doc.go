// Package taskio moves bytes between non-blocking descriptors on behalf of a
// cooperative task.
//
// Read, Readv, Write and Writev retry a single non-blocking operation,
// yielding with task.WaitIO whenever the descriptor is not ready. Splice pumps
// two descriptor pairs in both directions through either a kernel pipe
// (splice(2), Linux only) or a userspace circular buffer, yielding to the
// task between turns.
//
// Descriptors handed to this package must already be in non-blocking mode;
// they are borrowed and never closed here.
package taskio
