// Package rt provides the tagged runtime primitives that native code calls.
//
// A Word is a machine word. When its low bit is clear it encodes a signed
// integer in the remaining bits (a "short" integer, no allocation). When the
// low bit is set it is a reference to an object header on the Heap. A few
// reference words are reserved for immortal objects: None, the error sentinel,
// False, True and a small-integer cache.
//
// Primitives that can allocate take the calling *Frame. Failures are reported
// by setting the frame's pending error and returning ErrorSentinel through the
// ordinary result channel; callers must test for it before using the result.
//
// Execution model: a Heap is mutated by exactly one goroutine at a time. Reference
// counts are plain integers, not atomics.
package rt
