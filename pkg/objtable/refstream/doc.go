// Package refstream models the precomputed reference-emission stream the
// collector replays for every visited object.
//
// For each class the embedding system precomputes a Stream: a flat sequence
// of Descriptors, each naming where sub-object references live inside an
// instance and what shape they have (single pointer, array of pointers, map
// values, inline struct, custom callback). The collector never inspects
// instance memory directly; it replays the stream and lets each descriptor
// hand back the reference slots.
//
// Building streams from real type layouts is owned by the reflection system
// and out of scope here; SchemaBuilder exists so tests and the simulation CLI
// can assemble classes by hand.
package refstream
