// Package heap is the public façade for the Heap Sampler Core: New,
// Init with a mean sampling rate, Start, then call OnAlloc/OnFree from
// the embedder's allocation interposer for every allocation and free.
// Snapshot returns every currently live, sampled allocation; Stop pauses
// sampling without discarding state; Shutdown is the one-way terminal
// transition.
package heap
