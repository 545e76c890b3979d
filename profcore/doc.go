// Package profcore is go-profcore's composition root: Bootstrap tunes
// the Go runtime to the host's real resource limits, NewSession (or
// NewSessionWithBootstrap, which also calls Bootstrap and scales the
// heap sampler's defaults off the result) constructs a CPU Profiler and
// a Heap Sampler together, and
// MarshalCPUProfile/MarshalHeapSnapshot/CollapsedStacks turn their
// results into the raw JSON / collapsed-stack data a collaborator's
// formatter consumes.
package profcore
