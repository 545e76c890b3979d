// Package cpu is the public façade for the CPU Sampler Core: construct a
// Profiler with New, call Start, RegisterThread for each OS thread the
// embedder wants sampled, and Stop to collect the resolved profile.
//
// Sample flow: a per-thread clock.Timer fires fireHandler, which walks
// the thread's frame chain with a frame.Walker and pushes a RawSample
// into a lock-free ring.Ring. A single background resolver.Resolver
// goroutine drains the ring, symbolizes each sample, and accumulates
// resolver.ResolvedSample values returned from Stop.
package cpu
