package runtime

// MarkCPUBound is a scheduler hint for task bodies that are about to do
// sustained CPU work (batch signature verification). The Go runtime
// exposes no per-goroutine CPU-bound marker — only process-wide knobs
// like GOMAXPROCS and the cooperative runtime.Gosched — so this is a
// deliberate no-op kept as a named call site for a future runtime-tuned
// build (e.g. GOMAXPROCS partitioning) to hook into.
func MarkCPUBound() {}
