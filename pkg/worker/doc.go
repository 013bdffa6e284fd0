// Package worker runs render requests on pools of long-lived worker
// processes.
//
// # Contract
//
// A [Pool] accepts a request payload and hands it to one of its workers,
// returning an [Operation] from which the response lines are read. The
// caller borrows that worker for one exchange and gives it back with
// [Operation.Close].
//
// # Wire framing
//
// A request is one line: the payload followed by '\n'. The worker answers
// with any number of lines and then either an empty line, after which it is
// ready for the next request, or end of stream, after which it is discarded.
// How the lines are interpreted is up to the caller.
//
// # Pools
//
// [ProcessPool] starts up to Options.Concurrency processes lazily, runs
// `<command...> <entrypoint>` in the pool directory and reuses workers whose
// last response ended cleanly. [Manager] creates one pool per materialized
// entrypoint: it emits the entry first, so a worker never starts before its
// files exist, and refuses output roots that are not on disk.
//
// # Blocking reads
//
// Reading a response waits on process I/O. [Blocking] moves those reads onto
// a bounded set of goroutines so a caller can stop waiting when its context
// ends without stalling other renders.
package worker
