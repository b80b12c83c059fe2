// Package engine executes database operations asynchronously over a
// blocking driver.
//
// ARCHITECTURE:
//
// An Operation is an immutable description of one statement: query text,
// parameter sources, dependencies, transaction affinity, and an optional
// row converter. Subscribing (Executor.Execute) starts exactly one
// execution; nothing is cached across subscriptions.
//
// Execution pipeline:
//  1. The dependency resolver waits for every upstream Completion.
//     Any upstream error becomes this operation's DependencyError.
//  2. The scheduler admits the operation to a bounded worker pool, or
//     routes it to the dedicated worker of its transaction.
//  3. The resource guard acquires connection, statement, and cursor,
//     checking for cancellation before each step. An operation cancelled
//     before admission never touches the driver.
//  4. Rows stream to the consumer through an unbuffered handoff; the
//     worker fetches at most one row ahead of the consumer.
//  5. Resources release exactly once on every exit path; the handler
//     chain observes the terminal event; the completion latch fires.
//
// Thread-safety model:
//   - All driver calls for one execution happen on its assigned worker
//     goroutine. Transaction members share one dedicated worker, which
//     is the only discipline keeping the pinned connection
//     single-threaded. There is no per-connection lock.
//   - Consumers interact only with Rows and Completion, both safe for
//     one consuming goroutine plus any number of Done() waiters.
//
// INVARIANTS:
//   - One execution per Execute call; one driver release per handle.
//   - Transaction members run strictly sequentially in submission order.
//   - Every execution terminates the completion latch exactly once.
//   - The logical clock stamps acquisition and termination, so
//     happens-after relations are checkable without wall clocks.
package engine
