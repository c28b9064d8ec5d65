// Package execution is the task execution layer of the negotiation engine.
//
// A Scheduler runs negotiation attempts on a bounded worker pool with three
// guarantees:
//
//   - Mutual exclusion: at most one attempt per conflict is in flight at a
//     time. Enqueueing a conflict that is already running is an idempotent
//     no-op returning the existing Handle.
//   - Rate limiting: attempts are admitted under a shared token bucket so
//     the agent capability (typically LLM-backed) is never hammered.
//   - Bounded retry: transient failures are retried after a fixed delay up
//     to a total attempt budget, after which the conflict is marked failed.
//
// Attempts for distinct conflicts are isolated: a failure in one never
// affects another beyond consuming shared rate-limit tokens.
package execution
