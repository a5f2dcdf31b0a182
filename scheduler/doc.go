/*
Package scheduler builds and validates task dependency graphs and computes
execution plans for the orchestrator.

A plan is accepted only when every dependency resolves to a known task, task
IDs are unique, no task depends on itself, and the transitive dependency
relation is acyclic. Accepted plans are ordered with Kahn's algorithm (FIFO
tie-break, so the order is a deterministic function of the input list) and
packed greedily into parallel groups of mutually independent tasks.

The group packing is a first-fit heuristic, not a minimum-group-count
solver; it trades optimal width for determinism.

A Scheduler owns the task registry and result store for exactly one
orchestration run. CreateExecutionPlan resets both, so concurrent runs must
each construct their own Scheduler.
*/
package scheduler
