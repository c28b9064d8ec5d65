/*
Package negotiation implements the conflict resolution core of Accord.

A Conflict is detected over a shared resource between two or more agents.
The Engine drives each conflict through a fixed attempt pipeline:

 1. collect constraints from every involved agent (fan-out with timeout)
 2. generate resolution options from the declared constraints
 3. gather one vote per responding agent
 4. evaluate consensus; unanimity commits the winning option, anything
    else escalates to a human with a recorded reason

Status transitions are append-only logged on the conflict itself:

	detected → negotiating → auto_resolved | escalated | failed
	escalated → resolved (human) | detected (reopen)
	failed    → detected (reopen)

The package owns the domain types, the Agent capability interface and
registry, the collectors, the heuristic proposal generator, the unanimity
evaluator, the transactional resolution applicator, and the Orchestrator
that strings a single attempt together. Scheduling, retry, and rate limits
live in package execution; durable storage behind ConflictStore lives in
negotiation/store.
*/
package negotiation
