// Copyright (c) Accord Authors.
// Licensed under the MIT License.

/*
Package types provides the shared type contracts of the Accord engine.

types is the lowest-level public package. It depends on nothing inside the
module and gives negotiation, execution, audit and the ops surface a single
place for cross-package definitions, so no import cycles are needed.

Core definitions:

  - Error / ErrorCode — structured error taxonomy with Retryable marker
  - IsRetryable / GetErrorCode — helpers used by the scheduler retry policy

The taxonomy maps the failure classes of a negotiation attempt: transient
agent failures (AGENT_TIMEOUT, AGENT_UNAVAILABLE) are retryable; malformed
agent replies (MALFORMED_RESPONSE) degrade to a non-response for the phase;
INSUFFICIENT_OPTIONS escalates; PERSISTENCE keeps the conflict negotiating
and retries the attempt.
*/
package types
