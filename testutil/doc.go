// Package testutil provides shared test helpers: bounded test contexts,
// polling assertions, and JSON round-trip utilities. Agent fixtures for
// negotiation tests live in the fixtures subpackage.
package testutil
