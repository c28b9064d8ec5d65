// Command accord runs the conflict negotiation engine as a service.
//
// Usage:
//
//	accord serve                      # start the server
//	accord serve --config accord.yaml # with a config file
//	accord version                    # print version information
//	accord health                     # probe a running server
//
// The server exposes conflict intake and status endpoints under /api/v1,
// health probes, and Prometheus metrics on /metrics. Agents are registered
// in-process by the embedding application; conflicts whose agents are not
// registered escalate to a human after the retry budget is exhausted.
package main
