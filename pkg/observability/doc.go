/*
Package observability provides tools for monitoring the assistant.

It includes Prometheus instruments for turns, routing violations, transport
calls and directory refreshes, plus lifecycle hooks that feed them from the
executor's step and turn events.
*/
package observability
