/*
Package transport is the retrying HTTP client used to reach the record service.

Every call is attempted at most three times. A retry happens only when the
service answered 502, 503 or 504, or when no response arrived at all; writes
that did receive a response are never repeated. Attempts, retries, successes
and aborts are counted process-wide (Stats), per conversation (a Recorder
carried on the context) and in Prometheus.
*/
package transport
