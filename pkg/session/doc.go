/*
Package session serializes access to conversation state.

Turns of the same conversation never overlap: the Manager holds a
reference-counted in-process mutex per conversation and, when configured, a
distributed lock so replicas sharing a store also take turns.
*/
package session
