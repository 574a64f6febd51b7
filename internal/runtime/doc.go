/*
Package runtime drives conversation turns through the step graph.

An Executor owns the routing table and one function per step. RunTurn starts at
the entry step, runs each step on a private copy of the state, asks the table
for the next step and repeats until the terminal marker. A step that panics or
reports an undeclared signal never leaks partial changes: its copy is dropped,
the failure is recorded and the turn jumps to finalize with an apology.
*/
package runtime
