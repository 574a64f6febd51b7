/*
Package routing holds the static transition table of the conversation graph.

A Table maps (step, token) pairs, optionally refined by a context key, to the
next step or to the terminal marker. It is built once, validated against the
catalog of tokens each step may emit, and never mutated afterwards. Any lookup
that is not declared fails with an InvalidTransitionError instead of falling
back to a default route.
*/
package routing
