/*
Package domain defines the core types of the conversation engine.

It holds the closed enumerations that name steps, tokens, intents and workflow
stages, the per-conversation State container, and the record types exchanged
with the record service. Nothing here performs I/O.
*/
package domain
