/*
Package ports defines the driven ports (interfaces) of the assistant.

These interfaces decouple the orchestration core from its collaborators, so the
executor works the same with rule-based or remote language understanding, and
with any conversation store.

# Key Interfaces

  - Classifier: maps a message to an intent and reads yes/no answers.
  - FieldExtractor: pulls record fields (identifier, names, dates) out of text.
  - Summarizer: folds old messages into the rolling history digest.
  - Formatter: renders reply templates into user-visible text.
  - StateStore: keeps conversation State between turns.
  - DistributedLocker: serializes turns of one conversation across replicas.
*/
package ports
