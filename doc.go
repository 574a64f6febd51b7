/*
Package carebot is the conversational core of a patient-records assistant.

An Engine turns one user message into one reply. Each turn walks a closed graph
of steps (ingest, classify, collect fields, the record workflows, confirmation,
finalize) whose transitions come from a routing table that is validated when the
engine starts. Conversation state is loaded, mutated and saved under a
per-conversation lock, so concurrent messages for the same conversation are
serialized while different conversations run in parallel.

# Usage

	eng, err := carebot.New("https://records.internal",
		carebot.WithLogger(logger),
		carebot.WithMetrics(prometheus.DefaultRegisterer),
	)
	if err != nil {
		log.Fatal(err)
	}

	reply, err := eng.Send(ctx, "conversation-42", "create patient John Doe")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(reply.Text)

# Collaborators

Intent classification, field extraction and summarization are pluggable
(WithUnderstanding). The default is the embedded pattern rules; the openai
adapter can be chained behind them as a fallback. Reply wording comes from
text templates (WithFormatter). Conversation state lives in memory by default
(WithStore); WithLocker adds a distributed lock so several replicas can share
conversations.

Identifiers (DNI/NIE) are masked in replies, logs and state snapshots.
*/
package carebot
