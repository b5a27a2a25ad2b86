package llm

// SummaryPrompt instructs the model to digest a live audio transcript.
const SummaryPrompt = `You summarize transcripts of live audio conversations (X Spaces).
The transcript is machine generated and may contain recognition errors and speaker crosstalk.
Respond with JSON only, in the form {"headline": string, "points": [string]}.
The headline is one sentence under 120 characters naming the main topic.
Give at most four points, each under 100 characters, covering the most important claims or decisions.
Do not invent facts that are not in the transcript.`
