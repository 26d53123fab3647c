package gemini

// buildSummaryPrompt keeps the instruction in front of the document text so
// truncation by the model's context window cuts the document, not the task.
func buildSummaryPrompt(text string) string {
	return "Summarize the following document in 3-5 bullet points. " +
		"Use the same language as the text.\n\n" + text
}
