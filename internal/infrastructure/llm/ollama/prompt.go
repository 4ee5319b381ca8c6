package ollama

import "strings"

func buildSummaryPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Summarize the following document in a concise paragraph. ")
	b.WriteString("Keep the key facts, names, figures and conclusions. ")
	b.WriteString("Answer with the summary only, no preamble.\n\n")
	b.WriteString("Document:\n")
	b.WriteString(text)
	return b.String()
}
