package paper

import (
	"fmt"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/usecase/retrieval"
)

// noContextInstruction replaces an empty retrieval result in the chat prompt.
const noContextInstruction = "No specific relevant context found in the paper. " +
	"Answer based on general knowledge if possible, or state that the paper doesn't cover this."

func chatSystemPrompt(grounding string) string {
	return fmt.Sprintf(`You are a helpful research assistant.
You have read a research paper. Here are the most relevant sections to the user's query:

---CONTEXT START---
%s
---CONTEXT END---

Answer the user's questions based ONLY on the context provided above.
If the answer is not in the context, say so.`, grounding)
}

func summaryPrompt(text string) string {
	return fmt.Sprintf(`Summarize the following research paper text into a concise and informative summary:

%s`, text)
}

// ChatRequest builds the grounded chat prompt for query. An assembled context equal to
// retrieval.NoContext is replaced with an instruction to say the paper does not cover it.
func ChatRequest(assembled, query string) domain.GenerationRequest {
	grounding := assembled
	if grounding == retrieval.NoContext {
		grounding = noContextInstruction
	}
	return domain.GenerationRequest{
		Operation: "chat",
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: chatSystemPrompt(grounding)},
			{Role: domain.RoleUser, Content: query},
		},
	}
}
