package gateway

import (
	"strings"
)

// buildSystemInstruction assembles the system message from the persona, the
// conversation-versus-task rules, the search rule and the saved facts.
// An empty facts list renders as "None".
func buildSystemInstruction(persona string, searchTools []string, facts []string) string {
	var sb strings.Builder

	sb.WriteString(strings.TrimSpace(persona))
	sb.WriteString("\nYou have access to a set of tools. Based on the user's request, you MUST decide if it is a simple CONVERSATION or a TASK that requires a tool.\n")
	sb.WriteString("- If it is a CONVERSATION, you MUST respond conversationally without calling any tools.\n")
	sb.WriteString("- If it is a TASK, you must respond with the tool calls required to complete it.\n\n")

	search := "a web search tool"
	if len(searchTools) > 0 {
		quoted := make([]string, len(searchTools))
		for i, name := range searchTools {
			quoted[i] = "`" + name + "`"
		}
		search = "the web search tools (" + strings.Join(quoted, ", ") + ")"
	}
	sb.WriteString("**CRITICAL RULE:** For any single user request, you are only allowed to use ")
	sb.WriteString(search)
	sb.WriteString(" **ONE TIME** in total. Formulate the best possible search query on your first attempt. ")
	sb.WriteString("If that single search does not provide the answer, you must inform the user that you could not find the information. ")
	sb.WriteString("You are forbidden from repeatedly searching in a loop.\n\n")

	sb.WriteString("- If a tool call returns data, it will be sent back to you. You must then formulate the final, natural language answer for the user based on that data.\n")

	sb.WriteString("User Facts: ")
	if len(facts) == 0 {
		sb.WriteString("None")
	} else {
		sb.WriteString(strings.Join(facts, "\n- "))
	}
	return sb.String()
}
