package usecase

import (
	"fmt"
	"strings"

	"hydra/internal/domain"
)

const coreSystemPrompt = `Your task is to select the best possible model to accomplish the task you are assigned. Select the appropriate model to use from the following list of models based on their capabilities. Output the id of the model you select as well as a prompt for the model to execute.

IMPORTANT: You MUST respond with ONLY valid JSON. Do not include any reasoning text or explanations outside the JSON object.

You must respond in JSON format with the following structure:
{
    "model_id": <integer id of the selected model>,
    "prompt": "<refined prompt for the selected model>"
}

Example response:
{
    "model_id": 1,
    "prompt": "Analyze this transaction for fraud patterns"
}`

const toolCallInstructions = `You can use tools by requesting them through MCP (Model Context Protocol) capabilities. When you need a tool, reply with ONLY the JSON call object shown in the tool's example, for instance {"tool_id": 1, ...parameters}. You will receive the tool's result and can then continue. When you have the final answer, reply in plain text without any tool JSON.`

const refineSystemPrompt = `You are an editor. You receive a question and a draft answer written by another assistant. Rewrite the draft as the final answer to the question.

Rules:
- Remove reasoning, thinking steps, self-talk and meta-commentary.
- Remove tool call JSON and tool execution logs, but keep the facts they produced.
- Keep every fact, number and conclusion that answers the question.
- Do not add new information.
- Respond with the final answer only, in at most %d characters.`

// routerSystemPrompt builds the Core Router instruction for cfg. Every model
// is listed; the supervisor, when present, is also named in the header.
func routerSystemPrompt(cfg *domain.SystemConfig, supervisor *domain.ModelSpec) string {
	var sb strings.Builder
	if cfg.Mission != "" {
		fmt.Fprintf(&sb, "Mission: %s\n\n", cfg.Mission)
	}
	if supervisor != nil && supervisor.Name != "" {
		fmt.Fprintf(&sb, "You are %s, the supervisor of this system.\n\n", supervisor.Name)
	}
	sb.WriteString(coreSystemPrompt)
	sb.WriteString("\n\nAvailable Models:\n")
	sb.WriteString(formatModels(cfg, cfg.Models))
	return sb.String()
}

func formatModels(cfg *domain.SystemConfig, models []domain.ModelSpec) string {
	blocks := make([]string, 0, len(models))
	for _, m := range models {
		var kbNames, toolNames []string
		for _, kb := range cfg.KnowledgeBasesFor(m) {
			kbNames = append(kbNames, orDefault(kb.Name, fmt.Sprintf("KB %d", kb.ID)))
		}
		for _, t := range cfg.ToolsFor(m) {
			toolNames = append(toolNames, orDefault(t.Name, fmt.Sprintf("Tool %d", t.ID)))
		}
		blocks = append(blocks, fmt.Sprintf("\nModel ID: %d\nName: %s\nKnowledge Bases: %s\nTools: %s\n",
			m.ID, orDefault(m.Name, "Unknown"), joinOrNone(kbNames), joinOrNone(toolNames)))
	}
	return strings.Join(blocks, "\n")
}

// subAgentSystemPrompt assembles a sub-agent's context.
func subAgentSystemPrompt(kbContent, toolContent, task string) string {
	return fmt.Sprintf(`You are a specialized AI agent with access to the following knowledge bases and tools.

Knowledge Bases:
%s

Available Tools:
%s

%s

Your task: %s`, kbContent, toolContent, toolCallInstructions, task)
}

// followUpPrompt feeds every tool observation so far back to the sub-agent,
// oldest first.
func followUpPrompt(task string, observations []string) string {
	var sb strings.Builder
	for i, obs := range observations {
		fmt.Fprintf(&sb, "[Tool call %d]\n%s\n\n", i+1, obs)
	}
	return fmt.Sprintf(`Original task: %s

%sUse these results to continue the task. Call another tool only if you still need information; otherwise give the final answer in plain text.`, task, sb.String())
}

func kbSection(kb domain.KnowledgeBase, content string, fetchErr error) string {
	name := orDefault(kb.Name, "Unknown")
	if fetchErr != nil {
		return fmt.Sprintf("\nKnowledge Base %d: %s\nDescription: %s\n(Content unavailable: %s)\n",
			kb.ID, name, kb.Description, fetchErr)
	}
	return fmt.Sprintf("\nKnowledge Base %d: %s\nDescription: %s\nContent:\n%s\n",
		kb.ID, name, kb.Description, content)
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, ", ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
