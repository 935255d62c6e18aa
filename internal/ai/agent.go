package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"secops-console/internal/chat"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
)

// maxHistory bounds how many earlier chat messages are quoted in the prompt.
const maxHistory = 10

// AssistantReply is the structured output the model must return.
type AssistantReply struct {
	Reply    string `json:"reply" jsonschema:"description=Answer shown to the operator in the chat panel"`
	Severity string `json:"severity" jsonschema:"enum=none,enum=low,enum=medium,enum=high,description=Threat severity implied by the question"`
}

// Agent answers chat-panel messages through the OpenAI Responses API. It satisfies
// chat.Responder.
type Agent struct {
	client   *openai.Client
	model    shared.ResponsesModel
	briefing func() string
}

// NewAgent builds an agent. briefing, if non-nil, supplies a current monitoring summary
// that is quoted in every prompt.
func NewAgent(apiKey string, briefing func() string) *Agent {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Agent{client: &client, model: shared.ResponsesModel(shared.ChatModelGPT4o), briefing: briefing}
}

// Reply implements chat.Responder.
func (a *Agent) Reply(ctx context.Context, history []chat.Message, text string) (string, error) {
	schemaMap, err := replySchema()
	if err != nil {
		return "", err
	}
	var brief string
	if a.briefing != nil {
		brief = a.briefing()
	}

	params := responses.ResponseNewParams{
		Model: a.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(buildPrompt(brief, history, text)),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "assistant_reply",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("A short answer for a security operations analyst"),
				},
			},
		},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai responses error: %w", err)
	}
	return parseReply(resp.OutputText())
}

func buildPrompt(briefing string, history []chat.Message, text string) string {
	var b strings.Builder
	b.WriteString(`You are the assistant in a security operations console.
Answer in Korean, in at most three sentences.
Rules:
1. Only discuss network traffic, system logs, detected threats and the console's response policies.
2. If the question asks for an action (blocking an IP, isolating a PC, closing a port), point to the matching console page instead of claiming to perform it.
3. Rate the severity the question implies.

`)
	if briefing != "" {
		fmt.Fprintf(&b, "Current monitoring snapshot:\n%s\n\n", briefing)
	}
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Text)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Operator: %s", text)
	return b.String()
}

func parseReply(content string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("empty response content")
	}
	var out AssistantReply
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return "", fmt.Errorf("failed to parse completion: %w", err)
	}
	reply := strings.TrimSpace(out.Reply)
	if reply == "" {
		return "", fmt.Errorf("completion has an empty reply")
	}
	if out.Severity == "high" {
		reply = "🚨 " + reply
	}
	return reply, nil
}

func replySchema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schemaJSON, err := json.Marshal(reflector.Reflect(AssistantReply{}))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}
	return schemaMap, nil
}
