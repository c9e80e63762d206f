package clinical

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/clinivox/clinivox/pkg/provider/llm"
	"github.com/clinivox/clinivox/pkg/types"
)

// maxParseAttempts bounds the JSON repair loop. Each failed parse
// re-prompts the model with its previous output and a correction.
const maxParseAttempts = 3

// maxTokens caps the extraction response.
const maxTokens = 1500

const extractSystemPrompt = "You are a clinical documentation assistant. Extract structured " +
	"information from the consultation transcript. Use only facts stated in the transcript; " +
	"never speculate, infer, or invent values. Leave a field empty when the transcript does " +
	"not state it. Respond with a single JSON object and nothing else."

const extractSchema = `{
  "summary": "2-3 sentence clinical summary",
  "chief_complaint": "the patient's main problem in their words",
  "symptoms_present": ["symptoms the patient reports"],
  "symptoms_negated": ["symptoms the patient explicitly denies"],
  "onset_or_duration": "when the problem started or how long it has lasted",
  "allergy_substance": ["substances the patient is allergic to, lowercase"],
  "meds_current": ["medications the patient already takes, lowercase generic names"],
  "conditions_past": ["past medical conditions, lowercase"],
  "primary_diagnosis": "the diagnosis stated by the clinician, lowercase",
  "rx_drug": "the drug prescribed in this consultation, lowercase generic name",
  "rx_dose": "dose, frequency, and duration of the prescription",
  "follow_up": "the follow-up instruction",
  "red_flags": ["warning signs the clinician told the patient to act on"]
}`

// jsonFence matches a markdown code fence around the model's JSON.
var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// extractLLM runs the generative strategy. The prompt is fully
// deterministic and decoding is greedy, so repeated runs over the same
// transcript produce the same record. Returns an error when every parse
// attempt fails; the caller falls through to the rule strategy.
func (e *Extractor) extractLLM(ctx context.Context, lean *types.LeanTranscript) (*types.ClinicalRecord, error) {
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: buildExtractionPrompt(lean)},
	}

	var lastErr error
	for attempt := 1; attempt <= maxParseAttempts; attempt++ {
		resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: extractSystemPrompt,
			Messages:     messages,
			Temperature:  0,
			MaxTokens:    maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("clinical: extraction request: %w", err)
		}

		rec, err := parseRecord(resp.Content)
		if err == nil {
			return rec, nil
		}
		lastErr = err

		// Feed the bad output back so the model can correct it.
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
			llm.Message{Role: llm.RoleUser, Content: "That was not valid JSON. Respond again with only the JSON object, no commentary and no markdown."},
		)
	}
	return nil, fmt.Errorf("clinical: no valid JSON after %d attempts: %w", maxParseAttempts, lastErr)
}

// buildExtractionPrompt flattens the turns into speaker-prefixed lines
// followed by the output schema.
func buildExtractionPrompt(lean *types.LeanTranscript) string {
	var sb strings.Builder
	sb.WriteString("Transcript:\n")
	for _, turn := range lean.Turns {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", turn.Speaker, turn.Text)
	}
	sb.WriteString("\nFill this JSON schema from the transcript above:\n")
	sb.WriteString(extractSchema)
	return sb.String()
}

// parseRecord decodes a ClinicalRecord from the model output, tolerating
// a markdown fence or surrounding prose around the JSON object.
func parseRecord(content string) (*types.ClinicalRecord, error) {
	payload := strings.TrimSpace(content)
	if m := jsonFence.FindStringSubmatch(payload); m != nil {
		payload = strings.TrimSpace(m[1])
	}
	if start := strings.Index(payload, "{"); start >= 0 {
		if end := strings.LastIndex(payload, "}"); end > start {
			payload = payload[start : end+1]
		}
	}

	var rec types.ClinicalRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("clinical: parse model output: %w", err)
	}
	return &rec, nil
}
