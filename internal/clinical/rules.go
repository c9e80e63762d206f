package clinical

import (
	"regexp"
	"strings"

	"github.com/clinivox/clinivox/pkg/types"
)

// ruleSummary fills the summary field on the rule path, where no
// generative model is available to write one.
const ruleSummary = "Summary not generated (rule-based extraction)."

// chiefComplaintMax caps the chief complaint length in runes.
const chiefComplaintMax = 120

// negationWindow is how many tokens before a symptom mention are
// scanned for a negation cue.
const negationWindow = 5

// negationCues negate a symptom when they appear shortly before it.
var negationCues = map[string]struct{}{
	"no": {}, "not": {}, "without": {}, "denies": {},
	"denied": {}, "never": {}, "absent": {}, "negative": {},
}

// symptomKeywords is the curated sweep list for the rule strategy.
// Compound entries come before their components so substring
// deduplication keeps the more specific mention.
var symptomKeywords = []string{
	"chest pain",
	"abdominal pain",
	"back pain",
	"joint pain",
	"shortness of breath",
	"difficulty breathing",
	"breathlessness",
	"sore throat",
	"runny nose",
	"loss of appetite",
	"weight loss",
	"palpitations",
	"fever",
	"cough",
	"headache",
	"dizziness",
	"nausea",
	"vomiting",
	"fatigue",
	"wheezing",
	"rash",
	"diarrhea",
	"chills",
	"numbness",
	"swelling",
}

var (
	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]?`)

	onsetPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bfor \d+ (?:day|days|week|weeks|month|months|year|years)\b`),
		regexp.MustCompile(`(?i)\b\d+ (?:day|days|week|weeks) ago\b`),
		regexp.MustCompile(`(?i)\bsince\s+\w+(?:\s+\w+)?`),
		regexp.MustCompile(`(?i)\byesterday\b`),
		regexp.MustCompile(`(?i)\bthis morning\b`),
		regexp.MustCompile(`(?i)\blast night\b`),
	}

	allergyPattern = regexp.MustCompile(`(?i)allerg(?:ic|y) to\s+([^.!?\n]+)`)

	diagnosisPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:likely |probable |working |final )?diagnosis(?: is)?:?\s*([^.!?\n]+)`),
		regexp.MustCompile(`(?i)diagnosed with\s+([^.!?\n]+)`),
	}

	historyPattern = regexp.MustCompile(`(?i)history of\s+([^.!?\n]+)`)

	dosePattern     = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:mg|mcg|g|ml|puffs?|tablets?|capsules?)\b`)
	freqPattern     = regexp.MustCompile(`(?i)\b(?:bid|tid|qid|q\d+h|once daily|twice daily|three times daily|qhs|prn|as needed)\b`)
	durationPattern = regexp.MustCompile(`(?i)\bfor \d+ (?:days?|weeks?)\b`)

	followUpPattern = regexp.MustCompile(`(?i)\b(?:follow[- ]?up in|review in|see you in|return in)\s+[^.!?\n]*`)

	redFlagPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)go to (?:the )?(?:er|emergency|a&e|hospital)\b`),
		regexp.MustCompile(`(?i)return immediately`),
		regexp.MustCompile(`(?i)if (?:it gets |things get |symptoms )?worsens?\b`),
		regexp.MustCompile(`(?i)if worse\b`),
		regexp.MustCompile(`(?i)severe chest pain`),
		regexp.MustCompile(`(?i)severe breathlessness`),
		regexp.MustCompile(`(?i)difficulty breathing`),
		regexp.MustCompile(`(?i)chest pain at rest`),
	}
)

// extractRules builds a ClinicalRecord from the transcript text using
// only deterministic pattern extractors. Same text in, same record out.
func extractRules(lean *types.LeanTranscript) *types.ClinicalRecord {
	text := flattenText(lean)
	sentences := splitSentences(text)

	rec := &types.ClinicalRecord{Summary: ruleSummary}
	rec.ChiefComplaint = chiefComplaint(sentences)
	rec.OnsetOrDuration = firstPatternMatch(onsetPatterns, text)
	rec.SymptomsPresent, rec.SymptomsNegated = findSymptoms(text)
	rec.AllergySubstance = findAllergies(text)
	rec.ConditionsPast = captureAll(historyPattern, text)
	rec.PrimaryDiagnosis = findDiagnosis(text)
	rec.FollowUp = strings.TrimSpace(followUpPattern.FindString(text))
	rec.RedFlags = findRedFlags(text)

	rxIdx, rxDrugs := lastDrugSentence(sentences)
	if rxIdx >= 0 {
		rec.RxDrug = rxDrugs[0]
		rec.RxDose = extractDose(sentences[rxIdx])
	}
	rec.MedsCurrent = currentMeds(sentences, rxIdx)

	return rec
}

// flattenText joins all turn texts into one block for the pattern
// extractors.
func flattenText(lean *types.LeanTranscript) string {
	parts := make([]string, 0, len(lean.Turns))
	for _, turn := range lean.Turns {
		if t := strings.TrimSpace(turn.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func splitSentences(text string) []string {
	raw := sentencePattern.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// chiefComplaint is the first sentence, truncated with an ellipsis when
// it runs past the cap.
func chiefComplaint(sentences []string) string {
	if len(sentences) == 0 {
		return ""
	}
	runes := []rune(sentences[0])
	if len(runes) <= chiefComplaintMax {
		return sentences[0]
	}
	return strings.TrimSpace(string(runes[:chiefComplaintMax])) + "..."
}

func firstPatternMatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

// findSymptoms sweeps the keyword list over the text. A symptom lands in
// the negated list when a negation cue occurs within the last tokens
// before any of its mentions, and in the present list when it has at
// least one non-negated mention.
func findSymptoms(text string) (present, negated []string) {
	lower := strings.ToLower(text)

	var matched []string
	for _, kw := range symptomKeywords {
		if strings.Contains(lower, kw) {
			matched = append(matched, kw)
		}
	}
	matched = dropSubstrings(matched)

	for _, kw := range matched {
		var pos, neg bool
		for idx := strings.Index(lower, kw); idx >= 0; {
			if isNegated(lower[:idx]) {
				neg = true
			} else {
				pos = true
			}
			rest := lower[idx+len(kw):]
			next := strings.Index(rest, kw)
			if next < 0 {
				break
			}
			idx += len(kw) + next
		}
		if pos {
			present = append(present, kw)
		}
		if neg {
			negated = append(negated, kw)
		}
	}
	return present, negated
}

// isNegated reports whether a negation cue appears in the trailing
// tokens of the text preceding a symptom mention.
func isNegated(prefix string) bool {
	tokens := tokenize(prefix)
	start := len(tokens) - negationWindow
	if start < 0 {
		start = 0
	}
	for _, t := range tokens[start:] {
		if _, ok := negationCues[t]; ok {
			return true
		}
	}
	return false
}

// dropSubstrings removes any entry that is a strict substring of a
// longer one, keeping the more specific mention.
func dropSubstrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		sub := false
		for _, b := range items {
			if a != b && strings.Contains(b, a) {
				sub = true
				break
			}
		}
		if !sub {
			out = append(out, a)
		}
	}
	return out
}

// findAllergies captures the substances named after "allergic to" or
// "allergy to", split on commas and "and", lowercased.
func findAllergies(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range allergyPattern.FindAllStringSubmatch(text, -1) {
		captured := strings.ToLower(m[1])
		captured = strings.ReplaceAll(captured, " and ", ",")
		for _, part := range strings.Split(captured, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

func captureAll(pattern *regexp.Regexp, text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range pattern.FindAllStringSubmatch(text, -1) {
		v := strings.TrimSpace(strings.ToLower(m[1]))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func findDiagnosis(text string) string {
	for _, p := range diagnosisPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(strings.ToLower(m[1]))
		}
	}
	return ""
}

// lastDrugSentence returns the index of the last sentence mentioning a
// lexicon drug, plus the drugs it mentions. Returns -1 when no sentence
// contains one.
func lastDrugSentence(sentences []string) (int, []string) {
	for i := len(sentences) - 1; i >= 0; i-- {
		if drugs := findDrugs(sentences[i]); len(drugs) > 0 {
			return i, drugs
		}
	}
	return -1, nil
}

// extractDose concatenates the dose, frequency, and duration found in
// the prescription sentence.
func extractDose(sentence string) string {
	var parts []string
	for _, p := range []*regexp.Regexp{dosePattern, freqPattern, durationPattern} {
		if m := p.FindString(sentence); m != "" {
			parts = append(parts, strings.TrimSpace(m))
		}
	}
	return strings.Join(parts, " ")
}

// currentMeds collects drugs mentioned outside the prescription
// sentence. A drug the doctor is prescribing now is not a current med.
func currentMeds(sentences []string, rxIdx int) []string {
	var out []string
	seen := make(map[string]struct{})
	for i, s := range sentences {
		if i == rxIdx {
			continue
		}
		for _, drug := range findDrugs(s) {
			if _, dup := seen[drug]; dup {
				continue
			}
			seen[drug] = struct{}{}
			out = append(out, drug)
		}
	}
	return out
}

func findRedFlags(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, p := range redFlagPatterns {
		for _, m := range p.FindAllString(text, -1) {
			v := strings.ToLower(strings.TrimSpace(m))
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
