package clinical

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// drugLexicon lists the medications the rule strategy can recognize.
// Entries are lowercase generic names; the fuzzy matcher recovers
// ASR-mangled spellings of these ("amlodipin", "nitro glycerin").
var drugLexicon = []string{
	"amlodipine",
	"metformin",
	"paracetamol",
	"ibuprofen",
	"omeprazole",
	"losartan",
	"atorvastatin",
	"salbutamol",
	"nitroglycerin",
	"aspirin",
	"warfarin",
	"insulin",
	"furosemide",
	"lisinopril",
	"simvastatin",
}

// fuzzyDrugThreshold is the minimum Jaro-Winkler similarity for a
// phonetically matching token to be accepted as a drug mention.
const fuzzyDrugThreshold = 0.88

// minFuzzyTokenLen guards the fuzzy path against short function words
// that happen to share a metaphone code with a drug name.
const minFuzzyTokenLen = 5

// matchDrug maps a single lowercase token to a lexicon entry. Exact
// matches win outright; otherwise the token must share a Double
// Metaphone code with the entry and clear the similarity threshold.
func matchDrug(token string) (string, bool) {
	for _, drug := range drugLexicon {
		if token == drug {
			return drug, true
		}
	}
	if len(token) < minFuzzyTokenLen {
		return "", false
	}

	tp, ts := matchr.DoubleMetaphone(token)
	best := ""
	bestScore := 0.0
	for _, drug := range drugLexicon {
		dp, ds := matchr.DoubleMetaphone(drug)
		if !codesOverlap(tp, ts, dp, ds) {
			continue
		}
		if score := matchr.JaroWinkler(token, drug, false); score >= fuzzyDrugThreshold && score > bestScore {
			best, bestScore = drug, score
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// codesOverlap reports whether the two metaphone code pairs share at
// least one non-empty code.
func codesOverlap(a1, a2, b1, b2 string) bool {
	for _, a := range [2]string{a1, a2} {
		if a == "" {
			continue
		}
		if a == b1 || a == b2 {
			return true
		}
	}
	return false
}

// findDrugs returns the lexicon entries mentioned in text, deduplicated
// in order of first appearance.
func findDrugs(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, token := range tokenize(text) {
		drug, ok := matchDrug(token)
		if !ok {
			continue
		}
		if _, dup := seen[drug]; dup {
			continue
		}
		seen[drug] = struct{}{}
		out = append(out, drug)
	}
	return out
}

// tokenize lowercases text and splits it into words with surrounding
// punctuation stripped.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
