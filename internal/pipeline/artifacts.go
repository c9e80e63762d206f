package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/clinivox/clinivox/pkg/types"
)

// Tier directories under the output root. Each pipeline stage that
// persists an artifact owns one tier; earlier tiers survive later-stage
// failures.
const (
	dirRaw        = "00_transcripts"
	dirLean       = "01_transcripts_lean"
	dirTranslated = "02_translated"
	dirClinical   = "03_clinical_extraction"
)

// ArtifactStore writes stage artifacts into the tiered output tree.
// Raw and lean transcript names carry the job's Unix timestamp so that
// repeated runs of the same file never overwrite each other; translated
// and clinical artifacts are keyed by stem alone and represent the
// latest run.
type ArtifactStore struct {
	root string
}

// NewArtifactStore returns a store rooted at root ("outputs" by
// convention). Directories are created lazily on first write.
func NewArtifactStore(root string) *ArtifactStore {
	return &ArtifactStore{root: root}
}

// Root returns the output tree root.
func (s *ArtifactStore) Root() string { return s.root }

// WriteRaw persists the speaker-attributed ASR output.
func (s *ArtifactStore) WriteRaw(stem string, ts int64, t *types.Transcription) (string, error) {
	name := fmt.Sprintf("%s_whisperx_%d.json", stem, ts)
	return s.write(dirRaw, name, t)
}

// WriteLean persists the reconstructed lean transcript.
func (s *ArtifactStore) WriteLean(stem string, ts int64, lt *types.LeanTranscript) (string, error) {
	name := fmt.Sprintf("%s_lean_%d.json", stem, ts)
	return s.write(dirLean, name, lt)
}

// WriteTranslated persists the English lean transcript.
func (s *ArtifactStore) WriteTranslated(stem string, lt *types.LeanTranscript) (string, error) {
	return s.write(dirTranslated, stem+"_translated.json", lt)
}

// WriteClinical persists the structured clinical record.
func (s *ArtifactStore) WriteClinical(stem string, rec *types.ClinicalRecord) (string, error) {
	return s.write(dirClinical, stem+"_clinical.json", rec)
}

func (s *ArtifactStore) write(tier, name string, v any) (string, error) {
	dir := filepath.Join(s.root, tier)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pipeline: create artifact dir %q: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("pipeline: encode artifact %q: %w", name, err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("pipeline: write artifact %q: %w", path, err)
	}
	return path, nil
}
