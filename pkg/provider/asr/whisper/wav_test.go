package whisper

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/clinivox/clinivox/pkg/types"
)

// writeTestWAV builds a minimal RIFF/WAV file around the given 16-bit
// samples and writes it to dir.
func writeTestWAV(t *testing.T, dir string, channels int, samples []int16) string {
	t.Helper()

	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	buf := make([]byte, 44+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], 16000)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(16000*channels*2))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)

	path := filepath.Join(dir, "test.wav")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write test wav: %v", err)
	}
	return path
}

func TestDecodeWAVFileMono(t *testing.T) {
	path := writeTestWAV(t, t.TempDir(), 1, []int16{0, 16384, -16384, 32767})

	got, err := decodeWAVFile(path)
	if err != nil {
		t.Fatalf("decodeWAVFile: %v", err)
	}
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodeWAVFileStereoDownmix(t *testing.T) {
	// Interleaved L/R frames; each frame should average.
	path := writeTestWAV(t, t.TempDir(), 2, []int16{16384, 0, -16384, -16384})

	got, err := decodeWAVFile(path)
	if err != nil {
		t.Fatalf("decodeWAVFile: %v", err)
	}
	want := []float32{0.25, -0.5}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodeWAVFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.wav")
	if err := os.WriteFile(path, []byte("definitely not a wav"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := decodeWAVFile(path); err == nil {
		t.Fatal("expected error for non-WAV input")
	}
}

func TestNormalizeSegments(t *testing.T) {
	in := []types.Segment{
		{Start: 5.0, End: 7.0, Text: "second"},
		{Start: 0.0, End: 5.5, Text: "first"},
	}
	out := normalizeSegments(in)

	if out[0].Text != "first" || out[1].Text != "second" {
		t.Fatalf("segments not sorted by start: %+v", out)
	}
	if out[1].Start != 5.5 {
		t.Errorf("overlap not clamped: second segment starts at %v, want 5.5", out[1].Start)
	}
}

func TestModelPathForSize(t *testing.T) {
	got, err := ModelPathForSize("/models", "large-v2")
	if err != nil {
		t.Fatalf("ModelPathForSize: %v", err)
	}
	if want := filepath.Join("/models", "ggml-large-v2.bin"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err := ModelPathForSize("/models", "enormous"); err == nil {
		t.Error("expected error for unknown size preset")
	}

	got, err = ModelPathForSize("/models", "")
	if err != nil {
		t.Fatalf("ModelPathForSize default: %v", err)
	}
	if want := filepath.Join("/models", "ggml-small.bin"); got != want {
		t.Errorf("default size: got %q, want %q", got, want)
	}
}
