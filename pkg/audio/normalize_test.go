package audio

import (
	"testing"
)

func TestConformant(t *testing.T) {
	tests := []struct {
		name string
		info Info
		path string
		want bool
	}{
		{
			name: "canonical wav",
			info: Info{SampleRate: 16000, Channels: 1, Codec: "pcm_s16le"},
			path: "consult.wav",
			want: true,
		},
		{
			name: "uppercase extension",
			info: Info{SampleRate: 16000, Channels: 1, Codec: "pcm_s16le"},
			path: "consult.WAV",
			want: true,
		},
		{
			name: "stereo",
			info: Info{SampleRate: 16000, Channels: 2, Codec: "pcm_s16le"},
			path: "consult.wav",
			want: false,
		},
		{
			name: "wrong sample rate",
			info: Info{SampleRate: 44100, Channels: 1, Codec: "pcm_s16le"},
			path: "consult.wav",
			want: false,
		},
		{
			name: "compressed codec",
			info: Info{SampleRate: 16000, Channels: 1, Codec: "aac"},
			path: "consult.m4a",
			want: false,
		},
		{
			name: "pcm data in non-wav container",
			info: Info{SampleRate: 16000, Channels: 1, Codec: "pcm_s16le"},
			path: "consult.mkv",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Conformant(tt.info, tt.path); got != tt.want {
				t.Errorf("Conformant(%+v, %q) = %v, want %v", tt.info, tt.path, got, tt.want)
			}
		})
	}
}

func TestSiblingProbe(t *testing.T) {
	tests := []struct {
		ffmpeg string
		want   string
	}{
		{"/usr/bin/ffmpeg", "/usr/bin/ffprobe"},
		{"/opt/tools/ffmpeg.exe", "/opt/tools/ffprobe.exe"},
	}
	for _, tt := range tests {
		if got := siblingProbe(tt.ffmpeg); got != tt.want {
			t.Errorf("siblingProbe(%q) = %q, want %q", tt.ffmpeg, got, tt.want)
		}
	}
}

func TestLastLine(t *testing.T) {
	in := "frame=  100\nsize=  42kB\n\nInvalid data found when processing input\n\n"
	want := "Invalid data found when processing input"
	if got := lastLine(in); got != want {
		t.Errorf("lastLine = %q, want %q", got, want)
	}
	if got := lastLine(""); got != "" {
		t.Errorf("lastLine(empty) = %q, want empty", got)
	}
}

func TestNewNormalizerMissingConverter(t *testing.T) {
	t.Setenv(EnvFFmpegPath, "/nonexistent/ffmpeg")
	if _, err := NewNormalizer(t.TempDir()); err == nil {
		t.Fatal("expected error for missing converter binary")
	}
}
