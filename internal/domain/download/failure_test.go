package download

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify_KnownKinds(t *testing.T) {
	cases := []struct {
		text string
		want ErrorKind
	}{
		{"ERROR: [youtube] dQw4w9WgXcQ: Sign in to confirm you're not a bot. Use --cookies", KindBotDetection},
		{"Sign in to confirm you’re not a bot", KindBotDetection},
		{"ERROR: unable to download video data: HTTP Error 429: Too Many Requests", KindRateLimited},
		{"ERROR: [youtube] abc: Video unavailable", KindUnavailable},
		{"This video is not available", KindUnavailable},
		{"ERROR: [youtube] abc: Private video. Sign in if you've been granted access", KindUnavailable},
		{"ERROR: [youtube] abc: Failed to extract any player response", KindExtraction},
		{"ERROR: Unable to extract uploader id", KindExtraction},
	}

	for _, tc := range cases {
		got := ClassifyText(tc.text)
		if got.Kind != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.text, tc.want, got.Kind)
		}
		if got.Message == "" || got.Message == tc.text {
			t.Fatalf("%q: expected remediation message, got %q", tc.text, got.Message)
		}
		if got.Raw != tc.text {
			t.Fatalf("%q: expected raw text to be kept, got %q", tc.text, got.Raw)
		}
	}
}

func TestClassify_UnknownSurfacesRawText(t *testing.T) {
	got := Classify(errors.New("disk quota exceeded"))
	if got.Kind != KindUnknown {
		t.Fatalf("expected unknown, got %s", got.Kind)
	}
	if got.Message != "disk quota exceeded" {
		t.Fatalf("expected raw message, got %q", got.Message)
	}
}

func TestClassify_KeepsWrappedFailure(t *testing.T) {
	err := fmt.Errorf("stage download: %w", MissingOutput())
	got := Classify(err)
	if got.Kind != KindMissingOutput {
		t.Fatalf("expected missing-output, got %s", got.Kind)
	}
}

func TestClassify_WrappedTextStillMatches(t *testing.T) {
	err := fmt.Errorf("fetch metadata: %w", errors.New("HTTP Error 429"))
	if got := Classify(err); got.Kind != KindRateLimited {
		t.Fatalf("expected rate-limited, got %s", got.Kind)
	}
}
