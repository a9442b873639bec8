package native

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	appdownload "ytfetch/internal/application/download"
	"ytfetch/internal/domain/download"

	"github.com/kkdai/youtube/v2"
)

func TestToCandidates_MapsStreams(t *testing.T) {
	formats := youtube.FormatList{
		{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Height: 360, AudioChannels: 2, Bitrate: 500},
		{ItagNo: 137, MimeType: `video/mp4; codecs="avc1.640028"`, Height: 1080, Bitrate: 4000},
		{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, AudioChannels: 2, AverageBitrate: 160},
		{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, AudioChannels: 2, Bitrate: 128},
	}

	got := toCandidates(formats)
	if len(got) != 4 {
		t.Fatalf("expected 4 candidates, got %d", len(got))
	}
	if !got[0].HasVideo || !got[0].HasAudio || got[0].Ext != "mp4" {
		t.Fatalf("unexpected progressive candidate %+v", got[0])
	}
	if !got[1].HasVideo || got[1].HasAudio {
		t.Fatalf("expected video-only candidate, got %+v", got[1])
	}
	if got[2].HasVideo || !got[2].HasAudio || got[2].Bitrate != 160 || got[2].Ext != "webm" {
		t.Fatalf("unexpected audio candidate %+v", got[2])
	}

	chosen, _, ok := download.SelectFormat("1080p", false).Select(got)
	if !ok || chosen.ID != "0" {
		t.Fatalf("expected progressive 360p stream for 1080p request, got %+v", chosen)
	}
	chosen, _, ok = download.SelectFormat("", true).Select(got)
	if !ok || chosen.ID != "2" {
		t.Fatalf("expected opus audio stream, got %+v", chosen)
	}
}

func TestItagCandidates_ListsHeights(t *testing.T) {
	formats := youtube.FormatList{
		{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Height: 360, AudioChannels: 2},
		{ItagNo: 137, MimeType: `video/mp4; codecs="avc1.640028"`, Height: 1080},
		{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, AudioChannels: 2},
	}
	got := itagCandidates(formats)
	if got[0].ID != "18" || got[1].ID != "137" || got[2].ID != "140" {
		t.Fatalf("expected itag ids, got %+v", got)
	}
	heights := download.AvailableHeights(got)
	if len(heights) != 2 || heights[0] != 1080 || heights[1] != 360 {
		t.Fatalf("unexpected heights %v", heights)
	}
}

func TestMimeExt(t *testing.T) {
	cases := map[string]string{
		`video/mp4; codecs="avc1"`: "mp4",
		`audio/mp4; codecs="mp4a"`: "m4a",
		"audio/webm":               "webm",
		"video/3gpp":               "3gp",
		"application/x-unknown":    "bin",
	}
	for in, want := range cases {
		if got := mimeExt(in); got != want {
			t.Fatalf("%q: expected %q, got %q", in, want, got)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"Artist - Song (Official Video)": "Artist - Song (Official Video)",
		`AC/DC: Back "In" Black?`:        "AC_DC_ Back _In_ Black_",
		"  ..  ":                         "video",
		"":                               "video",
		"line\nbreak":                    "line_break",
	}
	for in, want := range cases {
		if got := SanitizeFileName(in); got != want {
			t.Fatalf("%q: expected %q, got %q", in, want, got)
		}
	}
	if got := SanitizeFileName(strings.Repeat("a", 500)); len([]rune(got)) != maxNameRunes {
		t.Fatalf("expected name to be truncated to %d runes, got %d", maxNameRunes, len([]rune(got)))
	}
}

func TestDescribeError(t *testing.T) {
	err := describeError(youtube.ErrVideoPrivate)
	if got := download.Classify(err); got.Kind != download.KindUnavailable {
		t.Fatalf("expected unavailable, got %s (%v)", got.Kind, err)
	}
	if !errors.Is(err, youtube.ErrVideoPrivate) {
		t.Fatalf("expected original error to be wrapped")
	}

	err = describeError(errors.New("unexpected status code: 429"))
	if got := download.Classify(err); got.Kind != download.KindRateLimited {
		t.Fatalf("expected rate-limited, got %s", got.Kind)
	}
}

func TestWriteStream_ReportsProgressAndRenames(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "clip.mp4")

	var reports []appdownload.ProgressReport
	err := writeStream(context.Background(), target, strings.NewReader("0123456789"), 10, func(r appdownload.ProgressReport) {
		reports = append(reports, r)
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(reports) == 0 || reports[len(reports)-1].DownloadedBytes != 10 || reports[len(reports)-1].TotalBytes != 10 {
		t.Fatalf("unexpected progress reports %+v", reports)
	}
	if _, err := os.Stat(target + ".part"); !os.IsNotExist(err) {
		t.Fatalf("expected part file to be renamed")
	}
	data, _ := os.ReadFile(target)
	if string(data) != "0123456789" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestWriteStream_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "clip.mp4")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := writeStream(ctx, target, strings.NewReader("data"), 4, nil); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("expected no artifact after cancel")
	}
}

func TestUserAgentTransport(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("User-Agent"))
		mu.Unlock()
	}))
	defer srv.Close()

	client := &http.Client{Transport: &userAgentTransport{base: http.DefaultTransport, userAgent: "ua-test"}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "explicit")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "ua-test" || seen[1] != "explicit" {
		t.Fatalf("unexpected user agents %v", seen)
	}
}
