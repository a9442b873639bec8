package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	appdownload "ytfetch/internal/application/download"
	"ytfetch/internal/domain/download"
)

func TestParseArgs_FlagsAroundURL(t *testing.T) {
	cases := [][]string{
		{"-q", "720p", "-a", "https://youtu.be/dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "--quality", "720p", "--audio-only"},
		{"-a", "https://youtu.be/dQw4w9WgXcQ", "-q=720p"},
	}
	for _, args := range cases {
		opts, err := parseArgs(args, io.Discard)
		if err != nil {
			t.Fatalf("%v: unexpected error %v", args, err)
		}
		if opts.url != "https://youtu.be/dQw4w9WgXcQ" || opts.quality != "720p" || !opts.audioOnly {
			t.Fatalf("%v: unexpected options %+v", args, opts)
		}
		if opts.outputDir != "downloads" {
			t.Fatalf("%v: expected default output dir, got %q", args, opts.outputDir)
		}
	}
}

func TestParseArgs_Defaults(t *testing.T) {
	opts, err := parseArgs(nil, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if opts.url != "" || opts.quality != "best" || opts.audioOnly || opts.backend != "" {
		t.Fatalf("unexpected defaults %+v", opts)
	}

	opts, err = parseArgs([]string{"--backend", "native", "-o", "out", "-v", "u"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if opts.backend != "native" || opts.outputDir != "out" || !opts.verbose || opts.url != "u" {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	if _, err := parseArgs([]string{"a", "b"}, io.Discard); err == nil {
		t.Fatalf("expected error for two URLs")
	}
	if _, err := parseArgs([]string{"--nope"}, io.Discard); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
	if _, err := parseArgs([]string{"-h"}, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
}

func TestReadURL(t *testing.T) {
	var out bytes.Buffer
	got, err := readURL(bufio.NewReader(strings.NewReader("  https://youtu.be/dQw4w9WgXcQ \n")), &out)
	if err != nil || got != "https://youtu.be/dQw4w9WgXcQ" {
		t.Fatalf("unexpected url %q (%v)", got, err)
	}
	if !strings.Contains(out.String(), "Enter YouTube URL") {
		t.Fatalf("expected prompt, got %q", out.String())
	}

	got, err = readURL(bufio.NewReader(strings.NewReader("no-newline")), io.Discard)
	if err != nil || got != "no-newline" {
		t.Fatalf("expected EOF input to be accepted, got %q (%v)", got, err)
	}
}

func TestChooseDownload(t *testing.T) {
	cases := map[string]menuItem{
		"1\n": {label: "Video (best quality)", quality: "best"},
		"2\n": {label: "Video (720p)", quality: "720p"},
		"3\n": {label: "Video (480p)", quality: "480p"},
		"4\n": {label: "Audio only", quality: "best", audioOnly: true},
		"\n":  {label: "Video (best quality)", quality: "best"},
		"9\n": {label: "Video (best quality)", quality: "best"},
		"abc": {label: "Video (best quality)", quality: "best"},
	}
	for input, want := range cases {
		got, err := chooseDownload(bufio.NewReader(strings.NewReader(input)), io.Discard)
		if err != nil || got != want {
			t.Fatalf("%q: expected %+v, got %+v (%v)", input, want, got, err)
		}
	}
}

func TestInteractivePromptsShareInput(t *testing.T) {
	var out bytes.Buffer
	in := bufio.NewReader(strings.NewReader("https://youtu.be/dQw4w9WgXcQ\n2\n"))

	url, err := readURL(in, &out)
	if err != nil || url != "https://youtu.be/dQw4w9WgXcQ" {
		t.Fatalf("unexpected url %q (%v)", url, err)
	}
	choice, err := chooseDownload(in, &out)
	if err != nil || choice.quality != "720p" || choice.audioOnly {
		t.Fatalf("expected 720p choice, got %+v (%v)", choice, err)
	}
	if !strings.Contains(out.String(), "4. Audio only") || !strings.Contains(out.String(), "Choose (1-4, default 1)") {
		t.Fatalf("expected menu, got %q", out.String())
	}
}

func TestPrintInfo(t *testing.T) {
	var out bytes.Buffer
	printInfo(&out, appdownload.Info{
		Metadata: download.Metadata{Title: "Clip", Uploader: "Someone", Duration: 3723},
		Formats: []download.Candidate{
			{ID: "18", Height: 360, HasVideo: true, HasAudio: true},
			{ID: "22", Height: 720, HasVideo: true, HasAudio: true},
			{ID: "140", HasAudio: true},
		},
	})
	got := out.String()
	for _, want := range []string{"Clip", "Someone", "01:02:03", "720p, 360p"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
}

func TestParseArgs_ListFlag(t *testing.T) {
	for _, args := range [][]string{{"-l", "u"}, {"u", "--list"}} {
		opts, err := parseArgs(args, io.Discard)
		if err != nil || !opts.list || opts.url != "u" {
			t.Fatalf("%v: unexpected options %+v (%v)", args, opts, err)
		}
	}
}

func TestRun_ListRejectsInvalidURL(t *testing.T) {
	t.Setenv("BACKEND", "native")
	if code := run([]string{"--list", "https://vimeo.com/1"}, strings.NewReader("")); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestRun_RejectsInvalidURL(t *testing.T) {
	t.Setenv("BACKEND", "native")
	if code := run([]string{"https://vimeo.com/1"}, strings.NewReader("")); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestMoveFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "video.mp4")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(t.TempDir(), "out")

	dest, err := moveFile(src, dir, "My Video.mp4")
	if err != nil {
		t.Fatalf("expected move to succeed, got %v", err)
	}
	if dest != filepath.Join(dir, "My Video.mp4") {
		t.Fatalf("unexpected destination %q", dest)
	}
	if data, err := os.ReadFile(dest); err != nil || string(data) != "data" {
		t.Fatalf("unexpected content %q (%v)", data, err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected source to be gone")
	}
}

func TestProgressPrinter(t *testing.T) {
	var out bytes.Buffer
	p := &progressPrinter{out: &out}

	p.update(download.Job{State: download.StatePending})
	p.update(download.Job{State: download.StateRunning, Title: "Clip", Uploader: "Someone", Duration: 75, Progress: 10})
	p.update(download.Job{State: download.StateRunning, Title: "Clip", Progress: 10})
	p.update(download.Job{State: download.StateRunning, Title: "Clip", Progress: 55.5})
	p.done()

	got := out.String()
	if strings.Count(got, "Title:") != 1 || !strings.Contains(got, "01:15") {
		t.Fatalf("expected metadata once, got %q", got)
	}
	if strings.Count(got, "[download]") != 2 || !strings.Contains(got, " 55.5%") {
		t.Fatalf("unexpected progress output %q", got)
	}
}
