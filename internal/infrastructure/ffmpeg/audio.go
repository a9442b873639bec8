package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Transcoder wraps ffmpeg/ffprobe calls used to turn downloaded audio streams
// into the configured audio format.
type Transcoder struct {
	FFmpegPath  string
	FFprobePath string
}

// NewTranscoder creates an ffmpeg adapter. Empty paths fall back to PATH lookup.
func NewTranscoder(ffmpegPath string) *Transcoder {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{FFmpegPath: ffmpegPath, FFprobePath: probePathFor(ffmpegPath)}
}

func probePathFor(ffmpegPath string) string {
	if i := strings.LastIndex(ffmpegPath, "ffmpeg"); i >= 0 {
		return ffmpegPath[:i] + "ffprobe" + ffmpegPath[i+len("ffmpeg"):]
	}
	return "ffprobe"
}

// ExtractAudio converts inputPath into outputPath with the given codec format
// (mp3, m4a, opus...) and bitrate such as "192K". Duration lookup and
// progress parsing only happen when onProgress is set.
func (t *Transcoder) ExtractAudio(ctx context.Context, inputPath, outputPath, format, bitrate string, onProgress func(int)) error {
	tmpPath := outputPath + ".tmp"
	_ = os.Remove(tmpPath)

	withProgress := onProgress != nil
	cmd := exec.CommandContext(ctx, t.FFmpegPath, audioArgs(inputPath, tmpPath, format, bitrate, withProgress)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	var err error
	if withProgress {
		err = t.runWithProgress(ctx, cmd, inputPath, onProgress)
	} else {
		err = cmd.Run()
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	if withProgress {
		onProgress(100)
	}

	_ = os.Remove(outputPath)
	return os.Rename(tmpPath, outputPath)
}

func (t *Transcoder) runWithProgress(ctx context.Context, cmd *exec.Cmd, inputPath string, onProgress func(int)) error {
	duration, _ := t.probeDuration(ctx, inputPath)
	totalMs := int64(duration * 1000)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	lastProgress := 0
	for scanner.Scan() {
		percent, ok := parseProgressLine(scanner.Text(), totalMs)
		if !ok || percent <= lastProgress {
			continue
		}
		lastProgress = percent
		onProgress(percent)
	}
	return cmd.Wait()
}

func audioArgs(inputPath, outputPath, format, bitrate string, withProgress bool) []string {
	args := []string{"-y", "-i", inputPath, "-vn", "-sn", "-map", "0:a:0"}
	if withProgress {
		args = append(args, "-progress", "pipe:1")
	}
	args = append(args, "-nostats")
	switch strings.ToLower(format) {
	case "mp3":
		args = append(args, "-c:a", "libmp3lame")
	case "m4a", "aac":
		args = append(args, "-c:a", "aac")
	case "opus":
		args = append(args, "-c:a", "libopus")
	case "flac":
		args = append(args, "-c:a", "flac")
	case "wav":
		args = append(args, "-c:a", "pcm_s16le")
	}
	if bitrate != "" && !isLossless(format) {
		args = append(args, "-b:a", strings.ToLower(bitrate))
	}
	return append(args, "-f", muxerFor(format), outputPath)
}

func isLossless(format string) bool {
	f := strings.ToLower(format)
	return f == "flac" || f == "wav"
}

func muxerFor(format string) string {
	switch strings.ToLower(format) {
	case "m4a", "aac":
		return "ipod"
	case "opus":
		return "opus"
	case "":
		return "mp3"
	default:
		return strings.ToLower(format)
	}
}

// parseProgressLine reads one "-progress" key=value line and returns a
// percentage capped at 99 until ffmpeg exits.
func parseProgressLine(line string, totalMs int64) (int, bool) {
	if totalMs <= 0 {
		return 0, false
	}
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok || key != "out_time_ms" {
		return 0, false
	}
	// out_time_ms is reported in microseconds.
	us, err := strconv.ParseInt(value, 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	percent := int(float64(us) / 1000 / float64(totalMs) * 100)
	if percent > 99 {
		percent = 99
	}
	return percent, true
}

func (t *Transcoder) probeDuration(ctx context.Context, inputPath string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=nokey=1:noprint_wrappers=1",
		inputPath,
	}
	out, err := exec.CommandContext(ctx, t.FFprobePath, args...).Output()
	if err != nil {
		return 0, err
	}
	value := strings.TrimSpace(string(out))
	if value == "" {
		return 0, fmt.Errorf("duration missing")
	}
	return strconv.ParseFloat(value, 64)
}
