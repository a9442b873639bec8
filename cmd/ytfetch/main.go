package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	appdownload "ytfetch/internal/application/download"
	"ytfetch/internal/bootstrap"
	"ytfetch/internal/config"
	"ytfetch/internal/domain/download"

	"github.com/mattn/go-colorable"
)

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorCyan   = "\x1b[36m"
)

type options struct {
	url       string
	quality   string
	audioOnly bool
	outputDir string
	backend   string
	verbose   bool
	list      bool
}

type menuItem struct {
	label     string
	quality   string
	audioOnly bool
}

var downloadMenu = []menuItem{
	{label: "Video (best quality)", quality: "best"},
	{label: "Video (720p)", quality: "720p"},
	{label: "Video (480p)", quality: "480p"},
	{label: "Audio only", quality: "best", audioOnly: true},
}

// parseArgs accepts flags both before and after the URL.
func parseArgs(args []string, errOut io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("ytfetch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&opts.quality, "q", "best", "Video quality: best, worst or a height such as 720p.")
	fs.StringVar(&opts.quality, "quality", "best", "Video quality: best, worst or a height such as 720p.")
	fs.BoolVar(&opts.audioOnly, "a", false, "Download audio only.")
	fs.BoolVar(&opts.audioOnly, "audio-only", false, "Download audio only.")
	fs.StringVar(&opts.outputDir, "o", "downloads", "Directory the finished file is moved to.")
	fs.StringVar(&opts.outputDir, "output-dir", "downloads", "Directory the finished file is moved to.")
	fs.StringVar(&opts.backend, "backend", "", "Extraction backend: ytdlp, native or fallback.")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose logging output.")
	fs.BoolVar(&opts.list, "l", false, "Show video info and available qualities, then exit.")
	fs.BoolVar(&opts.list, "list", false, "Show video info and available qualities, then exit.")
	fs.Usage = func() {
		fmt.Fprintln(errOut, "usage: ytfetch [flags] [url]")
		fs.PrintDefaults()
	}

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return options{}, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}

	switch len(positional) {
	case 0:
	case 1:
		opts.url = positional[0]
	default:
		return options{}, fmt.Errorf("expected one URL, got %d arguments", len(positional))
	}
	return opts, nil
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func readURL(in *bufio.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter YouTube URL: ")
	return readLine(in)
}

// chooseDownload shows the download menu. Empty or unknown answers pick the
// first entry.
func chooseDownload(in *bufio.Reader, out io.Writer) (menuItem, error) {
	fmt.Fprintln(out, "Select download type:")
	for i, item := range downloadMenu {
		fmt.Fprintf(out, "  %d. %s\n", i+1, item.label)
	}
	fmt.Fprintf(out, "Choose (1-%d, default 1): ", len(downloadMenu))
	line, err := readLine(in)
	if err != nil {
		return menuItem{}, err
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(downloadMenu) {
		n = 1
	}
	return downloadMenu[n-1], nil
}

func printInfo(out io.Writer, info appdownload.Info) {
	fmt.Fprintf(out, "%sTitle:%s    %s\n", colorCyan, colorReset, info.Metadata.Title)
	if info.Metadata.Uploader != "" {
		fmt.Fprintf(out, "%sUploader:%s %s\n", colorCyan, colorReset, info.Metadata.Uploader)
	}
	fmt.Fprintf(out, "%sDuration:%s %s\n", colorCyan, colorReset, download.FormatDuration(info.Metadata.Duration))

	heights := download.AvailableHeights(info.Formats)
	if len(heights) == 0 {
		return
	}
	labels := make([]string, len(heights))
	for i, h := range heights {
		labels[i] = strconv.Itoa(h) + "p"
	}
	fmt.Fprintf(out, "%sQualities:%s %s\n", colorCyan, colorReset, strings.Join(labels, ", "))
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin))
}

func run(args []string, stdin io.Reader) int {
	stdout := colorable.NewColorableStdout()
	stderr := colorable.NewColorableStderr()

	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s%v%s\n", colorRed, err, colorReset)
		return 2
	}
	input := bufio.NewReader(stdin)
	interactive := opts.url == ""
	if interactive {
		if opts.url, err = readURL(input, stdout); err != nil {
			fmt.Fprintf(stderr, "%sread url: %v%s\n", colorRed, err, colorReset)
			return 1
		}
	}

	workDir, err := os.MkdirTemp("", "ytfetch-")
	if err != nil {
		fmt.Fprintf(stderr, "%s%v%s\n", colorRed, err, colorReset)
		return 1
	}
	defer os.RemoveAll(workDir)

	cfg := config.Load()
	cfg.DownloadDir = workDir
	cfg.JobStore = "memory"
	cfg.MaxConcurrent = 1
	cfg.LogFormat = "text"
	cfg.LogLevel = "warn"
	if opts.verbose {
		cfg.LogLevel = "debug"
	}
	if opts.backend != "" {
		cfg.Backend = strings.ToLower(opts.backend)
	}
	logger := bootstrap.NewLogger(cfg, stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "%s%v%s\n", colorRed, err, colorReset)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Close(closeCtx)
	}()

	printer := &progressPrinter{out: stdout}
	if opts.list || interactive {
		info, err := app.Service.Inspect(ctx, opts.url)
		switch {
		case download.IsValidationError(err):
			fmt.Fprintf(stderr, "%sInvalid URL: %v%s\n", colorRed, err, colorReset)
			return 1
		case err != nil && opts.list:
			fmt.Fprintf(stderr, "%sFailed to get video info: %v%s\n", colorRed, err, colorReset)
			return 1
		case err != nil:
			fmt.Fprintf(stderr, "%sCould not load video info: %v%s\n", colorYellow, err, colorReset)
		default:
			printInfo(stdout, info)
			printer.announced = true
		}
		if opts.list {
			return 0
		}
	}
	if interactive {
		choice, err := chooseDownload(input, stdout)
		if err != nil {
			fmt.Fprintf(stderr, "%sread choice: %v%s\n", colorRed, err, colorReset)
			return 1
		}
		opts.quality, opts.audioOnly = choice.quality, choice.audioOnly
	}

	id, err := app.Service.Submit(ctx, download.Request{URL: opts.url, Quality: opts.quality, AudioOnly: opts.audioOnly})
	if download.IsValidationError(err) {
		fmt.Fprintf(stderr, "%sInvalid URL: %v%s\n", colorRed, err, colorReset)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s%v%s\n", colorRed, err, colorReset)
		return 1
	}

	job, err := app.Service.Wait(ctx, id, 500*time.Millisecond, printer.update)
	printer.done()
	if err != nil {
		fmt.Fprintf(stderr, "%sinterrupted: %v%s\n", colorYellow, err, colorReset)
		return 1
	}
	if job.State == download.StateFailed {
		fmt.Fprintf(stderr, "%sDownload failed (%s): %s%s\n", colorRed, job.ErrorKind, job.ErrorDetail, colorReset)
		return 1
	}

	artifact, err := app.Service.Artifact(ctx, id)
	if err != nil {
		fmt.Fprintf(stderr, "%s%v%s\n", colorRed, err, colorReset)
		return 1
	}
	dest, err := moveFile(artifact.Path, opts.outputDir, artifact.Name)
	if err != nil {
		fmt.Fprintf(stderr, "%ssave file: %v%s\n", colorRed, err, colorReset)
		return 1
	}
	fmt.Fprintf(stdout, "%sSaved to %s%s\n", colorGreen, dest, colorReset)
	return 0
}

type progressPrinter struct {
	out       io.Writer
	announced bool
	last      float64
	drawn     bool
}

func (p *progressPrinter) update(job download.Job) {
	if !p.announced && job.Title != "" {
		p.announced = true
		fmt.Fprintf(p.out, "%sTitle:%s    %s\n", colorCyan, colorReset, job.Title)
		if job.Uploader != "" {
			fmt.Fprintf(p.out, "%sUploader:%s %s\n", colorCyan, colorReset, job.Uploader)
		}
		fmt.Fprintf(p.out, "%sDuration:%s %s\n", colorCyan, colorReset, download.FormatDuration(job.Duration))
	}
	if (job.State != download.StateRunning && job.State != download.StateSucceeded) || job.Progress <= p.last {
		return
	}
	p.last = job.Progress
	p.drawn = true
	fmt.Fprintf(p.out, "\r[download] %5.1f%%", job.Progress)
}

func (p *progressPrinter) done() {
	if p.drawn {
		fmt.Fprintln(p.out)
	}
}

// moveFile places src into dir as name, copying when a rename crosses devices.
func moveFile(src, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(dir, filepath.Base(name))
	if err := os.Rename(src, dest); err == nil {
		return dest, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	_ = os.Remove(src)
	return dest, nil
}
