package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoArtifact means a job directory holds no finished file.
var ErrNoArtifact = errors.New("no artifact in job directory")

// Extensions written by backends while a download is still in progress.
var partialExts = map[string]bool{
	".part":  true,
	".ytdl":  true,
	".temp":  true,
	".tmp":   true,
	".json":  true,
	".frag":  true,
	".lock":  true,
	".webp":  true,
	".jpg":   true,
	".png":   true,
	".vtt":   true,
	".srt":   true,
	".sbv":   true,
	".ass":   true,
	".lrc":   true,
	".m3u8":  true,
	".dash":  true,
	".mhtml": true,
}

// Workspace gives every job its own directory under Root.
type Workspace struct {
	Root string
}

// NewWorkspace creates a filesystem adapter rooted at dir.
func NewWorkspace(root string) *Workspace {
	return &Workspace{Root: root}
}

// EnsureDirs creates the workspace root.
func (w *Workspace) EnsureDirs() error {
	return os.MkdirAll(w.Root, 0o755)
}

// JobDir returns the directory reserved for a job.
func (w *Workspace) JobDir(jobID string) (string, error) {
	id := strings.TrimSpace(jobID)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	dir := filepath.Join(w.Root, id)
	if !isWithinDir(w.Root, dir) {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	return dir, nil
}

// Prepare creates an empty directory for the job.
func (w *Workspace) Prepare(jobID string) (string, error) {
	dir, err := w.JobDir(jobID)
	if err != nil {
		return "", err
	}
	_ = os.RemoveAll(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Locate finds the artifact of a job. A backend-reported hint is trusted only
// when it is a regular file inside the job directory; otherwise the largest
// finished file in the directory wins.
func (w *Workspace) Locate(jobID, hint string) (string, error) {
	dir, err := w.JobDir(jobID)
	if err != nil {
		return "", err
	}

	if hint != "" {
		if !filepath.IsAbs(hint) {
			hint = filepath.Join(dir, hint)
		}
		if isWithinDir(dir, hint) && isFinishedFile(hint) {
			return hint, nil
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoArtifact
		}
		return "", err
	}

	type candidate struct {
		path string
		size int64
	}
	names := make(map[string]int, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || IsPartialFile(entry.Name()) {
			continue
		}
		names[stem(entry.Name())]++
		if s, ok := formatStreamStem(entry.Name()); ok {
			names[s]++
		}
	}
	found := make([]candidate, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || IsPartialFile(entry.Name()) {
			continue
		}
		// Intermediate streams are skipped only when their title has siblings.
		if s, ok := formatStreamStem(entry.Name()); ok && names[s] > 1 {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		found = append(found, candidate{path: filepath.Join(dir, entry.Name()), size: info.Size()})
	}
	if len(found) == 0 {
		return "", ErrNoArtifact
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].size != found[j].size {
			return found[i].size > found[j].size
		}
		return found[i].path < found[j].path
	})
	return found[0].path, nil
}

// Remove deletes the job directory and everything in it.
func (w *Workspace) Remove(jobID string) error {
	dir, err := w.JobDir(jobID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// IsPartialFile reports whether name looks like an unfinished or sidecar file.
func IsPartialFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return partialExts[strings.ToLower(filepath.Ext(name))]
}

// formatStreamStem reports whether name has the shape yt-dlp uses for a
// single stream before merging (title.f137.mp4) and returns the title part.
func formatStreamStem(name string) (string, bool) {
	base := stem(name)
	i := strings.LastIndex(base, ".f")
	if i <= 0 {
		return "", false
	}
	rest := base[i+2:]
	if rest == "" || strings.Trim(rest, "0123456789-") != "" {
		return "", false
	}
	return base[:i], true
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func isFinishedFile(path string) bool {
	if IsPartialFile(filepath.Base(path)) {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func isWithinDir(basePath, targetPath string) bool {
	baseAbs, err := filepath.Abs(basePath)
	if err != nil {
		return false
	}
	targetAbs, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(baseAbs, targetAbs)
	if err != nil {
		return false
	}
	sep := string(os.PathSeparator)
	if rel == ".." || strings.HasPrefix(rel, ".."+sep) {
		return false
	}
	return true
}
