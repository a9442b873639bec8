package http

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"ytfetch/internal/infrastructure/objectstore"
)

// serveArtifact sends a finished download as an attachment, honouring a
// single "bytes=" range.
func serveArtifact(w http.ResponseWriter, r *http.Request, fullPath, name string) {
	file, err := os.Open(fullPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not ready")
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fileSize := info.Size()
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", objectstore.ContentType(name))
	w.Header().Set("Content-Disposition", attachmentHeader(name))

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(fileSize, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = io.Copy(w, file)
		}
		return
	}

	start, end, ok := parseRange(rangeHeader, fileSize)
	if !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", fileSize))
		http.Error(w, "Invalid range", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	contentLength := end - start + 1
	w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, fileSize))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = file.Seek(start, io.SeekStart)
	_, _ = io.CopyN(w, file, contentLength)
}

// parseRange understands "bytes=a-", "bytes=a-b" and the suffix form "bytes=-n".
func parseRange(header string, size int64) (int64, int64, bool) {
	ranges, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(ranges, ",") || size == 0 {
		return 0, 0, false
	}
	first, last, ok := strings.Cut(ranges, "-")
	if !ok {
		return 0, 0, false
	}

	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}
	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		if end >= size {
			end = size - 1
		}
	}
	if start > end {
		return 0, 0, false
	}
	return start, end, true
}

func attachmentHeader(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
