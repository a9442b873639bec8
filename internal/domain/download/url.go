package download

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidURL     = errors.New("invalid url")
	ErrEmptyURL       = fmt.Errorf("%w: url is required", ErrInvalidURL)
	ErrUnsupportedURL = fmt.Errorf("%w: only youtube.com and youtu.be links are supported", ErrInvalidURL)
	ErrMissingVideoID = fmt.Errorf("%w: link does not contain a video id", ErrInvalidURL)
)

const canonicalWatchURL = "https://www.youtube.com/watch?v="

var (
	hostPattern = regexp.MustCompile(`(?i)^https?://(?:(?:www|m|music)\.)?(?:youtube\.com|youtube-nocookie\.com|youtu\.be)(?:[/?#]|$)`)

	idPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^https?://(?:(?:www|m|music)\.)?youtube\.com/watch/?\?(?:[^#]*&)?v=([A-Za-z0-9_-]{11})(?:[&#]|$)`),
		regexp.MustCompile(`(?i)^https?://youtu\.be/([A-Za-z0-9_-]{11})(?:[/?#]|$)`),
		regexp.MustCompile(`(?i)^https?://(?:(?:www|m|music)\.)?(?:youtube\.com|youtube-nocookie\.com)/(?:embed|v|shorts|live)/([A-Za-z0-9_-]{11})(?:[/?#]|$)`),
	}
)

// VideoRef is an accepted media link.
type VideoRef struct {
	ID        string
	URL       string
	Canonical string
}

// ValidateURL accepts watch, short-link, embed and mobile links and extracts
// the 11 character video id. Rejections wrap ErrInvalidURL.
func ValidateURL(raw string) (VideoRef, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return VideoRef{}, ErrEmptyURL
	}
	if !hostPattern.MatchString(value) {
		return VideoRef{}, ErrUnsupportedURL
	}
	for _, pattern := range idPatterns {
		if m := pattern.FindStringSubmatch(value); m != nil {
			return VideoRef{ID: m[1], URL: value, Canonical: canonicalWatchURL + m[1]}, nil
		}
	}
	return VideoRef{}, ErrMissingVideoID
}

// IsValidationError reports whether err is a URL rejection.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidURL)
}
