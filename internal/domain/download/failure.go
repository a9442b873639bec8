package download

import (
	"errors"
	"strings"
)

// ErrorKind groups backend failures by their likely cause.
type ErrorKind string

const (
	KindBotDetection  ErrorKind = "bot-detection-suspected"
	KindRateLimited   ErrorKind = "rate-limited"
	KindUnavailable   ErrorKind = "unavailable"
	KindExtraction    ErrorKind = "extraction-failed"
	KindMissingOutput ErrorKind = "missing-output"
	KindUnknown       ErrorKind = "unknown"
)

// Failure is a classified job error. Message is what users see; Raw keeps the
// backend text for logs.
type Failure struct {
	Kind    ErrorKind
	Message string
	Raw     string
}

func (f Failure) Error() string {
	return f.Message
}

type failureRule struct {
	kind    ErrorKind
	needles []string
	message string
}

// Matching is by substring on backend error text, so classification is
// advisory and may drift as upstream wording changes.
var failureRules = []failureRule{
	{
		kind: KindBotDetection,
		needles: []string{
			"sign in to confirm you're not a bot",
			"sign in to confirm you’re not a bot",
			"confirm you're not a bot",
			"confirm you’re not a bot",
		},
		message: "YouTube is asking to confirm this is not a bot. Wait a few minutes and try again, or try a different video.",
	},
	{
		kind:    KindRateLimited,
		needles: []string{"http error 429", "too many requests"},
		message: "Too many requests were sent to YouTube. Please wait a while before trying again.",
	},
	{
		kind: KindUnavailable,
		needles: []string{
			"video unavailable",
			"this video is not available",
			"private video",
			"this video is private",
			"video has been removed",
			"not available in your country",
		},
		message: "This video is unavailable. It may be private, removed, or restricted in your region.",
	},
	{
		kind: KindExtraction,
		needles: []string{
			"failed to extract any player response",
			"unable to extract",
			"failed to extract",
			"nsig extraction failed",
			"signature extraction failed",
		},
		message: "Could not read the video page. YouTube may have changed its layout; updating the downloader usually fixes this.",
	},
}

// Classify maps a backend error to a Failure. Unrecognized errors keep their
// raw text as the user-facing message.
func Classify(err error) Failure {
	if err == nil {
		return Failure{Kind: KindUnknown, Message: "unknown error"}
	}
	var f Failure
	if errors.As(err, &f) {
		return f
	}
	return ClassifyText(err.Error())
}

// ClassifyText classifies a raw backend message.
func ClassifyText(text string) Failure {
	raw := strings.TrimSpace(text)
	lower := strings.ToLower(raw)
	for _, rule := range failureRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return Failure{Kind: rule.kind, Message: rule.message, Raw: raw}
			}
		}
	}
	if raw == "" {
		raw = "unknown error"
	}
	return Failure{Kind: KindUnknown, Message: raw, Raw: raw}
}

// MissingOutput is the failure for a backend run that produced no file.
func MissingOutput() Failure {
	return Failure{
		Kind:    KindMissingOutput,
		Message: "The download finished but no output file was found.",
	}
}
