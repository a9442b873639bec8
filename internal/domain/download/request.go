package download

import (
	"strconv"
	"strings"
)

// Request is what a caller submits.
type Request struct {
	URL       string
	Quality   string
	AudioOnly bool
}

// QualityMode is the parsed form of a quality string.
type QualityMode string

const (
	QualityBest   QualityMode = "best"
	QualityWorst  QualityMode = "worst"
	QualityHeight QualityMode = "height"
)

// Quality is a parsed quality preference. Height is set only for QualityHeight.
type Quality struct {
	Mode   QualityMode
	Height int
}

// ParseQuality understands "best", "worst" and "<n>p". Anything else,
// including the empty string, means best.
func ParseQuality(raw string) Quality {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "worst":
		return Quality{Mode: QualityWorst}
	case "", "best":
		return Quality{Mode: QualityBest}
	}
	if digits, ok := strings.CutSuffix(value, "p"); ok {
		if n, err := strconv.Atoi(digits); err == nil && n > 0 {
			return Quality{Mode: QualityHeight, Height: n}
		}
	}
	return Quality{Mode: QualityBest}
}

func (q Quality) String() string {
	if q.Mode == QualityHeight {
		return strconv.Itoa(q.Height) + "p"
	}
	return string(q.Mode)
}
