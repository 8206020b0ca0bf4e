package event

import (
	"strings"
	"time"

	"poshook/internal/constants"
)

const (
	StatusNew     = "New"
	StatusClosed  = "Closed"
	StatusDeleted = "Deleted"
)

var knownStatuses = []string{StatusNew, StatusClosed, StatusDeleted}

// CanonicalStatus returns the exact spelling of a status the classifier
// matches on, whatever case the host used. Unknown statuses pass through
// trimmed.
func CanonicalStatus(status string) string {
	status = strings.TrimSpace(status)
	for _, known := range knownStatuses {
		if strings.EqualFold(status, known) {
			return known
		}
	}
	return status
}

// Classifier derives the event kind from status and timing. The host sends
// the same notification for creation, updates and closure, so creation is
// inferred from a short window after the order was opened.
type Classifier struct {
	CreatedWindow time.Duration
}

func NewClassifier(window time.Duration) Classifier {
	return Classifier{CreatedWindow: window}
}

func DefaultClassifier() Classifier {
	return Classifier{CreatedWindow: constants.DefaultCreatedWindow}
}

// Classify is pure; rules are evaluated in order and the first match wins.
// Statuses compare exactly; the normalizer canonicalizes them first.
func (c Classifier) Classify(status string, openTime *time.Time, now time.Time) Kind {
	switch {
	case status == StatusClosed, status == StatusDeleted:
		return KindDeleted
	case status == StatusNew && openTime != nil && now.Sub(*openTime) <= c.CreatedWindow:
		return KindCreated
	default:
		return KindStatusChanged
	}
}

// Classify applies the default five second creation window.
func Classify(status string, openTime *time.Time, now time.Time) Kind {
	return DefaultClassifier().Classify(status, openTime, now)
}
