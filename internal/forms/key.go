package forms

import (
	"fmt"
	"time"

	"github.com/rendis/caseflow/pkg/schema"
)

// keyTimestampLayout renders submission timestamps inside content keys and
// index documents. Second resolution: two submissions by the same person to
// the same form within one second share a key and the later one is skipped
// by the existence check.
const keyTimestampLayout = "20060102T150405"

// ContentKey derives the deterministic storage key for a submission. The key
// doubles as the idempotency token: identical logical submissions always map
// to the same key.
func ContentKey(businessKey, formName, submittedBy string, submitted time.Time) string {
	return fmt.Sprintf("%s/%s/%s-%s.json",
		businessKey, formName, submittedBy, submitted.Format(keyTimestampLayout))
}

// KeyTimestamp renders a submission time the way content keys do.
func KeyTimestamp(t time.Time) string {
	return t.Format(keyTimestampLayout)
}

var submissionDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseSubmissionDate parses the submissionDate field of a form document.
func ParseSubmissionDate(s string) (time.Time, error) {
	for _, layout := range submissionDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, schema.NewErrorf(schema.ErrCodeValidation, "unparseable submission date %q", s)
}
