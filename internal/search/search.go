// Package search indexes submission summaries for discovery by case workers.
package search

import (
	"context"
	"strings"
	"time"
)

// Index writes one document into a named index.
type Index interface {
	Index(ctx context.Context, indexName, docID string, body []byte) error
}

// IndexName derives the target index from the business key. Keys shaped
// "segment-INDEX-segment" route to the middle segment; anything else lands
// in a daily index.
func IndexName(businessKey string, now time.Time) string {
	parts := strings.Split(businessKey, "-")
	if len(parts) == 3 {
		return parts[1]
	}
	return now.Format("20060102")
}
