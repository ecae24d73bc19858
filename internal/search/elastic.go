package search

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/rendis/caseflow/pkg/schema"
)

// ElasticIndex writes documents to Elasticsearch.
type ElasticIndex struct {
	client *elasticsearch.Client
}

// NewElasticIndex wraps an Elasticsearch client.
func NewElasticIndex(client *elasticsearch.Client) *ElasticIndex {
	return &ElasticIndex{client: client}
}

func (e *ElasticIndex) Index(ctx context.Context, indexName, docID string, body []byte) error {
	res, err := e.client.Index(indexName, bytes.NewReader(body),
		e.client.Index.WithDocumentID(url.PathEscape(docID)),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeIndex, "index %q unreachable", indexName).WithCause(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		code := schema.ErrCodeIndexRejected
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
			code = schema.ErrCodeIndex
		}
		return schema.NewErrorf(code, "index %q returned %s: %s", indexName, res.Status(), snippet)
	}
	return nil
}

var _ Index = (*ElasticIndex)(nil)
