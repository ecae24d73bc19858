package forms

import (
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/rendis/caseflow/pkg/schema"
)

// Submission holds the descriptive fields of one form-submission document.
type Submission struct {
	FormName       string
	FormVersionID  string
	Title          string
	SubmittedBy    string
	SubmissionDate string
}

// Queries locating the submission fields inside a form document.
const (
	queryFormName       = ".form.name"
	queryFormVersionID  = ".form.formVersionId"
	queryTitle          = ".form.title"
	querySubmittedBy    = ".form.submittedBy"
	querySubmissionDate = ".form.submissionDate"
)

// ParseSubmission extracts the submission fields from a form document.
// Name, submitter and submission date are required; the rest default to "".
func ParseSubmission(form string) (*Submission, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(form), &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "form is not valid JSON").WithCause(err)
	}
	sub := &Submission{
		FormName:       stringAt(doc, queryFormName),
		FormVersionID:  stringAt(doc, queryFormVersionID),
		Title:          stringAt(doc, queryTitle),
		SubmittedBy:    stringAt(doc, querySubmittedBy),
		SubmissionDate: stringAt(doc, querySubmissionDate),
	}
	if sub.FormName == "" || sub.SubmittedBy == "" || sub.SubmissionDate == "" {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"form is missing name, submittedBy or submissionDate")
	}
	return sub, nil
}

var queryCache struct {
	mu    sync.RWMutex
	codes map[string]*gojq.Code
}

// stringAt evaluates a jq query against the document and returns its first
// string output, or "" when the path is absent or not a string.
func stringAt(doc map[string]any, query string) string {
	code, err := getOrCompile(query)
	if err != nil {
		return ""
	}
	iter := code.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func getOrCompile(query string) (*gojq.Code, error) {
	queryCache.mu.RLock()
	if code, ok := queryCache.codes[query]; ok {
		queryCache.mu.RUnlock()
		return code, nil
	}
	queryCache.mu.RUnlock()

	queryCache.mu.Lock()
	defer queryCache.mu.Unlock()
	if code, ok := queryCache.codes[query]; ok {
		return code, nil
	}
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, err
	}
	code, err := gojq.Compile(parsed,
		// Sandbox: block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, err
	}
	if queryCache.codes == nil {
		queryCache.codes = make(map[string]*gojq.Code)
	}
	queryCache.codes[query] = code
	return code, nil
}
