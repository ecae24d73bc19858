package forms

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/caseflow/pkg/schema"
)

// submissionSchemaJSON is the minimal shape a persistable submission must
// have. Documents failing it carry nothing to persist; they are skipped,
// not failed.
const submissionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://caseflow.dev/schemas/submission.json",
  "type": "object",
  "required": ["form"],
  "properties": {
    "form": {
      "type": "object",
      "required": ["name", "submittedBy", "submissionDate"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "submittedBy": { "type": "string", "minLength": 1 },
        "submissionDate": { "type": "string", "minLength": 1 },
        "formVersionId": { "type": "string" },
        "title": { "type": "string" }
      }
    }
  }
}`

var submissionSchema = mustCompileSubmissionSchema()

func mustCompileSubmissionSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(submissionSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("unmarshal submission schema: %v", err))
	}
	if err := c.AddResource("https://caseflow.dev/schemas/submission.json", doc); err != nil {
		panic(fmt.Sprintf("add submission schema resource: %v", err))
	}
	compiled, err := c.Compile("https://caseflow.dev/schemas/submission.json")
	if err != nil {
		panic(fmt.Sprintf("compile submission schema: %v", err))
	}
	return compiled
}

// ValidateSubmission checks a form document against the submission schema.
func ValidateSubmission(form string) error {
	var doc any
	if err := json.Unmarshal([]byte(form), &doc); err != nil {
		return schema.NewError(schema.ErrCodeValidation, "form is not valid JSON").WithCause(err)
	}
	if err := submissionSchema.Validate(doc); err != nil {
		return schema.NewError(schema.ErrCodeValidation, "form does not match submission shape").WithCause(err)
	}
	return nil
}
