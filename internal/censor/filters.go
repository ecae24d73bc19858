package censor

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/rendis/caseflow/internal/engine"
	"github.com/rendis/caseflow/pkg/schema"
)

// Path shapes of the engine REST calls the chain recognizes, matched
// against engine-relative paths.
var (
	startPathRe    = regexp.MustCompile(`^process-definition/(?:key/([^/]+)|([^/]+))/(?:start|submit-form)$`)
	taskActionRe   = regexp.MustCompile(`^task/([^/]+)/(?:complete|submit-form|resolve)$`)
	patchPathRe    = regexp.MustCompile(`^(process-instance|task)/([^/]+)/(?:variables|localVariables)(?:/([^/]+))?$`)
	instancePathRe = regexp.MustCompile(`^variable-instance(?:/([^/]+))?$`)
)

// chain returns the fixed, ordered list of filter variants.
func chain() []filter {
	return []filter{
		{
			name:      "start-process-encrypt",
			direction: directionRequest,
			matches: func(method, path string) bool {
				return method == http.MethodPost && startPathRe.MatchString(path)
			},
			resolve: resolveStartDefinition,
			transform: func(_ context.Context, c *Censor, _ *http.Request, _ string, body []byte) ([]byte, error) {
				return rewriteVariablesUnder(body, "variables", c.sealVariable)
			},
		},
		{
			name:      "start-process-decrypt",
			direction: directionResponse,
			matches: func(method, path string) bool {
				return method == http.MethodPost && startPathRe.MatchString(path)
			},
			transform: func(_ context.Context, c *Censor, _ *http.Request, _ string, body []byte) ([]byte, error) {
				// The started instance echoes its variables; open them in
				// stringified mode so callers see plain JSON text.
				return rewriteVariablesUnder(body, "variables", c.openVariable(false))
			},
		},
		{
			name:      "complete-task-encrypt",
			direction: directionRequest,
			matches: func(method, path string) bool {
				return method == http.MethodPost && taskActionRe.MatchString(path)
			},
			resolve: resolveTaskDefinition(taskActionRe),
			transform: func(_ context.Context, c *Censor, _ *http.Request, _ string, body []byte) ([]byte, error) {
				return rewriteVariablesUnder(body, "variables", c.sealVariable)
			},
		},
		{
			name:      "patch-variables-encrypt",
			direction: directionRequest,
			matches: func(method, path string) bool {
				return (method == http.MethodPost || method == http.MethodPut) &&
					patchPathRe.MatchString(path)
			},
			resolve: resolvePatchDefinition,
			transform: func(_ context.Context, c *Censor, req *http.Request, _ string, body []byte) ([]byte, error) {
				if req.Method == http.MethodPost {
					return rewriteVariablesUnder(body, "modifications", c.sealVariable)
				}
				return rewriteSingleVariable(body, c.sealVariable)
			},
		},
		{
			name:      "get-variables-decrypt",
			direction: directionResponse,
			matches: func(method, path string) bool {
				return method == http.MethodGet &&
					(strings.Contains(path, "variables") || strings.Contains(path, "localVariables"))
			},
			transform: func(_ context.Context, c *Censor, req *http.Request, path string, body []byte) ([]byte, error) {
				open := c.openVariable(deserializeValues(req))
				if variableMapPath(path) {
					return rewriteVariableMap(body, open)
				}
				return rewriteSingleVariable(body, open)
			},
		},
		{
			name:      "variable-instance-decrypt",
			direction: directionResponse,
			matches: func(_, path string) bool {
				return instancePathRe.MatchString(path)
			},
			transform: func(_ context.Context, c *Censor, req *http.Request, _ string, body []byte) ([]byte, error) {
				open := c.openVariable(deserializeValues(req))
				if isJSONArray(body) {
					return rewriteInstanceList(body, open)
				}
				return rewriteSingleInstance(body, open)
			},
		},
	}
}

// sealVariable encrypts one variable through the codec.
func (c *Censor) sealVariable(v *schema.Variable) error {
	if err := c.codec.EncryptVariable(v); err != nil {
		return err
	}
	if v.IsSealed() {
		variablesSealed.Inc()
	}
	return nil
}

// openVariable returns a transform decrypting one variable in the given mode.
func (c *Censor) openVariable(deserialize bool) variableTransform {
	return func(v *schema.Variable) error {
		if !v.IsSealed() {
			return nil
		}
		if err := c.codec.DecryptVariable(v, deserialize); err != nil {
			return err
		}
		variablesOpened.Inc()
		return nil
	}
}

func resolveStartDefinition(ctx context.Context, c *Censor, path string) (*engine.ProcessDefinition, error) {
	m := startPathRe.FindStringSubmatch(path)
	if m == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no definition in path %q", path)
	}
	if m[1] != "" {
		return c.engine.LatestDefinitionByKey(ctx, m[1])
	}
	return c.engine.DefinitionByID(ctx, m[2])
}

func resolveTaskDefinition(re *regexp.Regexp) func(context.Context, *Censor, string) (*engine.ProcessDefinition, error) {
	return func(ctx context.Context, c *Censor, path string) (*engine.ProcessDefinition, error) {
		m := re.FindStringSubmatch(path)
		if m == nil {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no task in path %q", path)
		}
		task, err := c.engine.TaskByID(ctx, m[1])
		if err != nil {
			return nil, err
		}
		return c.engine.DefinitionByID(ctx, task.ProcessDefinitionID)
	}
}

func resolvePatchDefinition(ctx context.Context, c *Censor, path string) (*engine.ProcessDefinition, error) {
	m := patchPathRe.FindStringSubmatch(path)
	if m == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no owner in path %q", path)
	}
	owner, id := m[1], m[2]
	var definitionID string
	if owner == "process-instance" {
		inst, err := c.engine.InstanceByID(ctx, id)
		if err != nil {
			return nil, err
		}
		definitionID = inst.ProcessDefinitionID
	} else {
		task, err := c.engine.TaskByID(ctx, id)
		if err != nil {
			return nil, err
		}
		definitionID = task.ProcessDefinitionID
	}
	return c.engine.DefinitionByID(ctx, definitionID)
}

// variableMapPath reports whether a matched GET path names the whole
// variable map (".../variables") rather than one variable by name.
func variableMapPath(path string) bool {
	seg := path[strings.LastIndex(path, "/")+1:]
	switch seg {
	case "variables", "localVariables", "form-variables":
		return true
	default:
		return false
	}
}

func isJSONArray(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
