package censor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/caseflow/internal/crypto"
	"github.com/rendis/caseflow/internal/engine"
	"github.com/rendis/caseflow/internal/policy"
	"github.com/rendis/caseflow/pkg/schema"
)

const encryptingModel = `<definitions xmlns:camunda="http://camunda.org/schema/1.0/bpmn">
  <camunda:property name="encryptVariables" value="true"/>
</definitions>`

const plainModel = `<definitions xmlns:camunda="http://camunda.org/schema/1.0/bpmn">
  <camunda:property name="encryptVariables" value="false"/>
</definitions>`

type stubEngine struct {
	model    string
	modelErr error
}

func (s *stubEngine) DefinitionByID(_ context.Context, id string) (*engine.ProcessDefinition, error) {
	return &engine.ProcessDefinition{ID: id, Key: "claims", Version: 1}, nil
}

func (s *stubEngine) LatestDefinitionByKey(_ context.Context, key string) (*engine.ProcessDefinition, error) {
	return &engine.ProcessDefinition{ID: key + ":1", Key: key, Version: 1}, nil
}

func (s *stubEngine) InstanceByID(_ context.Context, id string) (*engine.ProcessInstance, error) {
	return &engine.ProcessInstance{ID: id, BusinessKey: "bk", ProcessDefinitionID: "pd-1"}, nil
}

func (s *stubEngine) TaskByID(_ context.Context, id string) (*engine.Task, error) {
	return &engine.Task{ID: id, ProcessInstanceID: "pi-1", ProcessDefinitionID: "pd-1"}, nil
}

func (s *stubEngine) ProcessModel(_ context.Context, _ string) ([]byte, error) {
	if s.modelErr != nil {
		return nil, s.modelErr
	}
	return []byte(s.model), nil
}

func (s *stubEngine) CreateIncident(_ context.Context, _ engine.Incident) error { return nil }

func newTestCensor(t *testing.T, eng engine.Services) *Censor {
	t.Helper()
	codec, err := crypto.NewCodec(crypto.CodecConfig{Passphrase: "p", Salt: "s", Iterations: 1000})
	require.NoError(t, err)
	resolver := &policy.Resolver{CaseBucket: "case-data"}
	return New(codec, eng, resolver, "/engine-rest", nil)
}

// captureHandler records the request body it receives downstream.
type captureHandler struct {
	body []byte
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.body, _ = io.ReadAll(r.Body)
	w.WriteHeader(http.StatusOK)
}

func TestMiddlewareSealsStartVariables(t *testing.T) {
	c := newTestCensor(t, &stubEngine{model: encryptingModel})
	capture := &captureHandler{}

	body := `{"businessKey":"bk-1","variables":{
		"payload":{"type":"Json","value":"{\"amount\":42}"},
		"note":{"type":"String","value":"hello"}
	}}`
	req := httptest.NewRequest(http.MethodPost,
		"/engine-rest/process-definition/key/claims/start", strings.NewReader(body))
	rec := httptest.NewRecorder()
	c.Middleware(capture).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var forwarded struct {
		BusinessKey string                      `json:"businessKey"`
		Variables   map[string]*schema.Variable `json:"variables"`
	}
	require.NoError(t, json.Unmarshal(capture.body, &forwarded))
	assert.Equal(t, "bk-1", forwarded.BusinessKey)

	sealed := forwarded.Variables["payload"]
	require.NotNil(t, sealed)
	assert.True(t, sealed.IsSealed())
	assert.Equal(t, schema.VariableTypeObject, sealed.Type)
	assert.NotContains(t, string(capture.body), "amount")

	plain := forwarded.Variables["note"]
	require.NotNil(t, plain)
	assert.Equal(t, "String", plain.Type)
	assert.Equal(t, "hello", plain.Value)
}

func TestMiddlewarePassesThroughWhenPolicyOff(t *testing.T) {
	c := newTestCensor(t, &stubEngine{model: plainModel})
	capture := &captureHandler{}

	body := `{"variables":{"payload":{"type":"Json","value":"{\"amount\":42}"}}}`
	req := httptest.NewRequest(http.MethodPost,
		"/engine-rest/process-definition/key/claims/start", strings.NewReader(body))
	rec := httptest.NewRecorder()
	c.Middleware(capture).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, body, string(capture.body))
}

func TestMiddlewareIgnoresUnmatchedPaths(t *testing.T) {
	c := newTestCensor(t, &stubEngine{model: encryptingModel})
	capture := &captureHandler{}

	body := `{"anything":"goes"}`
	req := httptest.NewRequest(http.MethodPost, "/engine-rest/deployment/create", strings.NewReader(body))
	rec := httptest.NewRecorder()
	c.Middleware(capture).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, string(capture.body))
}

func TestMiddlewareFailsClosedOnModelError(t *testing.T) {
	c := newTestCensor(t, &stubEngine{modelErr: schema.NewError(schema.ErrCodeEngine, "model fetch failed")})
	capture := &captureHandler{}

	req := httptest.NewRequest(http.MethodPost,
		"/engine-rest/process-definition/key/claims/start",
		strings.NewReader(`{"variables":{"v":{"type":"Json","value":"{}"}}}`))
	rec := httptest.NewRecorder()
	c.Middleware(capture).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Nil(t, capture.body, "request must not reach the engine")
}

func TestMiddlewareRejectsMalformedBody(t *testing.T) {
	c := newTestCensor(t, &stubEngine{model: encryptingModel})
	capture := &captureHandler{}

	req := httptest.NewRequest(http.MethodPost,
		"/engine-rest/process-definition/key/claims/start", strings.NewReader(`[not an object]`))
	rec := httptest.NewRecorder()
	c.Middleware(capture).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func sealedResponseBody(t *testing.T, c *Censor, doc string) []byte {
	t.Helper()
	v := &schema.Variable{Type: "Json", Value: doc}
	require.NoError(t, c.codec.EncryptVariable(v))
	body, err := json.Marshal(map[string]*schema.Variable{"payload": v})
	require.NoError(t, err)
	return body
}

func responseFor(req *http.Request, body []byte) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Request:    req,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     http.Header{},
	}
}

func TestModifyResponseOpensStringified(t *testing.T) {
	c := newTestCensor(t, &stubEngine{model: encryptingModel})
	body := sealedResponseBody(t, c, `{"amount":42}`)

	req := httptest.NewRequest(http.MethodGet, "/engine-rest/process-instance/pi-1/variables", nil)
	resp := responseFor(req, body)
	require.NoError(t, c.ModifyResponse(resp))

	out, _ := io.ReadAll(resp.Body)
	var vars map[string]*schema.Variable
	require.NoError(t, json.Unmarshal(out, &vars))
	v := vars["payload"]
	require.NotNil(t, v)
	assert.Equal(t, schema.VariableTypeJSON, v.Type)
	assert.Equal(t, `{"amount":42}`, v.Value)
	assert.Equal(t, schema.JSONDataFormat, v.ValueInfo[schema.ValueInfoSerializationDataFormat])
}

func TestModifyResponseOpensDeserialized(t *testing.T) {
	c := newTestCensor(t, &stubEngine{model: encryptingModel})
	body := sealedResponseBody(t, c, `{"amount":42}`)

	req := httptest.NewRequest(http.MethodGet,
		"/engine-rest/process-instance/pi-1/variables?deserializeValues=true", nil)
	resp := responseFor(req, body)
	require.NoError(t, c.ModifyResponse(resp))

	out, _ := io.ReadAll(resp.Body)
	var vars map[string]*schema.Variable
	require.NoError(t, json.Unmarshal(out, &vars))
	v := vars["payload"]
	require.NotNil(t, v)
	doc, ok := v.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(42), doc["amount"])
	assert.Empty(t, v.ValueInfo)
}

func TestModifyResponseLeavesPlainVariables(t *testing.T) {
	c := newTestCensor(t, &stubEngine{model: encryptingModel})
	body := []byte(`{"note":{"type":"String","value":"hi","valueInfo":{}}}`)

	req := httptest.NewRequest(http.MethodGet, "/engine-rest/task/t-1/localVariables", nil)
	resp := responseFor(req, body)
	require.NoError(t, c.ModifyResponse(resp))

	out, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, string(body), string(out))
}

func TestModifyResponseSkipsErrorStatuses(t *testing.T) {
	c := newTestCensor(t, &stubEngine{model: encryptingModel})
	body := []byte(`{"type":"NotFoundException","message":"no task"}`)

	req := httptest.NewRequest(http.MethodGet, "/engine-rest/task/t-1/variables", nil)
	resp := responseFor(req, body)
	resp.StatusCode = http.StatusNotFound
	require.NoError(t, c.ModifyResponse(resp))

	out, _ := io.ReadAll(resp.Body)
	assert.Equal(t, string(body), string(out))
}

func TestModifyResponseFailsOnCorruptEnvelope(t *testing.T) {
	c := newTestCensor(t, &stubEngine{model: encryptingModel})
	body := []byte(`{"payload":{"type":"Object","value":"AAAA","valueInfo":{
		"objectTypeName":"SealedEnvelope",
		"serializationDataFormat":"application/x-sealed+base64"
	}}}`)

	req := httptest.NewRequest(http.MethodGet, "/engine-rest/process-instance/pi-1/variables", nil)
	resp := responseFor(req, body)
	require.Error(t, c.ModifyResponse(resp))
}

func TestVariableInstanceListDecrypt(t *testing.T) {
	c := newTestCensor(t, &stubEngine{model: encryptingModel})

	v := &schema.Variable{Type: "Json", Value: `{"ok":true}`}
	require.NoError(t, c.codec.EncryptVariable(v))
	body, err := json.Marshal([]map[string]any{{
		"id":                "vi-1",
		"name":              "payload",
		"processInstanceId": "pi-1",
		"type":              v.Type,
		"value":             v.Value,
		"valueInfo":         v.ValueInfo,
	}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/engine-rest/variable-instance", nil)
	resp := responseFor(req, body)
	require.NoError(t, c.ModifyResponse(resp))

	out, _ := io.ReadAll(resp.Body)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(out, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "vi-1", list[0]["id"], "non-variable fields survive the rewrite")
	assert.Equal(t, "Json", list[0]["type"])
	assert.Equal(t, `{"ok":true}`, list[0]["value"])
}

func TestMiddlewareRoundTripWithProxy(t *testing.T) {
	c := newTestCensor(t, &stubEngine{model: encryptingModel})

	// Fake engine backend: echoes the variables it received on start, the
	// way a real start response does.
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var in struct {
			Variables map[string]*schema.Variable `json:"variables"`
		}
		_ = json.Unmarshal(body, &in)
		// Engine must only ever see sealed values.
		for _, v := range in.Variables {
			if !v.IsSealed() {
				http.Error(w, "plaintext leaked", http.StatusTeapot)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "pi-1", "variables": in.Variables})
	})

	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := httptest.NewRecorder()
		backend.ServeHTTP(rec, r)
		resp := rec.Result()
		resp.Request = r
		require.NoError(t, c.ModifyResponse(resp))
		out, _ := io.ReadAll(resp.Body)
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(out)
	}))

	req := httptest.NewRequest(http.MethodPost,
		"/engine-rest/process-definition/key/claims/start",
		strings.NewReader(`{"variables":{"payload":{"type":"Json","value":"{\"amount\":42}"}}}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Variables map[string]*schema.Variable `json:"variables"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	v := out.Variables["payload"]
	require.NotNil(t, v)
	assert.Equal(t, schema.VariableTypeJSON, v.Type)
	assert.Equal(t, `{"amount":42}`, v.Value)
}
