// Package censor intercepts the engine's REST traffic at the proxy boundary
// and applies variable encryption policy: request bodies carrying variables
// are sealed before they reach the engine, response bodies carrying sealed
// variables are opened before they reach the caller.
package censor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/rendis/caseflow/internal/crypto"
	"github.com/rendis/caseflow/internal/engine"
	"github.com/rendis/caseflow/internal/policy"
	"github.com/rendis/caseflow/pkg/schema"
)

type direction int

const (
	directionRequest direction = iota
	directionResponse
)

// filter is one variant of the interceptor chain. Encrypt variants carry a
// resolve func and are gated by the owning definition's policy; decrypt
// variants are gated by the sealed-envelope marker inside each variable.
type filter struct {
	name      string
	direction direction
	matches   func(method, path string) bool
	resolve   func(ctx context.Context, c *Censor, path string) (*engine.ProcessDefinition, error)
	transform func(ctx context.Context, c *Censor, req *http.Request, path string, body []byte) ([]byte, error)
}

// Censor runs the fixed, ordered filter chain against proxied traffic.
type Censor struct {
	codec    *crypto.Codec
	engine   engine.Services
	resolver *policy.Resolver
	logger   *slog.Logger
	mount    string
	filters  []filter
}

// New builds a censor for traffic proxied under the given mount path
// (e.g. "/engine-rest"). Filters match engine-relative paths.
func New(codec *crypto.Codec, services engine.Services, resolver *policy.Resolver, mount string, logger *slog.Logger) *Censor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Censor{
		codec:    codec,
		engine:   services,
		resolver: resolver,
		logger:   logger,
		mount:    strings.TrimRight(mount, "/"),
		filters:  chain(),
	}
}

// relPath strips the mount prefix and leading slash so filters see the same
// engine-relative paths the engine's own router does.
func (c *Censor) relPath(p string) string {
	p = strings.TrimPrefix(p, c.mount)
	return strings.TrimPrefix(p, "/")
}

// Middleware returns a handler that runs the request-direction filters
// before delegating to next (normally the reverse proxy). A filter that
// matches but cannot parse the body or resolve the owning definition fails
// the whole request: silently skipping encryption would leak plaintext.
func (c *Censor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rel := c.relPath(r.URL.Path)
		for _, f := range c.filters {
			if f.direction != directionRequest || !f.matches(r.Method, rel) {
				continue
			}
			if err := c.applyRequestFilter(f, r, rel); err != nil {
				c.logger.ErrorContext(r.Context(), "request filter failed",
					slog.String("filter", f.name),
					slog.String("path", rel),
					slog.String("error", err.Error()))
				writeError(w, err)
				return
			}
		}
		// Response filters rewrite bodies; keep the upstream exchange
		// uncompressed so they can.
		if c.hasResponseFilter(r.Method, rel) {
			r.Header.Del("Accept-Encoding")
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Censor) applyRequestFilter(f filter, r *http.Request, rel string) error {
	ctx := r.Context()
	def, err := f.resolve(ctx, c, rel)
	if err != nil {
		return err
	}
	modelXML, err := c.engine.ProcessModel(ctx, def.ID)
	if err != nil {
		return err
	}
	if !c.resolver.ShouldEncrypt(policy.ParseModel(modelXML)) {
		return nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "read request body").WithCause(err)
	}
	_ = r.Body.Close()
	rewritten, err := f.transform(ctx, c, r, rel, body)
	if err != nil {
		return err
	}
	r.Body = io.NopCloser(bytes.NewReader(rewritten))
	r.ContentLength = int64(len(rewritten))
	r.Header.Set("Content-Length", strconv.Itoa(len(rewritten)))
	return nil
}

func (c *Censor) hasResponseFilter(method, rel string) bool {
	for _, f := range c.filters {
		if f.direction == directionResponse && f.matches(method, rel) {
			return true
		}
	}
	return false
}

// ModifyResponse runs the response-direction filters; wire it as the reverse
// proxy's ModifyResponse hook. Returning an error fails the exchange, which
// the proxy surfaces as a gateway error: a decrypt failure must never
// degrade to returning ciphertext or half-rewritten bodies.
func (c *Censor) ModifyResponse(resp *http.Response) error {
	req := resp.Request
	if req == nil {
		return nil
	}
	rel := c.relPath(req.URL.Path)
	for _, f := range c.filters {
		if f.direction != directionResponse || !f.matches(req.Method, rel) {
			continue
		}
		if resp.StatusCode >= 300 {
			continue
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return schema.NewError(schema.ErrCodeValidation, "read response body").WithCause(err)
		}
		_ = resp.Body.Close()
		rewritten, err := f.transform(req.Context(), c, req, rel, body)
		if err != nil {
			c.logger.ErrorContext(req.Context(), "response filter failed",
				slog.String("filter", f.name),
				slog.String("path", rel),
				slog.String("error", err.Error()))
			return err
		}
		resp.Body = io.NopCloser(bytes.NewReader(rewritten))
		resp.ContentLength = int64(len(rewritten))
		resp.Header.Set("Content-Length", strconv.Itoa(len(rewritten)))
	}
	return nil
}

// deserializeValues reads the query flag selecting the decrypt output mode.
// Absent or malformed means false: stringified output.
func deserializeValues(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("deserializeValues"))
	return err == nil && v
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	var flowErr *schema.FlowError
	if errors.As(err, &flowErr) && flowErr.Code == schema.ErrCodeValidation {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if flowErr != nil {
		_ = json.NewEncoder(w).Encode(flowErr)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
}
