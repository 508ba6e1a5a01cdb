// Package integration provides a reusable test harness for end-to-end
// integration testing of the report builder server. It starts a full HTTP
// server with in-memory stores and a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/reportbuilder/internal/capability"
	"github.com/pitabwire/reportbuilder/internal/catalog"
	"github.com/pitabwire/reportbuilder/internal/config"
	"github.com/pitabwire/reportbuilder/internal/layout"
	"github.com/pitabwire/reportbuilder/internal/observability"
	"github.com/pitabwire/reportbuilder/internal/preview"
	"github.com/pitabwire/reportbuilder/internal/report"
	"github.com/pitabwire/reportbuilder/internal/store"
	"github.com/pitabwire/reportbuilder/internal/transport"
	"github.com/pitabwire/reportbuilder/model"
)

// TestHarness encapsulates a fully wired report builder instance for
// integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Registry     *catalog.Registry
	Store        *store.MemoryReportStore
	PreviewCache *preview.MemoryCache
	Service      *report.Service
	Metrics      *observability.Metrics
	CapResolver  model.CapabilityResolver

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	catalogDirs    []string
	policyFile     string
	handlerTimeout time.Duration
	maxPreviewRows int
}

// WithCatalogs sets the catalog directories to load.
func WithCatalogs(dirs ...string) HarnessOption {
	return func(c *harnessConfig) {
		c.catalogDirs = dirs
	}
}

// WithPolicyFile sets the static policy YAML file for capability resolution.
func WithPolicyFile(path string) HarnessOption {
	return func(c *harnessConfig) {
		c.policyFile = path
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithMaxPreviewRows caps the rows accepted by a preview request.
func WithMaxPreviewRows(n int) HarnessOption {
	return func(c *harnessConfig) {
		c.maxPreviewRows = n
	}
}

// NewTestHarness creates and starts a full test instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
		maxPreviewRows: 500,
	}
	for _, opt := range opts {
		opt(hc)
	}

	testdataDir := testdataDir()
	if len(hc.catalogDirs) == 0 {
		hc.catalogDirs = []string{filepath.Join(testdataDir, "catalog")}
	}
	if hc.policyFile == "" {
		hc.policyFile = filepath.Join(testdataDir, "policies.yaml")
	}

	h := &TestHarness{t: t}

	// Step 1: Load and validate catalogs.
	defs, err := catalog.NewLoader().LoadAll(hc.catalogDirs)
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	if verrs := catalog.NewValidator().Validate(defs); len(verrs) > 0 {
		t.Fatalf("catalog validation: %v", verrs)
	}
	h.Registry = catalog.NewRegistry(defs)

	// Step 2: Build capability resolver.
	evaluator, err := capability.NewStaticPolicyEvaluator(hc.policyFile)
	if err != nil {
		t.Fatalf("load policy file: %v", err)
	}
	h.CapResolver = capability.NewResolver(evaluator, 0) // no caching in tests

	// Step 3: Build in-memory stores and the report service.
	h.Store = store.NewMemoryReportStore()
	h.PreviewCache = preview.NewMemoryCache()
	h.Metrics = observability.InitMetrics(prometheus.NewRegistry())
	templates := layout.NewTemplateSet()

	h.Service = report.NewService(h.Store, h.Registry,
		report.WithPreviewCache(h.PreviewCache, time.Minute),
		report.WithRecorder(h.Metrics),
		report.WithLayoutTemplates(templates),
		report.WithMaxPreviewRows(hc.maxPreviewRows),
	)

	// Step 4: Create JWT issuer.
	h.issuer = newTokenIssuer(t)

	// Step 5: Build config.
	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.CORS = config.CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
		MaxAge:         86400,
	}
	h.cfg.Identity.Issuer = h.issuer.Issuer()
	h.cfg.Identity.Audience = h.issuer.Audience()
	h.cfg.Identity.JWKSURL = h.issuer.JWKSURL()

	// Step 6: Build router with full middleware chain.
	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), 1*time.Hour)

	router := transport.NewRouter(transport.Dependencies{
		Config:             h.cfg,
		Logger:             zap.NewNop(),
		Authenticate:       transport.JWTAuthenticator(h.cfg.Identity, jwks),
		CapabilityResolver: h.CapResolver,
		Service:            h.Service,
		Catalog:            h.Registry,
		Templates:          templates,
		HealthHandler:      observability.HandleHealth(),
		ReadyHandler: observability.HandleReady(observability.ReadinessChecks{
			CatalogLoaded: func() bool { return h.Registry.Len() > 0 },
			ReportStore:   h.Store,
		}),
	})

	// Step 7: Start test server.
	h.server = httptest.NewServer(h.Metrics.MetricsMiddleware(router))
	t.Cleanup(func() {
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims SessionClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims SessionClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// GETWithHeaders performs an authenticated GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, headers)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, nil, token, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Session helpers ---

// OpenSession opens a blank editing session and returns its id.
func (h *TestHarness) OpenSession(t *testing.T, token string) string {
	t.Helper()
	var snap model.ReportSnapshot
	h.AssertJSON(t, h.POST("/ui/sessions", map[string]any{}, token), http.StatusCreated, &snap)
	return snap.SessionID
}

// Command sends an editing command and returns the decoded response.
func (h *TestHarness) Command(t *testing.T, token, sessionID string, cmd map[string]any) CommandResult {
	t.Helper()
	var res CommandResult
	h.AssertJSON(t, h.POST("/ui/sessions/"+sessionID+"/commands", cmd, token), http.StatusOK, &res)
	return res
}

// CommandResult mirrors the command endpoint's response body.
type CommandResult struct {
	Snapshot model.ReportSnapshot `json:"snapshot"`
	Effect   report.Effect        `json:"effect"`
}

// --- Default test claims ---

// AuthorClaims returns SessionClaims for a report_author user.
func AuthorClaims() SessionClaims {
	return SessionClaims{
		SubjectID: "user-author",
		TenantID:  "acme-corp",
		Email:     "author@acme.example.com",
		Roles:     []string{"report_author"},
	}
}

// ViewerClaims returns SessionClaims for a report_viewer user.
func ViewerClaims() SessionClaims {
	return SessionClaims{
		SubjectID: "user-viewer",
		TenantID:  "acme-corp",
		Email:     "viewer@acme.example.com",
		Roles:     []string{"report_viewer"},
	}
}

// --- Helpers ---

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// SalesRows returns preview rows keyed by qualified field reference.
func SalesRows() []map[string]any {
	return []map[string]any{
		{"sales.id": "s-1", "sales.revenue": 120.0, "sales.sold_at": "2026-03-01"},
		{"sales.id": "s-2", "sales.revenue": 80.0, "sales.sold_at": "2026-03-02"},
		{"sales.id": "s-3", "sales.revenue": 300.0, "sales.sold_at": "2026-03-03"},
	}
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// errorBody mirrors the error response wrapper.
type errorBody struct {
	Error model.ErrorEnvelope `json:"error"`
}
