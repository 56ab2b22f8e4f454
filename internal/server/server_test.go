package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meterline/meterline/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal in-memory config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:                  "0",
		Env:                   "development",
		LogLevel:              "error",
		CostPerThousandTokens: "0.002",
		SignupBonus:           "0",
		CentsPerCredit:        100,
		RateLimitRPS:          1000,
	}
}

// newTestServer creates a server backed by in-memory stores
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func doRequest(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	s.router.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, "GET", "/health/live", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, "GET", "/health/ready", "", nil)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/v1/pricing",
		"POST:/v1/pricing/preview",
		"POST:/v1/actions",
		"POST:/v1/actions/preview",
		"POST:/v1/actions/refund",
		"GET:/v1/actions/check",
		"GET:/v1/tenants/:id/wallet",
		"GET:/v1/tenants/:id/ledger",
		"POST:/v1/tenants/:id/topups",
		"POST:/v1/stripe/webhook",
		"POST:/v1/tenants",
		"POST:/v1/admin/tenants",
		"PUT:/v1/admin/pricing",
		"GET:/v1/admin/flags",
		"GET:/v1/admin/audit",
		"GET:/v1/admin/reconcile",
		"GET:/v1/feed",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Auth boundary tests
// ---------------------------------------------------------------------------

func TestChargeRequiresAPIKey(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, "POST", "/v1/actions", `{"action_kind":"ai_reply","token_count":100}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWalletRequiresMatchingTenant(t *testing.T) {
	s := newTestServer(t)

	// No key at all
	w := doRequest(s, "GET", "/v1/tenants/tnt_x/wallet", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestAdminRequiresSecret(t *testing.T) {
	t.Setenv("ADMIN_SECRET", "test-admin-secret")
	s := newTestServer(t)

	w := doRequest(s, "POST", "/v1/admin/tenants", `{"name":"Acme","slug":"acme"}`, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without secret, got %d", w.Code)
	}

	w = doRequest(s, "POST", "/v1/admin/tenants", `{"name":"Acme","slug":"acme"}`,
		map[string]string{"X-Admin-Secret": "wrong"})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 with wrong secret, got %d", w.Code)
	}
}

func TestPlanChangeRejectsWrongAdminSecret(t *testing.T) {
	t.Setenv("ADMIN_SECRET", "test-admin-secret")
	s := newTestServer(t)
	adminHdr := map[string]string{"X-Admin-Secret": "test-admin-secret"}

	w := doRequest(s, "POST", "/v1/admin/tenants", `{"name":"Acme","slug":"acme-plans"}`, adminHdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Tenant struct {
			ID string `json:"id"`
		} `json:"tenant"`
		APIKey string `json:"apiKey"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse provisioning response: %v", err)
	}

	// A tenant holding its own valid key must not become admin by sending
	// a made-up admin secret alongside it.
	escalate := map[string]string{
		"Authorization":  "Bearer " + created.APIKey,
		"X-Admin-Secret": "totally-wrong-secret",
	}
	w = doRequest(s, "PATCH", "/v1/tenants/"+created.Tenant.ID, `{"plan":"enterprise"}`, escalate)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for plan change with wrong admin secret, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(s, "PATCH", "/v1/tenants/"+created.Tenant.ID, `{"status":"suspended"}`, escalate)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for status change with wrong admin secret, got %d: %s", w.Code, w.Body.String())
	}

	// The plan must not have moved.
	keyHdr := map[string]string{"Authorization": "Bearer " + created.APIKey}
	w = doRequest(s, "GET", "/v1/tenants/"+created.Tenant.ID, "", keyHdr)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "enterprise") {
		t.Errorf("Plan changed despite rejected request: %s", w.Body.String())
	}

	// The real secret still works.
	w = doRequest(s, "PATCH", "/v1/tenants/"+created.Tenant.ID, `{"plan":"enterprise"}`, adminHdr)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for admin plan change, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSelfServeSignup(t *testing.T) {
	t.Setenv("ADMIN_SECRET", "test-admin-secret")
	s := newTestServer(t)
	adminHdr := map[string]string{"X-Admin-Secret": "test-admin-secret"}

	// Signups are enabled by default, so provisioning needs no credentials.
	w := doRequest(s, "POST", "/v1/tenants", `{"name":"Walk-in","slug":"walk-in"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Closing the signups flag shuts the public door.
	w = doRequest(s, "PUT", "/v1/admin/flags", `{"signupsEnabled":false}`, adminHdr)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 updating flags, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(s, "POST", "/v1/tenants", `{"name":"Late","slug":"late"}`, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 with signups disabled, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// End-to-end flow: provision, fund, charge
// ---------------------------------------------------------------------------

func TestProvisionFundAndCharge(t *testing.T) {
	t.Setenv("ADMIN_SECRET", "test-admin-secret")
	s := newTestServer(t)
	adminHdr := map[string]string{"X-Admin-Secret": "test-admin-secret"}

	// Provision a tenant
	w := doRequest(s, "POST", "/v1/admin/tenants", `{"name":"Acme Corp","slug":"acme-corp"}`, adminHdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created struct {
		Tenant struct {
			ID string `json:"id"`
		} `json:"tenant"`
		APIKey string `json:"apiKey"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse provisioning response: %v", err)
	}
	if created.APIKey == "" {
		t.Fatal("Expected apiKey in provisioning response")
	}
	if !strings.HasPrefix(created.Tenant.ID, "tnt_") {
		t.Fatalf("Unexpected tenant ID %q", created.Tenant.ID)
	}

	// Fund the wallet
	w = doRequest(s, "POST", "/v1/admin/tenants/"+created.Tenant.ID+"/credits",
		`{"amount":"10","description":"test grant"}`, adminHdr)
	if w.Code != http.StatusOK && w.Code != http.StatusCreated {
		t.Fatalf("Expected credit to succeed, got %d: %s", w.Code, w.Body.String())
	}

	// Charge an action with the tenant's API key
	keyHdr := map[string]string{"Authorization": "Bearer " + created.APIKey}
	w = doRequest(s, "POST", "/v1/actions", `{"action_kind":"ai_reply","token_count":50000}`, keyHdr)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 charge, got %d: %s", w.Code, w.Body.String())
	}

	var charge struct {
		Cost    string `json:"cost"`
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &charge); err != nil {
		t.Fatalf("Failed to parse charge response: %v", err)
	}
	if charge.Cost != "0.1000" {
		t.Errorf("Expected cost 0.1000, got %s", charge.Cost)
	}

	// Wallet reflects the debit
	w = doRequest(s, "GET", "/v1/tenants/"+created.Tenant.ID+"/wallet", "", keyHdr)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 wallet, got %d: %s", w.Code, w.Body.String())
	}

	var walletResp struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &walletResp); err != nil {
		t.Fatalf("Failed to parse wallet response: %v", err)
	}
	if walletResp.Balance != "9.9000" {
		t.Errorf("Expected balance 9.9000, got %s", walletResp.Balance)
	}

	// Keys are tenant-scoped: another tenant's wallet is off limits
	w = doRequest(s, "GET", "/v1/tenants/tnt_other/wallet", "", keyHdr)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for foreign tenant, got %d", w.Code)
	}
}

func TestInsufficientBalanceIs402(t *testing.T) {
	t.Setenv("ADMIN_SECRET", "test-admin-secret")
	s := newTestServer(t)
	adminHdr := map[string]string{"X-Admin-Secret": "test-admin-secret"}

	w := doRequest(s, "POST", "/v1/admin/tenants", `{"name":"Broke Inc","slug":"broke-inc"}`, adminHdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	keyHdr := map[string]string{"Authorization": "Bearer " + created.APIKey}
	w = doRequest(s, "POST", "/v1/actions", `{"action_kind":"ai_reply","token_count":50000}`, keyHdr)
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected 402, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Public surface tests
// ---------------------------------------------------------------------------

func TestPricingIsPublic(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, "GET", "/v1/pricing", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var rules map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &rules); err != nil {
		t.Fatalf("Failed to parse pricing: %v", err)
	}
	if rules["costPerThousandTokens"] != "0.002" {
		t.Errorf("Expected seeded base rate 0.002, got %v", rules["costPerThousandTokens"])
	}
}

func TestFeedPage(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, "GET", "/feed", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for feed page, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("Expected HTML content type, got %q", ct)
	}
}

func TestTopupWithoutStripeIs503(t *testing.T) {
	t.Setenv("ADMIN_SECRET", "test-admin-secret")
	s := newTestServer(t)
	adminHdr := map[string]string{"X-Admin-Secret": "test-admin-secret"}

	w := doRequest(s, "POST", "/v1/admin/tenants", `{"name":"Topper","slug":"topper"}`, adminHdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}
	var created struct {
		Tenant struct {
			ID string `json:"id"`
		} `json:"tenant"`
		APIKey string `json:"apiKey"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	keyHdr := map[string]string{"Authorization": "Bearer " + created.APIKey}
	w = doRequest(s, "POST", "/v1/tenants/"+created.Tenant.ID+"/topups", `{"credits":"5"}`, keyHdr)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when Stripe unconfigured, got %d: %s", w.Code, w.Body.String())
	}
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, "GET", "/v1/nonexistent", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
