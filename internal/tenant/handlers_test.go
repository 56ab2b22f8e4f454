package tenant

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterline/meterline/internal/audit"
	"github.com/meterline/meterline/internal/auth"
	"github.com/meterline/meterline/internal/flags"
	"github.com/meterline/meterline/internal/wallet"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router    *gin.Engine
	handler   *Handler
	flagStore flags.Store
	wallets   *wallet.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	flagStore := flags.NewMemoryStore()
	env := &testEnv{
		flagStore: flagStore,
		wallets:   wallet.NewService(wallet.NewMemoryStore()),
	}
	env.handler = NewHandler(
		NewMemoryStore(),
		auth.NewManager(auth.NewMemoryStore()),
		env.wallets,
		flags.NewGate(flagStore),
		audit.NewRecorder(audit.NewMemoryStore()),
		"10",
	)

	env.router = gin.New()
	admin := env.router.Group("/v1/admin")
	env.handler.RegisterAdminRoutes(admin)
	v1 := env.router.Group("/v1")
	env.handler.RegisterProtectedRoutes(v1)
	return env
}

func createTenant(t *testing.T, env *testEnv, body map[string]any) map[string]any {
	t.Helper()

	b, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/admin/tenants", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateTenant_ProvisionsWalletAndKey(t *testing.T) {
	env := newTestEnv(t)

	resp := createTenant(t, env, map[string]any{
		"name": "Acme Corp", "slug": "acme", "persona": "formal", "plan": "starter",
	})

	tn := resp["tenant"].(map[string]any)
	assert.Regexp(t, `^tnt_[a-f0-9]{24}$`, tn["id"])
	assert.Equal(t, "formal", tn["persona"])

	// Starter plan includes 25 credits.
	wl := resp["wallet"].(map[string]any)
	assert.Equal(t, "25.0000", wl["balance"])

	key := resp["apiKey"].(string)
	assert.Regexp(t, `^mk_[a-f0-9]{64}$`, key)
}

func TestCreateTenant_FreePlanGetsDeploymentBonus(t *testing.T) {
	env := newTestEnv(t)

	resp := createTenant(t, env, map[string]any{"name": "Acme", "slug": "acme"})
	wl := resp["wallet"].(map[string]any)
	assert.Equal(t, "10.0000", wl["balance"])
}

func TestCreateTenant_SignupsDisabled(t *testing.T) {
	env := newTestEnv(t)

	f := flags.DefaultFlags()
	f.SignupsEnabled = false
	_, err := env.flagStore.SetFlags(context.Background(), f)
	require.NoError(t, err)

	b, _ := json.Marshal(map[string]any{"name": "Acme", "slug": "acme"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/admin/tenants", bytes.NewReader(b))
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "feature_disabled")
}

func TestCreateTenant_SlugConflict(t *testing.T) {
	env := newTestEnv(t)
	createTenant(t, env, map[string]any{"name": "Acme", "slug": "acme"})

	b, _ := json.Marshal(map[string]any{"name": "Other", "slug": "acme"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/admin/tenants", bytes.NewReader(b))
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateTenant_InvalidSlug(t *testing.T) {
	env := newTestEnv(t)

	for _, slug := range []string{"UPPER", "-leading", "trailing-", "a", "has space"} {
		b, _ := json.Marshal(map[string]any{"name": "Acme", "slug": slug})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/v1/admin/tenants", bytes.NewReader(b))
		env.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "slug %q", slug)
	}
}

func TestUpdateTenant_PersonaAndStatus(t *testing.T) {
	env := newTestEnv(t)
	resp := createTenant(t, env, map[string]any{"name": "Acme", "slug": "acme"})
	id := resp["tenant"].(map[string]any)["id"].(string)

	// Persona changes don't need admin.
	b, _ := json.Marshal(map[string]any{"persona": "casual"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PATCH", "/v1/tenants/"+id, bytes.NewReader(b))
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Status changes do.
	b, _ = json.Marshal(map[string]any{"status": "suspended"})
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("PATCH", "/v1/tenants/"+id, bytes.NewReader(b))
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// An admin secret header on its own is worthless. Only the actor the
	// auth middleware verified grants admin.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("PATCH", "/v1/tenants/"+id, bytes.NewReader(b))
	req.Header.Set("X-Admin-Secret", "made-up-value")
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("PATCH", "/v1/tenants/"+id, bytes.NewReader(b))
	req = req.WithContext(audit.WithActor(req.Context(), audit.ActorAdmin, ""))
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "suspended", out["tenant"].(map[string]any)["status"])
}

func TestUpdateTenant_PlanChangeNeedsVerifiedAdmin(t *testing.T) {
	env := newTestEnv(t)
	resp := createTenant(t, env, map[string]any{"name": "Acme", "slug": "acme"})
	id := resp["tenant"].(map[string]any)["id"].(string)

	b, _ := json.Marshal(map[string]any{"plan": "enterprise"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PATCH", "/v1/tenants/"+id, bytes.NewReader(b))
	req.Header.Set("X-Admin-Secret", "totally-wrong-secret")
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("PATCH", "/v1/tenants/"+id, bytes.NewReader(b))
	req = req.WithContext(audit.WithActor(req.Context(), audit.ActorAdmin, ""))
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "enterprise", out["tenant"].(map[string]any)["plan"])
}

func TestKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	resp := createTenant(t, env, map[string]any{"name": "Acme", "slug": "acme"})
	id := resp["tenant"].(map[string]any)["id"].(string)

	// Mint a second key.
	b, _ := json.Marshal(map[string]any{"name": "CI key"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/tenants/"+id+"/keys", bytes.NewReader(b))
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	keyID := created["keyId"].(string)

	// Both keys listed.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/v1/tenants/"+id+"/keys", nil)
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var listed map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Equal(t, float64(2), listed["count"])

	// Revoke the second.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/v1/tenants/"+id+"/keys/"+keyID, nil)
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Revoking a bogus key 404s.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/v1/tenants/"+id+"/keys/ak_nonexistent", nil)
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
