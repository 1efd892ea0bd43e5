package main

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-chi/chi/v5"
	"github.com/RUGU2211/beachguardians-verify/internal/codegen"
	"github.com/RUGU2211/beachguardians-verify/internal/profile"
	storeRedis "github.com/RUGU2211/beachguardians-verify/internal/store/redis"
	"github.com/RUGU2211/beachguardians-verify/internal/verifier"
	"github.com/RUGU2211/beachguardians-verify/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dummyUser    = "myapp"
	dummySecret  = "mysecret"
	dummyUID     = "uid123"
	dummyAdminTo = "admin@example.com"
	dummyVolTo   = "vol@example.com"
	dummyVolName = "Vol Unteer"
)

type dummyProv struct{}

func (d *dummyProv) ID() string          { return "dummyprovider" }
func (d *dummyProv) ChannelName() string { return "E-mail" }
func (d *dummyProv) ValidateAddress(to string) error {
	if !strings.Contains(to, "@") {
		return errors.New("invalid dummy to address")
	}
	return nil
}
func (d *dummyProv) Push(to, subject string, body []byte) error { return nil }
func (d *dummyProv) MaxAddressLen() int                         { return 100 }
func (d *dummyProv) MaxOTPLen() int                             { return 6 }
func (d *dummyProv) MaxBodyLen() int                            { return 100 * 1024 }

// memProfiles is an in-memory profile.Store.
type memProfiles struct {
	mu sync.Mutex
	m  map[string]models.Profile
}

func (f *memProfiles) Get(ctx context.Context, userID string) (models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.m[userID]
	if !ok {
		return models.Profile{}, profile.ErrNotExist
	}
	return p, nil
}

func (f *memProfiles) Merge(ctx context.Context, userID string, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.m[userID]
	p.UserID = userID
	for k, v := range updates {
		switch k {
		case "role":
			p.Role = v.(string)
		case "email":
			p.Email = v.(string)
		case "name":
			p.Name = v.(string)
		case "is_verified":
			p.IsVerified = v.(bool)
		case "is_admin_verified":
			p.IsAdminVerified = v.(bool)
		}
	}
	f.m[userID] = p
	return nil
}

func (f *memProfiles) Ping(ctx context.Context) error { return nil }

var (
	srv    *httptest.Server
	rdis   *miniredis.Miniredis
	rStore *storeRedis.Redis
	profs  *memProfiles
)

func init() {
	// Dummy Redis.
	rd, err := miniredis.Run()
	if err != nil {
		log.Println(err)
	}
	rdis = rd
	port, _ := strconv.Atoi(rd.Port())
	rStore = storeRedis.New(storeRedis.Conf{
		Host: rd.Host(),
		Port: port,
	})

	profs = &memProfiles{m: make(map[string]models.Profile)}

	// Message templates.
	body := template.Must(template.New("body").Parse("code {{ .Code }}"))
	subj := template.Must(template.New("subject").Parse("Verify"))
	tpls := map[string]*verifier.Templates{
		models.NamespaceAdmin:     {Subject: subj, Body: body},
		models.NamespaceVolunteer: {Subject: subj, Body: body},
	}

	lo := initLogger(true)

	// Dummy app.
	app := &App{
		verifier: verifier.New(codegen.New(10*time.Minute), rStore, profs,
			profile.NewPrimaryWithFallback(profs, profs, lo), &dummyProv{}, tpls,
			verifier.RetryPolicy{MaxAttempts: 3, BaseDelay: 0}, lo),
		otps:     rStore,
		profiles: profs,
		lo:       lo,
		constants: constants{
			OtpTTL: 10 * time.Minute,
		},
	}

	authCreds := map[string]string{dummyUser: dummySecret}
	r := chi.NewRouter()
	r.Get("/api/health", wrap(app, handleHealthCheck))
	r.Put("/api/otp/admin", auth(authCreds, wrap(app, handleIssueAdminOTP)))
	r.Put("/api/otp/volunteer", auth(authCreds, wrap(app, handleIssueVolunteerOTP)))
	r.Post("/api/otp/admin/verify", auth(authCreds, wrap(app, handleVerifyAdminOTP)))
	r.Post("/api/otp/volunteer/verify", auth(authCreds, wrap(app, handleVerifyVolunteerOTP)))
	r.Get("/api/profiles/{uid}", auth(authCreds, wrap(app, handleGetProfile)))
	srv = httptest.NewServer(r)
}

func reset() {
	rdis.FlushDB()
	profs.mu.Lock()
	profs.m = make(map[string]models.Profile)
	profs.mu.Unlock()
}

func TestHealthCheck(t *testing.T) {
	reset()
	var out httpResp
	r := testRequest(t, http.MethodGet, "/api/health", nil, &out)
	assert.Equal(t, http.StatusOK, r.StatusCode, "non 200 response")
}

func TestAuthRequired(t *testing.T) {
	reset()
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/otp/admin", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "missing auth wasn't rejected")
}

func TestIssueAdmin(t *testing.T) {
	reset()
	var out httpResp

	// Bad address.
	p := url.Values{}
	p.Set("uid", dummyUID)
	p.Set("email", "xxxx")
	r := testRequest(t, http.MethodPut, "/api/otp/admin", p, &out)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode, "non 400 response for bad address")
	assert.Equal(t, "validation", out.Reason)

	// Missing uid.
	p.Set("uid", "")
	p.Set("email", dummyAdminTo)
	r = testRequest(t, http.MethodPut, "/api/otp/admin", p, &out)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode, "non 400 response for missing uid")

	// Valid issuance.
	p.Set("uid", dummyUID)
	r = testRequest(t, http.MethodPut, "/api/otp/admin", p, &out)
	assert.Equal(t, http.StatusOK, r.StatusCode, "non 200 response")

	c, err := rStore.Get(models.NamespaceAdmin, dummyUID)
	require.NoError(t, err, "challenge wasn't stored")
	assert.Len(t, c.OTP, 6)
}

func TestAdminVerifyFlow(t *testing.T) {
	reset()
	profs.m[dummyUID] = models.Profile{UserID: dummyUID, Role: models.RoleAdmin}

	var out httpResp
	p := url.Values{}
	p.Set("uid", dummyUID)
	p.Set("email", dummyAdminTo)
	r := testRequest(t, http.MethodPut, "/api/otp/admin", p, &out)
	require.Equal(t, http.StatusOK, r.StatusCode, "issuance failed")

	c, err := rStore.Get(models.NamespaceAdmin, dummyUID)
	require.NoError(t, err)

	// Wrong code.
	cp := url.Values{}
	cp.Set("uid", dummyUID)
	cp.Set("otp", "000000")
	r = testRequest(t, http.MethodPost, "/api/otp/admin/verify", cp, &out)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode, "non 400 response for bad code")
	assert.Equal(t, "mismatch", out.Reason)

	// Correct code still works after a mismatch.
	cp.Set("otp", c.OTP)
	r = testRequest(t, http.MethodPost, "/api/otp/admin/verify", cp, &out)
	require.Equal(t, http.StatusOK, r.StatusCode, "good code failed")

	// Both flags mirrored for the admin.
	prof := profs.m[dummyUID]
	assert.True(t, prof.IsVerified, "is_verified wasn't mirrored")
	assert.True(t, prof.IsAdminVerified, "is_admin_verified wasn't mirrored")

	// Single use: the same code fails the second time.
	r = testRequest(t, http.MethodPost, "/api/otp/admin/verify", cp, &out)
	assert.Equal(t, http.StatusNotFound, r.StatusCode, "code verified twice")
	assert.Equal(t, "not_found", out.Reason)
}

func TestVolunteerVerifyFlow(t *testing.T) {
	reset()

	var out httpResp
	p := url.Values{}
	p.Set("email", dummyVolTo)
	p.Set("name", dummyVolName)
	r := testRequest(t, http.MethodPut, "/api/otp/volunteer", p, &out)
	require.Equal(t, http.StatusOK, r.StatusCode, "issuance failed")

	id := models.SanitizeKey(dummyVolTo)
	c, err := rStore.Get(models.NamespaceVolunteer, id)
	require.NoError(t, err)

	cp := url.Values{}
	cp.Set("email", dummyVolTo)
	cp.Set("otp", c.OTP)
	r = testRequest(t, http.MethodPost, "/api/otp/volunteer/verify", cp, &out)
	require.Equal(t, http.StatusOK, r.StatusCode, "good code failed")

	// Only the general flag for volunteers, with challenge metadata
	// carried into the profile.
	prof := profs.m[id]
	assert.True(t, prof.IsVerified)
	assert.False(t, prof.IsAdminVerified, "volunteer got the elevated flag")
	assert.Equal(t, dummyVolTo, prof.Email)
	assert.Equal(t, dummyVolName, prof.Name)
}

func TestReissueInvalidatesOldCode(t *testing.T) {
	reset()

	var out httpResp
	p := url.Values{}
	p.Set("uid", dummyUID)
	p.Set("email", dummyAdminTo)
	r := testRequest(t, http.MethodPut, "/api/otp/admin", p, &out)
	require.Equal(t, http.StatusOK, r.StatusCode)
	old, err := rStore.Get(models.NamespaceAdmin, dummyUID)
	require.NoError(t, err)

	r = testRequest(t, http.MethodPut, "/api/otp/admin", p, &out)
	require.Equal(t, http.StatusOK, r.StatusCode)

	cp := url.Values{}
	cp.Set("uid", dummyUID)
	cp.Set("otp", old.OTP)
	r = testRequest(t, http.MethodPost, "/api/otp/admin/verify", cp, &out)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode, "old code verified after re-issuance")
}

func TestVerifyExpired(t *testing.T) {
	reset()

	c := models.Challenge{
		Namespace: models.NamespaceAdmin,
		ID:        dummyUID,
		OTP:       "482913",
		To:        dummyAdminTo,
		CreatedAt: time.Now().Add(-20 * time.Minute),
		ExpiresAt: time.Now().Add(-10 * time.Minute),
	}
	require.NoError(t, rStore.Set(c.Namespace, c.ID, c))

	var out httpResp
	cp := url.Values{}
	cp.Set("uid", dummyUID)
	cp.Set("otp", c.OTP)
	r := testRequest(t, http.MethodPost, "/api/otp/admin/verify", cp, &out)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
	assert.Equal(t, "expired", out.Reason)

	// Detected expiry removed the challenge.
	r = testRequest(t, http.MethodPost, "/api/otp/admin/verify", cp, &out)
	assert.Equal(t, http.StatusNotFound, r.StatusCode, "expired challenge wasn't removed")
}

func TestGetProfile(t *testing.T) {
	reset()
	profs.m[dummyUID] = models.Profile{
		UserID: dummyUID, Role: models.RoleAdmin, IsVerified: true, IsAdminVerified: true,
	}

	data := &models.Profile{}
	out := httpResp{Data: data}
	r := testRequest(t, http.MethodGet, "/api/profiles/"+dummyUID, nil, &out)
	require.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, models.RoleAdmin, data.Role)
	assert.True(t, data.IsAdminVerified)

	// Absent profile is a 200 with null data, not an error.
	var raw httpResp
	r = testRequest(t, http.MethodGet, "/api/profiles/ghost", nil, &raw)
	assert.Equal(t, http.StatusOK, r.StatusCode, "absent profile wasn't a degraded success")
	assert.Nil(t, raw.Data)
}

func testRequest(t *testing.T, method, path string, p url.Values, out interface{}) *http.Response {
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(p.Encode()))
	if err != nil {
		t.Fatal(err)
		return nil
	}
	req.SetBasicAuth(dummyUser, dummySecret)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	// HTTP client.
	c := &http.Client{}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
		return nil
	}
	defer resp.Body.Close()

	if err := json.Unmarshal(respBody, out); err != nil {
		t.Fatal(err)
	}

	return resp
}
