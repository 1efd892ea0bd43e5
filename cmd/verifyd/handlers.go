package main

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/RUGU2211/beachguardians-verify/internal/verifier"
	"github.com/RUGU2211/beachguardians-verify/pkg/models"
)

// Machine-readable failure reasons, distinct from the human-readable
// message.
const (
	reasonValidation       = "validation"
	reasonNotFound         = "not_found"
	reasonExpired          = "expired"
	reasonMismatch         = "mismatch"
	reasonStoreUnavailable = "store_unavailable"
	reasonDelivery         = "delivery"
	reasonInternal         = "internal"
)

type httpResp struct {
	Status  string      `json:"status"`
	Reason  string      `json:"reason,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type issueResp struct {
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

type verifyResp struct {
	Success  bool   `json:"success,omitempty"`
	Verified bool   `json:"verified,omitempty"`
	Message  string `json:"message,omitempty"`
}

func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	var (
		app = r.Context().Value("app").(*App)
	)

	if err := app.otps.Ping(); err != nil {
		sendErrorResponse(w, "Unable to reach verification store.", reasonStoreUnavailable,
			http.StatusServiceUnavailable, nil)
		return
	}
	if err := app.profiles.Ping(r.Context()); err != nil {
		sendErrorResponse(w, "Unable to reach profile store.", reasonStoreUnavailable,
			http.StatusServiceUnavailable, nil)
		return
	}

	sendResponse(w, "OK")
}

// handleIssueAdminOTP issues and delivers a verification code for a
// platform admin, keyed by their user id.
func handleIssueAdminOTP(w http.ResponseWriter, r *http.Request) {
	var (
		app   = r.Context().Value("app").(*App)
		uid   = strings.TrimSpace(r.FormValue("uid"))
		email = strings.TrimSpace(r.FormValue("email"))
	)

	err := app.verifier.Issue(r.Context(), verifier.IssueReq{
		Namespace: models.NamespaceAdmin,
		ID:        uid,
		To:        email,
	})
	if err != nil {
		sendVerifierError(w, err)
		return
	}

	sendResponse(w, issueResp{Success: true})
}

// handleIssueVolunteerOTP issues and delivers a verification code for a
// prospective volunteer, keyed by their sanitized e-mail since no
// account exists yet.
func handleIssueVolunteerOTP(w http.ResponseWriter, r *http.Request) {
	var (
		app   = r.Context().Value("app").(*App)
		email = strings.TrimSpace(r.FormValue("email"))
		name  = strings.TrimSpace(r.FormValue("name"))
	)

	err := app.verifier.Issue(r.Context(), verifier.IssueReq{
		Namespace: models.NamespaceVolunteer,
		ID:        models.SanitizeKey(email),
		To:        email,
		Name:      name,
	})
	if err != nil {
		sendVerifierError(w, err)
		return
	}

	sendResponse(w, issueResp{Message: "Verification code sent."})
}

// handleVerifyAdminOTP checks a submitted admin code and, on success,
// mirrors both verification flags into the profile.
func handleVerifyAdminOTP(w http.ResponseWriter, r *http.Request) {
	var (
		app = r.Context().Value("app").(*App)
		uid = strings.TrimSpace(r.FormValue("uid"))
		otp = strings.TrimSpace(r.FormValue("otp"))
	)

	if err := app.verifier.Verify(r.Context(), models.NamespaceAdmin, uid, otp); err != nil {
		sendVerifierError(w, err)
		return
	}

	sendResponse(w, verifyResp{Success: true})
}

// handleVerifyVolunteerOTP checks a submitted volunteer code.
func handleVerifyVolunteerOTP(w http.ResponseWriter, r *http.Request) {
	var (
		app   = r.Context().Value("app").(*App)
		email = strings.TrimSpace(r.FormValue("email"))
		otp   = strings.TrimSpace(r.FormValue("otp"))
	)

	err := app.verifier.Verify(r.Context(), models.NamespaceVolunteer,
		models.SanitizeKey(email), otp)
	if err != nil {
		sendVerifierError(w, err)
		return
	}

	sendResponse(w, verifyResp{Verified: true, Message: "E-mail verified."})
}

// handleGetProfile fetches the durable profile on session start with
// bounded retries. A null profile is a valid, display-degraded state.
func handleGetProfile(w http.ResponseWriter, r *http.Request) {
	var (
		app = r.Context().Value("app").(*App)
		uid = chi.URLParam(r, "uid")
	)

	p, err := app.verifier.SessionProfile(r.Context(), uid)
	if err != nil {
		sendVerifierError(w, err)
		return
	}

	sendResponse(w, p)
}

// sendVerifierError maps the verifier's error classes onto HTTP status
// codes and machine-readable reasons.
func sendVerifierError(w http.ResponseWriter, err error) {
	var (
		reason = reasonInternal
		code   = http.StatusInternalServerError
	)

	switch {
	case errors.Is(err, verifier.ErrValidation):
		reason, code = reasonValidation, http.StatusBadRequest
	case errors.Is(err, verifier.ErrNotFound):
		reason, code = reasonNotFound, http.StatusNotFound
	case errors.Is(err, verifier.ErrExpired):
		reason, code = reasonExpired, http.StatusBadRequest
	case errors.Is(err, verifier.ErrMismatch):
		reason, code = reasonMismatch, http.StatusBadRequest
	case errors.Is(err, verifier.ErrStoreUnavailable):
		reason, code = reasonStoreUnavailable, http.StatusInternalServerError
	case errors.Is(err, verifier.ErrDelivery):
		reason, code = reasonDelivery, http.StatusInternalServerError
	}

	sendErrorResponse(w, err.Error(), reason, code, nil)
}

// wrap is a middleware that wraps HTTP handlers and injects the "app" context.
func wrap(app *App, next http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), "app", app)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sendResponse sends a JSON envelope to the HTTP response.
func sendResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	out, err := json.Marshal(httpResp{Status: "success", Data: data})
	if err != nil {
		sendErrorResponse(w, "Internal Server Error.", reasonInternal,
			http.StatusInternalServerError, nil)
		return
	}

	w.Write(out)
}

// sendErrorResponse sends a JSON error envelope to the HTTP response.
func sendErrorResponse(w http.ResponseWriter, message, reason string, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	resp := httpResp{Status: "error",
		Reason:  reason,
		Message: message,
		Data:    data}
	out, _ := json.Marshal(resp)
	w.Write(out)
}

// auth is a simple authentication middleware.
func auth(authMap map[string]string, next http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const authBasic = "Basic"
		var (
			pair  [][]byte
			delim = []byte(":")

			h = r.Header.Get("Authorization")
		)

		// Basic auth scheme.
		if strings.HasPrefix(h, authBasic) {
			payload, err := base64.StdEncoding.DecodeString(string(strings.Trim(h[len(authBasic):], " ")))
			if err != nil {
				sendErrorResponse(w, "Invalid Base64 value in Basic Authorization header.",
					reasonValidation, http.StatusUnauthorized, nil)
				return
			}

			pair = bytes.SplitN(payload, delim, 2)
		} else {
			sendErrorResponse(w, "Missing Basic Authorization header.",
				reasonValidation, http.StatusUnauthorized, nil)
			return

		}

		if len(pair) != 2 {
			sendErrorResponse(w, "Invalid value in Basic Authorization header.",
				reasonValidation, http.StatusUnauthorized, nil)
			return
		}

		var (
			username = string(pair[0])
			secret   = pair[1]
		)
		s, ok := authMap[username]
		if !ok || subtle.ConstantTimeCompare([]byte(s), secret) != 1 {
			sendErrorResponse(w, "Invalid API credentials.",
				reasonValidation, http.StatusUnauthorized, nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
