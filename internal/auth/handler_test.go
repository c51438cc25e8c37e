package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/mossline/account-api/internal/httputil"
	"github.com/mossline/account-api/internal/logging"
)

// fakeAuthenticator resolves any bearer value it was primed with.
type fakeAuthenticator struct {
	claims map[string]*TokenClaims
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context, tokenStr string) (*TokenClaims, error) {
	claims, ok := f.claims[tokenStr]
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type handlerEnv struct {
	*testEnv
	router *chi.Mux
	authn  *fakeAuthenticator
}

// newHandlerEnv wires the handler behind the same route tree production uses,
// with a fake bearer authenticator in front of the protected group.
func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	env := newTestEnv(t)
	logger := logging.NewLogger(true)
	handler := NewHandler(env.svc, logger)

	authn := &fakeAuthenticator{claims: make(map[string]*TokenClaims)}
	mw := NewMiddleware(authn)

	r := chi.NewRouter()
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
		r.Post("/forgot-password", handler.ForgotPassword)
		r.Get("/reset-password/{token}", handler.ResetPasswordForm)
		r.Post("/reset-password", handler.ResetPassword)
		r.Get("/verify/email/{token}", handler.VerifyEmail)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth)
			r.Post("/logout", handler.Logout)
			r.Get("/verify/email/request", handler.RequestEmailVerification)
		})
	})

	return &handlerEnv{testEnv: env, router: r, authn: authn}
}

func (e *handlerEnv) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *handlerEnv) get(t *testing.T, path, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandlerRegister(t *testing.T) {
	t.Parallel()

	env := newHandlerEnv(t)

	rec := env.postJSON(t, "/api/v1/auth/register", RegisterRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Password:  "secret-pass-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Ada Lovelace", resp.User.FullName)
	require.Equal(t, "ada@example.com", resp.User.Email)
	require.Nil(t, resp.User.EmailVerifiedAt)
	require.NotEmpty(t, resp.AccessToken)

	// The raw purpose token never appears in the response body
	mail := env.dispatcher.lastMail(t)
	require.NotContains(t, rec.Body.String(), mail.value)
}

func TestHandlerRegisterErrors(t *testing.T) {
	t.Parallel()

	env := newHandlerEnv(t)
	env.register(t)

	t.Run("duplicate email", func(t *testing.T) {
		rec := env.postJSON(t, "/api/v1/auth/register", RegisterRequest{
			FirstName: "Grace",
			LastName:  "Hopper",
			Email:     "ada@example.com",
			Password:  "another-pass-1",
		})
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, httputil.CodeEmailAlreadyExists, decodeError(t, rec).Code)
	})

	t.Run("short name", func(t *testing.T) {
		rec := env.postJSON(t, "/api/v1/auth/register", RegisterRequest{
			FirstName: "Al",
			LastName:  "Hopper",
			Email:     "al@example.com",
			Password:  "another-pass-1",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, httputil.CodeNameTooShort, decodeError(t, rec).Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, httputil.CodeInvalidRequestBody, decodeError(t, rec).Code)
	})
}

func TestHandlerLogin(t *testing.T) {
	t.Parallel()

	env := newHandlerEnv(t)
	env.register(t)

	t.Run("valid credentials", func(t *testing.T) {
		rec := env.postJSON(t, "/api/v1/auth/login", LoginRequest{
			Email:    "ada@example.com",
			Password: "secret-pass-1",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp AuthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.AccessToken)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := env.postJSON(t, "/api/v1/auth/login", LoginRequest{
			Email:    "ada@example.com",
			Password: "wrong-password",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, httputil.CodeInvalidCredentials, decodeError(t, rec).Code)
	})
}

func TestHandlerLogout(t *testing.T) {
	t.Parallel()

	env := newHandlerEnv(t)
	registered, sessionID := env.register(t)

	env.authn.claims["valid-bearer"] = &TokenClaims{
		UserID:  registered.ID.String(),
		Email:   registered.Email,
		TokenID: sessionID,
	}

	t.Run("without bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, httputil.CodeMissingAuth, decodeError(t, rec).Code)
	})

	t.Run("revokes the session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer valid-bearer")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 0, env.access.count(registered.ID))
	})

	t.Run("second logout finds no session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer valid-bearer")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, httputil.CodeAccessTokenMissing, decodeError(t, rec).Code)
	})
}

func TestHandlerForgotPassword(t *testing.T) {
	t.Parallel()

	env := newHandlerEnv(t)
	env.register(t)

	t.Run("known email", func(t *testing.T) {
		rec := env.postJSON(t, "/api/v1/auth/forgot-password", ForgotPasswordRequest{Email: "ada@example.com"})
		require.Equal(t, http.StatusOK, rec.Code)

		// The token travels in the queued mail, not the response
		mail := env.dispatcher.lastMail(t)
		require.NotContains(t, rec.Body.String(), mail.value)
	})

	t.Run("unknown email", func(t *testing.T) {
		rec := env.postJSON(t, "/api/v1/auth/forgot-password", ForgotPasswordRequest{Email: "nobody@example.com"})
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, httputil.CodeUserNotFound, decodeError(t, rec).Code)
	})
}

func TestHandlerResetPassword(t *testing.T) {
	t.Parallel()

	env := newHandlerEnv(t)
	env.register(t)

	rec := env.postJSON(t, "/api/v1/auth/forgot-password", ForgotPasswordRequest{Email: "ada@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	resetToken := env.dispatcher.lastMail(t).value

	t.Run("missing token", func(t *testing.T) {
		rec := env.postJSON(t, "/api/v1/auth/reset-password", ResetPasswordRequest{NewPassword: "brand-new-pass"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, httputil.CodeResetTokenRequired, decodeError(t, rec).Code)
	})

	t.Run("valid token", func(t *testing.T) {
		rec := env.postJSON(t, "/api/v1/auth/reset-password", ResetPasswordRequest{
			Token:       resetToken,
			NewPassword: "brand-new-pass",
		})
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("replayed token", func(t *testing.T) {
		rec := env.postJSON(t, "/api/v1/auth/reset-password", ResetPasswordRequest{
			Token:       resetToken,
			NewPassword: "yet-another-pass",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, httputil.CodeInvalidPurposeToken, decodeError(t, rec).Code)
	})
}

func TestHandlerResetPasswordLanding(t *testing.T) {
	t.Parallel()

	env := newHandlerEnv(t)
	env.register(t)

	rec := env.postJSON(t, "/api/v1/auth/forgot-password", ForgotPasswordRequest{Email: "ada@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	resetToken := env.dispatcher.lastMail(t).value

	t.Run("emailed link path resolves", func(t *testing.T) {
		// Same path shape the reset mail embeds
		rec := env.get(t, "/api/v1/auth/reset-password/"+resetToken, "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), resetToken)
	})

	t.Run("landing does not consume the token", func(t *testing.T) {
		rec := env.get(t, "/api/v1/auth/reset-password/"+resetToken, "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.postJSON(t, "/api/v1/auth/reset-password", ResetPasswordRequest{
			Token:       resetToken,
			NewPassword: "brand-new-pass",
		})
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("consumed token", func(t *testing.T) {
		rec := env.get(t, "/api/v1/auth/reset-password/"+resetToken, "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, httputil.CodeInvalidPurposeToken, decodeError(t, rec).Code)
	})

	t.Run("unknown token", func(t *testing.T) {
		rec := env.get(t, "/api/v1/auth/reset-password/bogus-token", "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, httputil.CodeInvalidPurposeToken, decodeError(t, rec).Code)
	})
}

func TestHandlerVerifyEmail(t *testing.T) {
	t.Parallel()

	env := newHandlerEnv(t)
	registered, _ := env.register(t)
	verifyToken := env.dispatcher.lastMail(t).value

	t.Run("valid token", func(t *testing.T) {
		rec := env.get(t, "/api/v1/auth/verify/email/"+verifyToken, "")
		require.Equal(t, http.StatusOK, rec.Code)

		stored, err := env.users.GetByID(context.Background(), registered.ID)
		require.NoError(t, err)
		require.True(t, stored.EmailVerified())
	})

	t.Run("replayed token", func(t *testing.T) {
		rec := env.get(t, "/api/v1/auth/verify/email/"+verifyToken, "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, httputil.CodeInvalidPurposeToken, decodeError(t, rec).Code)
	})
}

func TestHandlerRequestEmailVerification(t *testing.T) {
	t.Parallel()

	env := newHandlerEnv(t)
	registered, sessionID := env.register(t)

	env.authn.claims["valid-bearer"] = &TokenClaims{
		UserID:  registered.ID.String(),
		Email:   registered.Email,
		TokenID: sessionID,
	}

	t.Run("queues a fresh mail", func(t *testing.T) {
		rec := env.get(t, "/api/v1/auth/verify/email/request", "valid-bearer")
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("already verified", func(t *testing.T) {
		verifyToken := env.dispatcher.lastMail(t).value
		rec := env.get(t, "/api/v1/auth/verify/email/"+verifyToken, "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.get(t, "/api/v1/auth/verify/email/request", "valid-bearer")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, httputil.CodeAlreadyVerified, decodeError(t, rec).Code)
	})
}
