package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mossline/account-api/internal/httputil"
	"github.com/mossline/account-api/internal/logging"
	"github.com/mossline/account-api/internal/user"
)

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ForgotPasswordRequest represents the password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the password reset confirmation
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID              uuid.UUID  `json:"id"`
	FullName        string     `json:"full_name"`
	Email           string     `json:"email"`
	RoleID          int        `json:"role_id"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
}

// AuthResponse represents a successful register or login response
type AuthResponse struct {
	Message     string       `json:"message"`
	User        UserResponse `json:"user"`
	AccessToken string       `json:"access_token"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		FullName:        u.FullName,
		Email:           u.Email,
		RoleID:          u.RoleID,
		EmailVerifiedAt: u.EmailVerifiedAt,
	}
}

// Register handles user registration
// @Summary      Register a new user
// @Description  Create a new user account. A verification email will be sent asynchronously.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration details"
// @Success      201 {object} AuthResponse
// @Failure      400 {object} ErrorResponse "Validation error"
// @Failure      409 {object} ErrorResponse "Email already exists"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /api/v1/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	newUser, accessToken, err := h.service.Register(r.Context(), req.FirstName, req.LastName, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrDuplicateEmail):
			logger.Warn("registration failed: email already exists")
			respondError(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
		case errors.Is(err, ErrNameTooShort):
			logger.Warn("registration failed: validation error", "error", err.Error())
			respondError(w, err.Error(), httputil.CodeNameTooShort, http.StatusBadRequest)
		case errors.Is(err, ErrEmailRequired):
			logger.Warn("registration failed: validation error", "error", err.Error())
			respondError(w, err.Error(), httputil.CodeEmailRequired, http.StatusBadRequest)
		case errors.Is(err, ErrInvalidEmailFormat):
			logger.Warn("registration failed: validation error", "error", err.Error())
			respondError(w, err.Error(), httputil.CodeInvalidEmailFormat, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordRequired):
			logger.Warn("registration failed: validation error", "error", err.Error())
			respondError(w, err.Error(), httputil.CodePasswordRequired, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordTooShort):
			logger.Warn("registration failed: validation error", "error", err.Error())
			respondError(w, err.Error(), httputil.CodePasswordTooShort, http.StatusBadRequest)
		default:
			logger.Error("registration failed: internal error", "error", err.Error())
			respondError(w, "failed to register user", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user registered successfully", "user_id", newUser.ID)

	respondJSON(w, AuthResponse{
		Message:     "User registered, check mail to verify user account",
		User:        toUserResponse(newUser),
		AccessToken: accessToken,
	}, http.StatusCreated)
}

// Login handles user login
// @Summary      User login
// @Description  Authenticate a user and receive an access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} AuthResponse
// @Failure      400 {object} ErrorResponse "Invalid request body"
// @Failure      401 {object} ErrorResponse "Invalid credentials"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /api/v1/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	existingUser, accessToken, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.Warn("login failed: invalid credentials")
			respondError(w, "invalid email or password", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
			return
		}
		logger.Error("login failed: internal error", "error", err.Error())
		respondError(w, "failed to login", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user logged in successfully")

	respondJSON(w, AuthResponse{
		Message:     "Login success",
		User:        toUserResponse(existingUser),
		AccessToken: accessToken,
	}, http.StatusOK)
}

// Logout handles user logout
// @Summary      User logout
// @Description  Deletes the access token belonging to the current session
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} map[string]string
// @Failure      400 {object} ErrorResponse "Token not found"
// @Failure      401 {object} ErrorResponse "Unauthorized"
// @Router       /api/v1/auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, _ := GetUserIDFromContext(r.Context())
	tokenID, _ := GetTokenIDFromContext(r.Context())

	if err := h.service.Logout(r.Context(), userID, tokenID); err != nil {
		if errors.Is(err, ErrMissingAccessToken) {
			logger.Warn("logout failed: token not found")
			respondError(w, "token not found", httputil.CodeAccessTokenMissing, http.StatusBadRequest)
			return
		}
		logger.Error("logout failed: internal error", "error", err.Error())
		respondError(w, "failed to logout", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user logged out successfully", "user_id", userID)

	respondJSON(w, map[string]string{"message": "Logged out"}, http.StatusOK)
}

// ForgotPassword handles password reset requests
// @Summary      Request password reset
// @Description  Queue a password reset email for a registered address
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ForgotPasswordRequest true "Email address"
// @Success      200 {object} map[string]string
// @Failure      400 {object} ErrorResponse "Invalid request body"
// @Failure      404 {object} ErrorResponse "User not found"
// @Router       /api/v1/auth/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid forgot password request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			logger.Warn("password reset requested for unknown email")
			respondError(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("password reset request failed: internal error", "error", err.Error())
		respondError(w, "failed to request password reset", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("password reset email queued")

	respondJSON(w, map[string]string{"message": "Password reset email added to queue"}, http.StatusOK)
}

// ResetPasswordForm is the landing route for emailed reset links. The
// original served an HTML form here; as a JSON API we hand back the token and
// its validity so the client can render the new-password form itself.
// @Summary      Password reset landing
// @Description  Validates the emailed reset token before the client shows the form
// @Tags         auth
// @Produce      json
// @Param        token path string true "Reset token"
// @Success      200 {object} map[string]string
// @Failure      400 {object} ErrorResponse "Invalid or expired token"
// @Router       /api/v1/auth/reset-password/{token} [get]
func (h *Handler) ResetPasswordForm(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	tokenValue := chi.URLParam(r, "token")
	if tokenValue == "" {
		logger.Warn("reset landing failed: token missing")
		respondError(w, "reset token required", httputil.CodeResetTokenRequired, http.StatusBadRequest)
		return
	}

	if err := h.service.CheckPasswordResetToken(r.Context(), tokenValue); err != nil {
		if errors.Is(err, ErrInvalidOrExpiredToken) {
			logger.Warn("reset landing failed: invalid or expired token")
			respondError(w, "invalid or expired token", httputil.CodeInvalidPurposeToken, http.StatusBadRequest)
			return
		}
		logger.Error("reset landing failed: internal error", "error", err.Error())
		respondError(w, "failed to check reset token", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]string{
		"message": "Token valid, submit a new password",
		"token":   tokenValue,
	}, http.StatusOK)
}

// ResetPassword handles password reset with token
// @Summary      Reset password
// @Description  Reset a user's password using a valid reset token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ResetPasswordRequest true "Reset token and new password"
// @Success      200 {object} map[string]string
// @Failure      400 {object} ErrorResponse "Invalid request or token"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /api/v1/auth/reset-password [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reset password request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if req.Token == "" {
		logger.Warn("password reset failed: token missing")
		respondError(w, "reset token required", httputil.CodeResetTokenRequired, http.StatusBadRequest)
		return
	}

	err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidOrExpiredToken):
			logger.Warn("password reset failed: invalid or expired token")
			respondError(w, "invalid or expired token", httputil.CodeInvalidPurposeToken, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordRequired):
			logger.Warn("password reset failed: validation error", "error", err.Error())
			respondError(w, err.Error(), httputil.CodePasswordRequired, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordTooShort):
			logger.Warn("password reset failed: validation error", "error", err.Error())
			respondError(w, err.Error(), httputil.CodePasswordTooShort, http.StatusBadRequest)
		default:
			logger.Error("password reset failed: internal error", "error", err.Error())
			respondError(w, "failed to reset password", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("password reset successfully")

	respondJSON(w, map[string]string{"message": "Password reset successful"}, http.StatusOK)
}

// RequestEmailVerification handles manual verification email requests
// @Summary      Request email verification
// @Description  Authenticated user requests a fresh verification email
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} map[string]string
// @Failure      400 {object} ErrorResponse "Email already verified"
// @Failure      401 {object} ErrorResponse "Unauthorized"
// @Router       /api/v1/auth/verify/email/request [get]
func (h *Handler) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	if err := h.service.RequestEmailVerification(r.Context(), userID); err != nil {
		if errors.Is(err, ErrAlreadyVerified) {
			logger.Warn("verification request failed: already verified", "user_id", userID)
			respondError(w, "email already verified", httputil.CodeAlreadyVerified, http.StatusBadRequest)
			return
		}
		logger.Error("verification request failed: internal error", "error", err.Error())
		respondError(w, "failed to request verification", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("verification email queued", "user_id", userID)

	respondJSON(w, map[string]string{"message": "Verification email sent"}, http.StatusOK)
}

// VerifyEmail handles email verification from the emailed link
// @Summary      Verify email address
// @Description  Marks the token owner's email as verified
// @Tags         auth
// @Produce      json
// @Param        token path string true "Verification token"
// @Success      200 {object} map[string]string
// @Failure      400 {object} ErrorResponse "Invalid or expired token"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /api/v1/auth/verify/email/{token} [get]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	tokenValue := chi.URLParam(r, "token")
	if tokenValue == "" {
		logger.Warn("email verification failed: token missing")
		respondError(w, "verification token required", httputil.CodeVerifyTokenRequired, http.StatusBadRequest)
		return
	}

	if err := h.service.VerifyEmail(r.Context(), tokenValue); err != nil {
		if errors.Is(err, ErrInvalidOrExpiredToken) {
			logger.Warn("email verification failed: invalid or expired token")
			respondError(w, "invalid or expired token", httputil.CodeInvalidPurposeToken, http.StatusBadRequest)
			return
		}
		logger.Error("email verification failed: internal error", "error", err.Error())
		respondError(w, "failed to verify email", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("email verified successfully")

	respondJSON(w, map[string]string{"message": "Email verified successfully"}, http.StatusOK)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

// respondError sends an error response with a machine-readable code
func respondError(w http.ResponseWriter, message string, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}
