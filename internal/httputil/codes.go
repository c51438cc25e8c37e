package httputil

// Machine-readable error codes returned alongside human-readable messages.
// Clients should branch on these rather than on message text.
const (
	CodeInvalidRequestBody = "invalid_request_body"
	CodeInternalError      = "internal_error"

	CodeEmailAlreadyExists = "email_already_exists"
	CodeEmailRequired      = "email_required"
	CodeInvalidEmailFormat = "invalid_email_format"
	CodeNameTooShort       = "name_too_short"
	CodePasswordRequired   = "password_required"
	CodePasswordTooShort   = "password_too_short"

	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidAuthHeader  = "invalid_auth_header"
	CodeMissingAuth        = "missing_auth"
	CodeInvalidToken       = "invalid_token"
	CodeTokenExpired       = "token_expired"
	CodeInvalidTokenUserID = "invalid_token_user_id"
	CodeAccessTokenMissing = "access_token_missing"

	CodeUserNotFound        = "user_not_found"
	CodeInvalidPurposeToken = "invalid_or_expired_token"
	CodeAlreadyVerified     = "already_verified"
	CodeVerifyTokenRequired = "verification_token_required"
	CodeResetTokenRequired  = "reset_token_required"
)
