package model

// CheckResponse answers /auth/check.
type CheckResponse struct {
	Authenticated bool       `json:"authenticated"`
	User          *Principal `json:"user,omitempty"`
}

// MFAChallengeResponse is returned when a second factor is required but the
// request carried no code.
type MFAChallengeResponse struct {
	RequireMFA    bool `json:"requireMfa"`
	Authenticated bool `json:"authenticated"`
}

// MFASetupResponse carries the one-time secret display and QR URI.
type MFASetupResponse struct {
	Secret string `json:"secret"`
	QRURI  string `json:"qrUri"`
}

// MFAVerifyRequest carries the enrollment confirmation code.
type MFAVerifyRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

// MFAStatusResponse answers /auth/mfa/status.
type MFAStatusResponse struct {
	MFAEnabled bool `json:"mfaEnabled"`
}
