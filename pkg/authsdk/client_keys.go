package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// Register creates a new unverified user and returns the shared secret.
// The secret is only ever returned here.
func (c *SDKClient) Register(ctx context.Context, req RegistrationRequest) (*RegistrationResponse, error) {
	resp, err := c.postJSON(ctx, "/api/registration", req)
	if err != nil {
		return nil, err
	}

	var reg RegistrationResponse
	if err := decodeJSON(resp, &reg, http.StatusOK); err != nil {
		return nil, err
	}

	return &reg, nil
}

// VerifyKey confirms enrollment with the first code from the authenticator.
// A wrong code is not an error: Verified is false.
func (c *SDKClient) VerifyKey(ctx context.Context, userID, code string) (*VerificationResponse, error) {
	resp, err := c.postJSON(ctx, "/api/key/verification", KeyRequest{UserID: userID, UserToken: code})
	if err != nil {
		return nil, err
	}

	var out VerificationResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// ValidateKey checks a code for a registered user without changing state.
func (c *SDKClient) ValidateKey(ctx context.Context, userID, code string) (*ValidationResponse, error) {
	resp, err := c.postJSON(ctx, "/api/key/validation", KeyRequest{UserID: userID, UserToken: code})
	if err != nil {
		return nil, err
	}

	var out ValidationResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetUserStatus reports whether userID has completed enrollment.
func (c *SDKClient) GetUserStatus(ctx context.Context, userID string) (*UserStatusResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID), nil, nil)
	if err != nil {
		return nil, err
	}

	var out UserStatusResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}
