package authsdk

import (
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for the twofa service. All operations are
// unauthenticated; the user ID returned at registration is the only handle.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new twofa service client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}
