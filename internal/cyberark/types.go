package cyberark

import (
	"net/http"
	"time"
)

// SessionToken is the opaque value returned by a successful logon.
type SessionToken string

// Safe is a named container of accounts in the vault.
type Safe struct {
	Name string
}

// Account is a credential record listed within a safe. The secret is not part of the listing.
type Account struct {
	ID         string
	Name       string
	UserName   string
	Address    string
	PlatformID string
}

// Configuration describes how to reach and authenticate against the vault.
type Configuration struct {
	BaseURL            string
	ApplicationID      string
	AuthenticationSafe string
	Username           string
	UserObject         string
	Password           string
	Timeout            time.Duration
}

// HTTPClient performs HTTP requests.
type HTTPClient interface {
	Do(request *http.Request) (*http.Response, error)
}

func newDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

type logonRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Application string `json:"application"`
}

type passwordProperties struct {
	Password string `json:"password"`
}

type accountDetailsResponse struct {
	Properties passwordProperties `json:"properties"`
}

type credentialLookupResponse struct {
	Value []accountDetailsResponse `json:"value"`
}

type safesListResponse struct {
	SafesList []struct {
		SafeName string `json:"safeName"`
	} `json:"SafesList"`
}

type accountsListResponse struct {
	Value []struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		UserName   string `json:"userName"`
		Address    string `json:"address"`
		PlatformID string `json:"platformId"`
	} `json:"value"`
}
