package cyberarktest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"

	"github.com/gorilla/mux"
)

const (
	authorizationHeaderConstant  = "Authorization"
	logonPathConstant            = "/PasswordVault/API/auth/Cyberark/Logon"
	logoffPathConstant           = "/PasswordVault/API/auth/Cyberark/Logoff"
	accountsPathConstant         = "/PasswordVault/api/Accounts"
	accountDetailsPathConstant   = "/PasswordVault/api/Accounts/{accountID}"
	safesPathConstant            = "/PasswordVault/WebServices/PIMServices.svc/Safes"
	accountIDVariableConstant    = "accountID"
	lookupTokenTemplateConstant  = "lookup-token-%d"
	sessionTokenTemplateConstant = "session-token-%d"
)

// AccountFixture describes an account and its secret.
type AccountFixture struct {
	ID         string
	Name       string
	UserName   string
	Address    string
	PlatformID string
	Password   string
}

// SafeFixture describes a safe and the accounts it lists.
type SafeFixture struct {
	Name     string
	Accounts []AccountFixture
}

// Vault configures the fake's data and failure points.
type Vault struct {
	Username           string
	ServicePassword    string
	ApplicationID      string
	AuthenticationSafe string
	UserObject         string
	Safes              []SafeFixture
	RejectLookupLogon  bool
	FailSafeListing    bool
	FailAccountListing map[string]bool
	FailSecretFetch    map[string]bool
}

// RecordedRequest captures what the fake received.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         url.Values
	Authorization string
}

// Server is a running fake PVWA.
type Server struct {
	*httptest.Server

	vault           Vault
	mutex           sync.Mutex
	requests        []RecordedRequest
	activeTokens    map[string]bool
	loggedOffTokens []string
	issuedCount     int
}

// NewServer starts a fake PVWA serving the given vault. Callers must Close it.
func NewServer(vault Vault) *Server {
	server := &Server{vault: vault, activeTokens: map[string]bool{}}

	router := mux.NewRouter().UseEncodedPath()
	router.Use(server.record)
	router.HandleFunc(logonPathConstant, server.handleLogon).Methods(http.MethodPost)
	router.HandleFunc(logoffPathConstant, server.authorized(server.handleLogoff)).Methods(http.MethodPost)
	router.HandleFunc(safesPathConstant, server.authorized(server.handleSafes)).Methods(http.MethodGet)
	router.HandleFunc(accountsPathConstant, server.authorized(server.handleAccounts)).Methods(http.MethodGet)
	router.HandleFunc(accountDetailsPathConstant, server.authorized(server.handleAccountDetails)).Methods(http.MethodGet)

	server.Server = httptest.NewServer(router)
	return server
}

// Requests returns the requests received so far.
func (server *Server) Requests() []RecordedRequest {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return append([]RecordedRequest(nil), server.requests...)
}

// LoggedOffTokens returns the tokens that were logged off, in order.
func (server *Server) LoggedOffTokens() []string {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return append([]string(nil), server.loggedOffTokens...)
}

// RequestsTo returns the recorded requests whose path equals the given path.
func (server *Server) RequestsTo(path string) []RecordedRequest {
	matching := []RecordedRequest{}
	for _, request := range server.Requests() {
		if request.Path == path {
			matching = append(matching, request)
		}
	}
	return matching
}

func (server *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		server.mutex.Lock()
		server.requests = append(server.requests, RecordedRequest{
			Method:        request.Method,
			Path:          request.URL.Path,
			Query:         request.URL.Query(),
			Authorization: request.Header.Get(authorizationHeaderConstant),
		})
		server.mutex.Unlock()
		next.ServeHTTP(writer, request)
	})
}

func (server *Server) authorized(handler http.HandlerFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		token := request.Header.Get(authorizationHeaderConstant)
		server.mutex.Lock()
		active := server.activeTokens[token]
		server.mutex.Unlock()
		if !active {
			http.Error(writer, "session is not valid", http.StatusUnauthorized)
			return
		}
		handler(writer, request)
	}
}

func (server *Server) handleLogon(writer http.ResponseWriter, request *http.Request) {
	var payload struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		Application string `json:"application"`
	}
	if decodingError := json.NewDecoder(request.Body).Decode(&payload); decodingError != nil {
		http.Error(writer, decodingError.Error(), http.StatusBadRequest)
		return
	}
	if payload.Username != server.vault.Username || payload.Application != server.vault.ApplicationID {
		http.Error(writer, "authentication failure", http.StatusForbidden)
		return
	}

	var template string
	switch {
	case len(payload.Password) == 0 && !server.vault.RejectLookupLogon:
		template = lookupTokenTemplateConstant
	case len(payload.Password) > 0 && payload.Password == server.vault.ServicePassword:
		template = sessionTokenTemplateConstant
	default:
		http.Error(writer, "authentication failure", http.StatusForbidden)
		return
	}

	server.mutex.Lock()
	server.issuedCount++
	token := fmt.Sprintf(template, server.issuedCount)
	server.activeTokens[token] = true
	server.mutex.Unlock()

	writeJSON(writer, token)
}

func (server *Server) handleLogoff(writer http.ResponseWriter, request *http.Request) {
	token := request.Header.Get(authorizationHeaderConstant)
	server.mutex.Lock()
	delete(server.activeTokens, token)
	server.loggedOffTokens = append(server.loggedOffTokens, token)
	server.mutex.Unlock()
	writer.WriteHeader(http.StatusOK)
}

func (server *Server) handleSafes(writer http.ResponseWriter, request *http.Request) {
	if server.vault.FailSafeListing {
		http.Error(writer, "safe listing unavailable", http.StatusInternalServerError)
		return
	}
	type safeEntry struct {
		SafeName string `json:"safeName"`
	}
	entries := make([]safeEntry, 0, len(server.vault.Safes))
	for _, safe := range server.vault.Safes {
		entries = append(entries, safeEntry{SafeName: safe.Name})
	}
	writeJSON(writer, map[string]any{"SafesList": entries})
}

func (server *Server) handleAccounts(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	if len(query.Get("AppID")) > 0 {
		server.handleCredentialLookup(writer, query)
		return
	}

	safeName := query.Get("safe")
	if server.vault.FailAccountListing[safeName] {
		http.Error(writer, "account listing unavailable", http.StatusInternalServerError)
		return
	}

	entries := []map[string]string{}
	for _, safe := range server.vault.Safes {
		if safe.Name != safeName {
			continue
		}
		for _, account := range safe.Accounts {
			entries = append(entries, map[string]string{
				"id":         account.ID,
				"name":       account.Name,
				"userName":   account.UserName,
				"address":    account.Address,
				"platformId": account.PlatformID,
			})
		}
	}
	writeJSON(writer, map[string]any{"value": entries, "count": len(entries)})
}

func (server *Server) handleCredentialLookup(writer http.ResponseWriter, query url.Values) {
	matches := []map[string]any{}
	if query.Get("AppID") == server.vault.ApplicationID &&
		query.Get("Safe") == server.vault.AuthenticationSafe &&
		query.Get("Object") == server.vault.UserObject {
		matches = append(matches, map[string]any{
			"properties": map[string]string{"password": server.vault.ServicePassword},
		})
	}
	writeJSON(writer, map[string]any{"value": matches})
}

func (server *Server) handleAccountDetails(writer http.ResponseWriter, request *http.Request) {
	accountID, unescapeError := url.PathUnescape(mux.Vars(request)[accountIDVariableConstant])
	if unescapeError != nil {
		http.Error(writer, unescapeError.Error(), http.StatusBadRequest)
		return
	}
	if server.vault.FailSecretFetch[accountID] {
		http.Error(writer, "secret retrieval denied", http.StatusForbidden)
		return
	}
	for _, safe := range server.vault.Safes {
		for _, account := range safe.Accounts {
			if account.ID == accountID {
				writeJSON(writer, map[string]any{
					"id":         account.ID,
					"name":       account.Name,
					"properties": map[string]string{"password": account.Password},
				})
				return
			}
		}
	}
	http.Error(writer, "account not found", http.StatusNotFound)
}

func writeJSON(writer http.ResponseWriter, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(writer).Encode(payload)
}
