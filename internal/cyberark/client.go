package cyberark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	logonPathConstant                       = "/PasswordVault/API/auth/Cyberark/Logon"
	logoffPathConstant                      = "/PasswordVault/API/auth/Cyberark/Logoff"
	accountsPathConstant                    = "/PasswordVault/api/Accounts"
	safesPathConstant                       = "/PasswordVault/WebServices/PIMServices.svc/Safes"
	applicationIDQueryParameterConstant     = "AppID"
	safeQueryParameterConstant              = "Safe"
	objectQueryParameterConstant            = "Object"
	safeFilterQueryParameterConstant        = "safe"
	contentTypeHeaderConstant               = "Content-Type"
	authorizationHeaderConstant             = "Authorization"
	jsonContentTypeConstant                 = "application/json"
	errorBodySnippetLimitConstant           = 512
	responseBodyLimitConstant               = 16 << 20
	baseURLFieldNameConstant                = "base_url"
	usernameFieldNameConstant               = "username"
	applicationIDFieldNameConstant          = "application_id"
	safeNameFieldNameConstant               = "safe_name"
	accountIDFieldNameConstant              = "account_id"
	sessionFieldNameConstant                = "session"
	requiredValueMessageConstant            = "value required"
	absoluteURLRequiredMessageConstant      = "absolute http(s) URL required"
	logonOperationNameConstant              = OperationName("Logon")
	logoffOperationNameConstant             = OperationName("Logoff")
	resolvePasswordOperationNameConstant    = OperationName("ResolveServicePassword")
	listSafesOperationNameConstant          = OperationName("ListSafes")
	listAccountsOperationNameConstant       = OperationName("ListAccounts")
	fetchAccountSecretOperationNameConstant = OperationName("FetchAccountSecret")
)

// Client issues PVWA REST calls.
type Client struct {
	httpClient    HTTPClient
	configuration Configuration
	baseURL       *url.URL
}

// NewClient validates the configuration and constructs a Client. A nil httpClient is
// replaced by a default client bounded by configuration.Timeout.
func NewClient(httpClient HTTPClient, configuration Configuration) (*Client, error) {
	if httpClient == nil {
		httpClient = newDefaultHTTPClient(configuration.Timeout)
	}

	trimmedBaseURL := strings.TrimRight(strings.TrimSpace(configuration.BaseURL), "/")
	if len(trimmedBaseURL) == 0 {
		return nil, InvalidInputError{FieldName: baseURLFieldNameConstant, Message: requiredValueMessageConstant}
	}
	parsedBaseURL, parseError := url.Parse(trimmedBaseURL)
	if parseError != nil || len(parsedBaseURL.Host) == 0 || (parsedBaseURL.Scheme != "https" && parsedBaseURL.Scheme != "http") {
		return nil, InvalidInputError{FieldName: baseURLFieldNameConstant, Message: absoluteURLRequiredMessageConstant}
	}
	if len(strings.TrimSpace(configuration.Username)) == 0 {
		return nil, InvalidInputError{FieldName: usernameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(configuration.ApplicationID)) == 0 {
		return nil, InvalidInputError{FieldName: applicationIDFieldNameConstant, Message: requiredValueMessageConstant}
	}

	return &Client{httpClient: httpClient, configuration: configuration, baseURL: parsedBaseURL}, nil
}

// Authenticate logs on as the service account and returns the session token.
// The password comes from configuration or, when absent, from ResolveServicePassword.
func (client *Client) Authenticate(executionContext context.Context) (SessionToken, error) {
	password := client.configuration.Password
	if len(password) == 0 {
		resolvedPassword, resolutionError := client.ResolveServicePassword(executionContext)
		if resolutionError != nil {
			return "", resolutionError
		}
		password = resolvedPassword
	}

	session, logonError := client.logon(executionContext, password)
	if logonError != nil {
		return "", AuthError{Cause: logonError}
	}
	return session, nil
}

// ResolveServicePassword looks up the service account's password through an application-scoped
// query. The vault authorizes the empty-password logon used here for this lookup; the secondary
// session is logged off before returning.
func (client *Client) ResolveServicePassword(executionContext context.Context) (string, error) {
	lookupSession, logonError := client.logon(executionContext, "")
	if logonError != nil {
		return "", CredentialResolutionError{Cause: logonError}
	}
	defer func() {
		_ = client.Logoff(context.WithoutCancel(executionContext), lookupSession)
	}()

	query := url.Values{}
	query.Set(applicationIDQueryParameterConstant, client.configuration.ApplicationID)
	query.Set(safeQueryParameterConstant, client.configuration.AuthenticationSafe)
	query.Set(objectQueryParameterConstant, client.configuration.UserObject)

	var response credentialLookupResponse
	requestError := client.doJSON(executionContext, resolvePasswordOperationNameConstant, http.MethodGet, accountsPathConstant, query, lookupSession, nil, &response)
	if requestError != nil {
		return "", CredentialResolutionError{Cause: requestError}
	}
	if len(response.Value) == 0 {
		return "", CredentialResolutionError{Cause: ResponseDecodingError{Operation: resolvePasswordOperationNameConstant, Cause: errCredentialNotFound}}
	}

	return response.Value[0].Properties.Password, nil
}

// ListSafes returns every safe visible to the session, in the order the vault lists them.
func (client *Client) ListSafes(executionContext context.Context, session SessionToken) ([]Safe, error) {
	if len(session) == 0 {
		return nil, InvalidInputError{FieldName: sessionFieldNameConstant, Message: requiredValueMessageConstant}
	}

	var response safesListResponse
	if requestError := client.doJSON(executionContext, listSafesOperationNameConstant, http.MethodGet, safesPathConstant, nil, session, nil, &response); requestError != nil {
		return nil, requestError
	}

	safes := make([]Safe, 0, len(response.SafesList))
	for _, safeEntry := range response.SafesList {
		safes = append(safes, Safe{Name: safeEntry.SafeName})
	}
	return safes, nil
}

// ListAccounts returns the accounts stored in the named safe.
func (client *Client) ListAccounts(executionContext context.Context, session SessionToken, safeName string) ([]Account, error) {
	if len(session) == 0 {
		return nil, InvalidInputError{FieldName: sessionFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(safeName)) == 0 {
		return nil, InvalidInputError{FieldName: safeNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	query := url.Values{}
	query.Set(safeFilterQueryParameterConstant, safeName)

	var response accountsListResponse
	if requestError := client.doJSON(executionContext, listAccountsOperationNameConstant, http.MethodGet, accountsPathConstant, query, session, nil, &response); requestError != nil {
		return nil, requestError
	}

	accounts := make([]Account, 0, len(response.Value))
	for _, accountEntry := range response.Value {
		accounts = append(accounts, Account{
			ID:         accountEntry.ID,
			Name:       accountEntry.Name,
			UserName:   accountEntry.UserName,
			Address:    accountEntry.Address,
			PlatformID: accountEntry.PlatformID,
		})
	}
	return accounts, nil
}

// FetchAccountSecret retrieves the password of a single account.
func (client *Client) FetchAccountSecret(executionContext context.Context, session SessionToken, accountID string) (string, error) {
	if len(session) == 0 {
		return "", InvalidInputError{FieldName: sessionFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedAccountID := strings.TrimSpace(accountID)
	if len(trimmedAccountID) == 0 {
		return "", InvalidInputError{FieldName: accountIDFieldNameConstant, Message: requiredValueMessageConstant}
	}

	var response accountDetailsResponse
	accountPath := accountsPathConstant + "/" + url.PathEscape(trimmedAccountID)
	if requestError := client.doJSON(executionContext, fetchAccountSecretOperationNameConstant, http.MethodGet, accountPath, nil, session, nil, &response); requestError != nil {
		return "", requestError
	}
	return response.Properties.Password, nil
}

// Logoff ends the session. Callers typically ignore the result.
func (client *Client) Logoff(executionContext context.Context, session SessionToken) error {
	if len(session) == 0 {
		return InvalidInputError{FieldName: sessionFieldNameConstant, Message: requiredValueMessageConstant}
	}
	_, requestError := client.do(executionContext, logoffOperationNameConstant, http.MethodPost, logoffPathConstant, nil, session, nil)
	return requestError
}

func (client *Client) logon(executionContext context.Context, password string) (SessionToken, error) {
	payload := logonRequest{
		Username:    client.configuration.Username,
		Password:    password,
		Application: client.configuration.ApplicationID,
	}

	responseBody, requestError := client.do(executionContext, logonOperationNameConstant, http.MethodPost, logonPathConstant, nil, "", payload)
	if requestError != nil {
		return "", requestError
	}

	session := parseSessionToken(responseBody)
	if len(session) == 0 {
		return "", ResponseDecodingError{Operation: logonOperationNameConstant, Cause: errEmptySessionToken}
	}
	return session, nil
}

func (client *Client) doJSON(executionContext context.Context, operation OperationName, method string, path string, query url.Values, session SessionToken, payload any, target any) error {
	responseBody, requestError := client.do(executionContext, operation, method, path, query, session, payload)
	if requestError != nil {
		return requestError
	}
	if decodingError := json.Unmarshal(responseBody, target); decodingError != nil {
		return ResponseDecodingError{Operation: operation, Cause: decodingError}
	}
	return nil
}

func (client *Client) do(executionContext context.Context, operation OperationName, method string, escapedPath string, query url.Values, session SessionToken, payload any) ([]byte, error) {
	requestURL := *client.baseURL
	requestURL.RawPath = client.baseURL.EscapedPath() + escapedPath
	unescapedPath, unescapeError := url.PathUnescape(requestURL.RawPath)
	if unescapeError != nil {
		return nil, OperationError{Operation: operation, Cause: unescapeError}
	}
	requestURL.Path = unescapedPath
	if len(query) > 0 {
		requestURL.RawQuery = query.Encode()
	}

	var requestBody io.Reader
	if payload != nil {
		payloadBytes, encodingError := json.Marshal(payload)
		if encodingError != nil {
			return nil, OperationError{Operation: operation, Cause: encodingError}
		}
		requestBody = bytes.NewReader(payloadBytes)
	}

	request, requestError := http.NewRequestWithContext(executionContext, method, requestURL.String(), requestBody)
	if requestError != nil {
		return nil, OperationError{Operation: operation, Cause: requestError}
	}
	request.Header.Set(contentTypeHeaderConstant, jsonContentTypeConstant)
	if len(session) > 0 {
		request.Header.Set(authorizationHeaderConstant, string(session))
	}

	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		return nil, OperationError{Operation: operation, Cause: responseError}
	}
	defer response.Body.Close()

	responseBody, readError := io.ReadAll(io.LimitReader(response.Body, responseBodyLimitConstant))
	if readError != nil {
		return nil, OperationError{Operation: operation, Cause: readError}
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, OperationError{Operation: operation, Cause: UnexpectedStatusError{
			StatusCode: response.StatusCode,
			Body:       truncateBody(responseBody),
		}}
	}

	return responseBody, nil
}

func parseSessionToken(responseBody []byte) SessionToken {
	trimmedToken := strings.TrimSpace(string(responseBody))
	if strings.HasPrefix(trimmedToken, `"`) {
		if unquotedToken, unquoteError := strconv.Unquote(trimmedToken); unquoteError == nil {
			trimmedToken = strings.TrimSpace(unquotedToken)
		}
	}
	return SessionToken(trimmedToken)
}

func truncateBody(responseBody []byte) string {
	trimmedBody := strings.TrimSpace(string(responseBody))
	if len(trimmedBody) <= errorBodySnippetLimitConstant {
		return trimmedBody
	}
	return fmt.Sprintf("%s...", trimmedBody[:errorBodySnippetLimitConstant])
}
