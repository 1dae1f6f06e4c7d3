package cyberark_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/ark2op/internal/cyberark"
	"github.com/temirov/ark2op/internal/cyberark/cyberarktest"
)

const (
	testUsernameConstant           = "svc-migrator"
	testServicePasswordConstant    = "service-secret"
	testApplicationIDConstant      = "MigrationApp"
	testAuthenticationSafeConstant = "ServiceSafe"
	testUserObjectConstant         = "svc-migrator-object"
	testSafeNameConstant           = "Network-Admin"
	testAccountIDConstant          = "42"
	testAccountPasswordConstant    = "s3cr3t"
	testLogonPathConstant          = "/PasswordVault/API/auth/Cyberark/Logon"
	testLogoffPathConstant         = "/PasswordVault/API/auth/Cyberark/Logoff"
	testAccountsPathConstant       = "/PasswordVault/api/Accounts"
)

type stubHTTPClient struct {
	doFunc func(*http.Request) (*http.Response, error)
}

func (client stubHTTPClient) Do(request *http.Request) (*http.Response, error) {
	return client.doFunc(request)
}

func respondWith(statusCode int, body string) stubHTTPClient {
	return stubHTTPClient{doFunc: func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: statusCode, Body: io.NopCloser(strings.NewReader(body))}, nil
	}}
}

func newTestVault() cyberarktest.Vault {
	return cyberarktest.Vault{
		Username:           testUsernameConstant,
		ServicePassword:    testServicePasswordConstant,
		ApplicationID:      testApplicationIDConstant,
		AuthenticationSafe: testAuthenticationSafeConstant,
		UserObject:         testUserObjectConstant,
		Safes: []cyberarktest.SafeFixture{
			{
				Name: testSafeNameConstant,
				Accounts: []cyberarktest.AccountFixture{
					{ID: testAccountIDConstant, Name: "router1", UserName: "admin", Address: "10.0.0.1", PlatformID: "UnixSSH", Password: testAccountPasswordConstant},
				},
			},
			{Name: "Empty-Safe"},
		},
	}
}

func newTestConfiguration(baseURL string) cyberark.Configuration {
	return cyberark.Configuration{
		BaseURL:            baseURL,
		ApplicationID:      testApplicationIDConstant,
		AuthenticationSafe: testAuthenticationSafeConstant,
		Username:           testUsernameConstant,
		UserObject:         testUserObjectConstant,
	}
}

func newTestClient(testInstance *testing.T, httpClient cyberark.HTTPClient, configuration cyberark.Configuration) *cyberark.Client {
	testInstance.Helper()
	client, creationError := cyberark.NewClient(httpClient, configuration)
	require.NoError(testInstance, creationError)
	return client
}

func TestNewClientValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		httpClient    cyberark.HTTPClient
		configuration cyberark.Configuration
		expectedField string
	}{
		{
			name:          "missing_base_url",
			httpClient:    http.DefaultClient,
			configuration: newTestConfiguration("  "),
			expectedField: "base_url",
		},
		{
			name:          "relative_base_url",
			httpClient:    http.DefaultClient,
			configuration: newTestConfiguration("pvwa.example.com"),
			expectedField: "base_url",
		},
		{
			name:       "missing_username",
			httpClient: http.DefaultClient,
			configuration: cyberark.Configuration{
				BaseURL:       "https://pvwa.example.com",
				ApplicationID: testApplicationIDConstant,
			},
			expectedField: "username",
		},
		{
			name:       "missing_application_id",
			httpClient: http.DefaultClient,
			configuration: cyberark.Configuration{
				BaseURL:  "https://pvwa.example.com",
				Username: testUsernameConstant,
			},
			expectedField: "application_id",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			client, creationError := cyberark.NewClient(testCase.httpClient, testCase.configuration)
			require.Error(testInstance, creationError)
			require.Nil(testInstance, client)
			var inputError cyberark.InvalidInputError
			require.ErrorAs(testInstance, creationError, &inputError)
			require.Equal(testInstance, testCase.expectedField, inputError.FieldName)
		})
	}
}

func TestAuthenticateResolvesServicePassword(testInstance *testing.T) {
	server := cyberarktest.NewServer(newTestVault())
	defer server.Close()

	client := newTestClient(testInstance, server.Client(), newTestConfiguration(server.URL))

	session, authenticationError := client.Authenticate(context.Background())
	require.NoError(testInstance, authenticationError)
	require.Equal(testInstance, cyberark.SessionToken("session-token-2"), session)

	logonRequests := server.RequestsTo(testLogonPathConstant)
	require.Len(testInstance, logonRequests, 2)

	lookupRequests := server.RequestsTo(testAccountsPathConstant)
	require.Len(testInstance, lookupRequests, 1)
	require.Equal(testInstance, testApplicationIDConstant, lookupRequests[0].Query.Get("AppID"))
	require.Equal(testInstance, testAuthenticationSafeConstant, lookupRequests[0].Query.Get("Safe"))
	require.Equal(testInstance, testUserObjectConstant, lookupRequests[0].Query.Get("Object"))
	require.Equal(testInstance, "lookup-token-1", lookupRequests[0].Authorization)

	require.Equal(testInstance, []string{"lookup-token-1"}, server.LoggedOffTokens())
}

type cancelAfterLookupHTTPClient struct {
	inner  cyberark.HTTPClient
	cancel context.CancelFunc
}

func (client cancelAfterLookupHTTPClient) Do(request *http.Request) (*http.Response, error) {
	response, responseError := client.inner.Do(request)
	if responseError != nil || request.URL.Query().Get("AppID") == "" {
		return response, responseError
	}
	body, readError := io.ReadAll(response.Body)
	_ = response.Body.Close()
	if readError != nil {
		return nil, readError
	}
	response.Body = io.NopCloser(bytes.NewReader(body))
	client.cancel()
	return response, nil
}

func TestResolveServicePasswordLogsOffAfterCancellation(testInstance *testing.T) {
	server := cyberarktest.NewServer(newTestVault())
	defer server.Close()

	executionContext, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newTestClient(testInstance, cancelAfterLookupHTTPClient{inner: server.Client(), cancel: cancel}, newTestConfiguration(server.URL))

	password, resolutionError := client.ResolveServicePassword(executionContext)
	require.NoError(testInstance, resolutionError)
	require.Equal(testInstance, testServicePasswordConstant, password)
	require.Error(testInstance, executionContext.Err())
	require.Equal(testInstance, []string{"lookup-token-1"}, server.LoggedOffTokens())
}

func TestDefaultHTTPClientHonorsTimeout(testInstance *testing.T) {
	slowServer := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		select {
		case <-request.Context().Done():
		case <-time.After(5 * time.Second):
		}
		writer.WriteHeader(http.StatusOK)
	}))
	defer slowServer.Close()

	configuration := newTestConfiguration(slowServer.URL)
	configuration.Timeout = 50 * time.Millisecond
	client := newTestClient(testInstance, nil, configuration)

	_, listingError := client.ListSafes(context.Background(), cyberark.SessionToken("session-token-1"))
	require.Error(testInstance, listingError)

	var timeoutError net.Error
	require.ErrorAs(testInstance, listingError, &timeoutError)
	require.True(testInstance, timeoutError.Timeout())
}

func TestAuthenticateUsesConfiguredPassword(testInstance *testing.T) {
	server := cyberarktest.NewServer(newTestVault())
	defer server.Close()

	configuration := newTestConfiguration(server.URL)
	configuration.Password = testServicePasswordConstant
	client := newTestClient(testInstance, server.Client(), configuration)

	session, authenticationError := client.Authenticate(context.Background())
	require.NoError(testInstance, authenticationError)
	require.Equal(testInstance, cyberark.SessionToken("session-token-1"), session)
	require.Len(testInstance, server.RequestsTo(testLogonPathConstant), 1)
	require.Empty(testInstance, server.RequestsTo(testAccountsPathConstant))
}

func TestAuthenticateFailures(testInstance *testing.T) {
	testInstance.Run("wrong_password", func(testInstance *testing.T) {
		server := cyberarktest.NewServer(newTestVault())
		defer server.Close()

		configuration := newTestConfiguration(server.URL)
		configuration.Password = "wrong"
		client := newTestClient(testInstance, server.Client(), configuration)

		session, authenticationError := client.Authenticate(context.Background())
		require.Empty(testInstance, session)
		var authError cyberark.AuthError
		require.ErrorAs(testInstance, authenticationError, &authError)
		var statusError cyberark.UnexpectedStatusError
		require.ErrorAs(testInstance, authenticationError, &statusError)
		require.Equal(testInstance, http.StatusForbidden, statusError.StatusCode)
	})

	testInstance.Run("lookup_logon_rejected", func(testInstance *testing.T) {
		vault := newTestVault()
		vault.RejectLookupLogon = true
		server := cyberarktest.NewServer(vault)
		defer server.Close()

		client := newTestClient(testInstance, server.Client(), newTestConfiguration(server.URL))

		_, authenticationError := client.Authenticate(context.Background())
		var resolutionError cyberark.CredentialResolutionError
		require.ErrorAs(testInstance, authenticationError, &resolutionError)
		require.Empty(testInstance, server.LoggedOffTokens())
	})

	testInstance.Run("lookup_without_match", func(testInstance *testing.T) {
		server := cyberarktest.NewServer(newTestVault())
		defer server.Close()

		configuration := newTestConfiguration(server.URL)
		configuration.UserObject = "unknown-object"
		client := newTestClient(testInstance, server.Client(), configuration)

		_, authenticationError := client.Authenticate(context.Background())
		var resolutionError cyberark.CredentialResolutionError
		require.ErrorAs(testInstance, authenticationError, &resolutionError)
		var decodingError cyberark.ResponseDecodingError
		require.ErrorAs(testInstance, authenticationError, &decodingError)
		require.Equal(testInstance, []string{"lookup-token-1"}, server.LoggedOffTokens())
	})

	testInstance.Run("transport_failure", func(testInstance *testing.T) {
		transportError := errors.New("connection refused")
		configuration := newTestConfiguration("https://pvwa.example.com")
		configuration.Password = testServicePasswordConstant
		client := newTestClient(testInstance, stubHTTPClient{doFunc: func(*http.Request) (*http.Response, error) {
			return nil, transportError
		}}, configuration)

		_, authenticationError := client.Authenticate(context.Background())
		var authError cyberark.AuthError
		require.ErrorAs(testInstance, authenticationError, &authError)
		require.ErrorIs(testInstance, authenticationError, transportError)
	})

	testInstance.Run("empty_token", func(testInstance *testing.T) {
		configuration := newTestConfiguration("https://pvwa.example.com")
		configuration.Password = testServicePasswordConstant
		client := newTestClient(testInstance, respondWith(http.StatusOK, `  ""  `), configuration)

		_, authenticationError := client.Authenticate(context.Background())
		var decodingError cyberark.ResponseDecodingError
		require.ErrorAs(testInstance, authenticationError, &decodingError)
	})
}

func TestLogonTokenNormalization(testInstance *testing.T) {
	testCases := []struct {
		name          string
		body          string
		expectedToken cyberark.SessionToken
	}{
		{name: "json_string", body: "\"abc123\"\n", expectedToken: "abc123"},
		{name: "raw_text", body: "  abc123 \n", expectedToken: "abc123"},
		{name: "unterminated_quote", body: `"abc123`, expectedToken: `"abc123`},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			configuration := newTestConfiguration("https://pvwa.example.com")
			configuration.Password = testServicePasswordConstant
			client := newTestClient(testInstance, respondWith(http.StatusOK, testCase.body), configuration)

			session, authenticationError := client.Authenticate(context.Background())
			require.NoError(testInstance, authenticationError)
			require.Equal(testInstance, testCase.expectedToken, session)
		})
	}
}

func TestListingAndSecretRetrieval(testInstance *testing.T) {
	server := cyberarktest.NewServer(newTestVault())
	defer server.Close()

	configuration := newTestConfiguration(server.URL + "/")
	configuration.Password = testServicePasswordConstant
	client := newTestClient(testInstance, server.Client(), configuration)

	session, authenticationError := client.Authenticate(context.Background())
	require.NoError(testInstance, authenticationError)

	safes, listSafesError := client.ListSafes(context.Background(), session)
	require.NoError(testInstance, listSafesError)
	require.Equal(testInstance, []cyberark.Safe{{Name: testSafeNameConstant}, {Name: "Empty-Safe"}}, safes)

	accounts, listAccountsError := client.ListAccounts(context.Background(), session, testSafeNameConstant)
	require.NoError(testInstance, listAccountsError)
	require.Equal(testInstance, []cyberark.Account{
		{ID: testAccountIDConstant, Name: "router1", UserName: "admin", Address: "10.0.0.1", PlatformID: "UnixSSH"},
	}, accounts)

	emptyAccounts, emptyListError := client.ListAccounts(context.Background(), session, "Empty-Safe")
	require.NoError(testInstance, emptyListError)
	require.Empty(testInstance, emptyAccounts)

	secret, fetchError := client.FetchAccountSecret(context.Background(), session, testAccountIDConstant)
	require.NoError(testInstance, fetchError)
	require.Equal(testInstance, testAccountPasswordConstant, secret)

	require.NoError(testInstance, client.Logoff(context.Background(), session))
	require.Equal(testInstance, []string{string(session)}, server.LoggedOffTokens())

	for _, request := range server.Requests() {
		if request.Path == testLogonPathConstant {
			require.Empty(testInstance, request.Authorization)
			continue
		}
		require.Equal(testInstance, string(session), request.Authorization)
	}

	accountRequests := server.RequestsTo(testAccountsPathConstant)
	require.Len(testInstance, accountRequests, 2)
	require.Equal(testInstance, testSafeNameConstant, accountRequests[0].Query.Get("safe"))
}

func TestListingFailures(testInstance *testing.T) {
	vault := newTestVault()
	vault.FailSafeListing = true
	vault.FailAccountListing = map[string]bool{testSafeNameConstant: true}
	vault.FailSecretFetch = map[string]bool{testAccountIDConstant: true}
	server := cyberarktest.NewServer(vault)
	defer server.Close()

	configuration := newTestConfiguration(server.URL)
	configuration.Password = testServicePasswordConstant
	client := newTestClient(testInstance, server.Client(), configuration)

	session, authenticationError := client.Authenticate(context.Background())
	require.NoError(testInstance, authenticationError)

	_, listSafesError := client.ListSafes(context.Background(), session)
	var operationError cyberark.OperationError
	require.ErrorAs(testInstance, listSafesError, &operationError)
	require.Equal(testInstance, cyberark.OperationName("ListSafes"), operationError.Operation)

	_, listAccountsError := client.ListAccounts(context.Background(), session, testSafeNameConstant)
	var statusError cyberark.UnexpectedStatusError
	require.ErrorAs(testInstance, listAccountsError, &statusError)
	require.Equal(testInstance, http.StatusInternalServerError, statusError.StatusCode)

	_, fetchError := client.FetchAccountSecret(context.Background(), session, testAccountIDConstant)
	require.ErrorAs(testInstance, fetchError, &statusError)
	require.Equal(testInstance, http.StatusForbidden, statusError.StatusCode)

	_, missingAccountError := client.FetchAccountSecret(context.Background(), session, "missing")
	require.ErrorAs(testInstance, missingAccountError, &statusError)
	require.Equal(testInstance, http.StatusNotFound, statusError.StatusCode)
}

func TestMalformedResponses(testInstance *testing.T) {
	configuration := newTestConfiguration("https://pvwa.example.com")
	client := newTestClient(testInstance, respondWith(http.StatusOK, "<html>"), configuration)

	_, listSafesError := client.ListSafes(context.Background(), "token")
	var decodingError cyberark.ResponseDecodingError
	require.ErrorAs(testInstance, listSafesError, &decodingError)

	_, listAccountsError := client.ListAccounts(context.Background(), "token", testSafeNameConstant)
	require.ErrorAs(testInstance, listAccountsError, &decodingError)

	_, fetchError := client.FetchAccountSecret(context.Background(), "token", testAccountIDConstant)
	require.ErrorAs(testInstance, fetchError, &decodingError)
}

func TestOperationInputValidation(testInstance *testing.T) {
	client := newTestClient(testInstance, respondWith(http.StatusOK, "{}"), newTestConfiguration("https://pvwa.example.com"))
	var inputError cyberark.InvalidInputError

	_, listSafesError := client.ListSafes(context.Background(), "")
	require.ErrorAs(testInstance, listSafesError, &inputError)

	_, listAccountsError := client.ListAccounts(context.Background(), "token", " ")
	require.ErrorAs(testInstance, listAccountsError, &inputError)
	require.Equal(testInstance, "safe_name", inputError.FieldName)

	_, fetchError := client.FetchAccountSecret(context.Background(), "token", "")
	require.ErrorAs(testInstance, fetchError, &inputError)
	require.Equal(testInstance, "account_id", inputError.FieldName)

	require.ErrorAs(testInstance, client.Logoff(context.Background(), ""), &inputError)
}

func TestAccountIdentifierIsPathEscaped(testInstance *testing.T) {
	var requestedPath string
	client := newTestClient(testInstance, stubHTTPClient{doFunc: func(request *http.Request) (*http.Response, error) {
		requestedPath = request.URL.EscapedPath()
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{"properties":{"password":"x"}}`))}, nil
	}}, newTestConfiguration("https://pvwa.example.com/base"))

	_, fetchError := client.FetchAccountSecret(context.Background(), "token", "12/../34")
	require.NoError(testInstance, fetchError)
	require.Equal(testInstance, "/base/PasswordVault/api/Accounts/12%2F..%2F34", requestedPath)
}
