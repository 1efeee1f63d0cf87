package realme

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

// fakeEngine scripts Engine behaviour for service tests.
type fakeEngine struct {
	assertion *Assertion
	parseErr  error
	loginURL  string
	loginErr  error

	parseCalls int
	loginCalls int
	relayState string
}

func (f *fakeEngine) ParseResponse(r *http.Request) (*Assertion, error) {
	f.parseCalls++
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.assertion, nil
}

func (f *fakeEngine) LoginURL(relayState string) (string, error) {
	f.loginCalls++
	f.relayState = relayState
	return f.loginURL, f.loginErr
}

// fakeMetrics counts recorder calls.
type fakeMetrics struct {
	authSuccess, authFailure     int
	decodeSuccess, decodeFailure int
	rejectedRedirects            int
}

func (f *fakeMetrics) RecordAuthAttempt(mode IntegrationMode, success bool) {
	if success {
		f.authSuccess++
	} else {
		f.authFailure++
	}
}

func (f *fakeMetrics) RecordIdentityDecode(success bool) {
	if success {
		f.decodeSuccess++
	} else {
		f.decodeFailure++
	}
}

func (f *fakeMetrics) RecordRejectedRedirect() { f.rejectedRedirects++ }

func testConfig(mode IntegrationMode) *Config {
	return &Config{
		Environment:   EnvMTS,
		Mode:          mode,
		SPEntityIDs:   map[Environment]string{EnvMTS: "https://dev.example.govt.nz/realm/app"},
		AuthnContexts: map[Environment]string{EnvMTS: AuthnLowStrength},
		SiteBaseURL:   "https://www.example.govt.nz",
	}
}

func samlPostRequest(encoded string) *http.Request {
	form := url.Values{"SAMLResponse": {encoded}}
	r := httptest.NewRequest(http.MethodPost, "/Security/login/RealMe/acs",
		strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func loginAssertion() *Assertion {
	return &Assertion{
		NameID:       "FLT123",
		SessionIndex: "idx-1",
		Attributes:   AttributeBag{},
		RawResponse:  "cmF3IHJlc3BvbnNl",
	}
}

func TestEnforceLogin_ExistingSessionSkipsEngine(t *testing.T) {
	engine := &fakeEngine{}
	service := NewAuthenticationService(testConfig(ModeLogin), engine,
		WithLogger(zaptest.NewLogger(t)))
	sess := NewMemorySessionStore()

	encoded, err := JSONUserCodec{}.Encode(&UserRecord{SPNameID: "FLT123", SessionIndex: "idx-1"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	sess.Set(SessionDataKey, encoded)

	result, err := service.EnforceLogin(httptest.NewRequest(http.MethodGet, "/login", nil), sess)
	if err != nil {
		t.Fatalf("EnforceLogin: %v", err)
	}
	if result.Outcome != OutcomeAuthenticated {
		t.Fatalf("outcome = %v, want authenticated", result.Outcome)
	}
	if result.User.SPNameID != "FLT123" {
		t.Errorf("user = %+v", result.User)
	}
	if engine.parseCalls != 0 || engine.loginCalls != 0 {
		t.Errorf("engine consulted for an already-authenticated session (parse=%d login=%d)",
			engine.parseCalls, engine.loginCalls)
	}
}

func TestEnforceLogin_InvalidSessionDataRestarts(t *testing.T) {
	engine := &fakeEngine{parseErr: ErrNoResponse, loginURL: "https://mts.realme.govt.nz/sso?SAMLRequest=x"}
	service := NewAuthenticationService(testConfig(ModeLogin), engine)
	sess := NewMemorySessionStore()
	sess.Set(SessionDataKey, "{corrupt")

	result, err := service.EnforceLogin(httptest.NewRequest(http.MethodGet, "/login", nil), sess)
	if err != nil {
		t.Fatalf("EnforceLogin: %v", err)
	}
	if result.Outcome != OutcomeRedirectToIdP {
		t.Errorf("outcome = %v, want redirect to IdP", result.Outcome)
	}
}

func TestEnforceLogin_NoResponseRedirectsToIdP(t *testing.T) {
	engine := &fakeEngine{
		parseErr: ErrNoResponse,
		loginURL: "https://mts.realme.govt.nz/logon-mts/mtsEntryPoint?SAMLRequest=abc",
	}
	service := NewAuthenticationService(testConfig(ModeLogin), engine)
	sess := NewMemorySessionStore()

	result, err := service.EnforceLogin(httptest.NewRequest(http.MethodGet, "/login", nil), sess)
	if err != nil {
		t.Fatalf("EnforceLogin: %v", err)
	}
	if result.Outcome != OutcomeRedirectToIdP {
		t.Fatalf("outcome = %v, want redirect to IdP", result.Outcome)
	}
	if result.RedirectURL != engine.loginURL {
		t.Errorf("RedirectURL = %q, want %q", result.RedirectURL, engine.loginURL)
	}
	if engine.relayState != "https://www.example.govt.nz" {
		t.Errorf("relay state = %q, want site base URL", engine.relayState)
	}
}

func TestEnforceLogin_LoginModeSuccess(t *testing.T) {
	engine := &fakeEngine{assertion: loginAssertion()}
	metrics := &fakeMetrics{}
	var hooked *UserRecord
	service := NewAuthenticationService(testConfig(ModeLogin), engine,
		WithLogger(zaptest.NewLogger(t)),
		WithMetrics(metrics),
		WithLoginSuccessHook(func(u *UserRecord) { hooked = u }))
	sess := NewMemorySessionStore()
	sess.Set(LastErrorKey, "stale error from a previous attempt")

	result, err := service.EnforceLogin(samlPostRequest("cmF3IHJlc3BvbnNl"), sess)
	if err != nil {
		t.Fatalf("EnforceLogin: %v", err)
	}
	if result.Outcome != OutcomeAuthenticated {
		t.Fatalf("outcome = %v, want authenticated", result.Outcome)
	}

	user := result.User
	if user.SPNameID != "FLT123" || user.SessionIndex != "idx-1" {
		t.Errorf("user = %+v", user)
	}
	// In login mode the federated tag is the NameID itself.
	if user.UserFederatedTag != "FLT123" {
		t.Errorf("UserFederatedTag = %q, want FLT123", user.UserFederatedTag)
	}

	stored := service.SessionUser(sess)
	if stored == nil || stored.SPNameID != "FLT123" {
		t.Errorf("stored user = %+v", stored)
	}
	if raw, ok := sess.Get(OriginalResponseKey); !ok || raw != "cmF3IHJlc3BvbnNl" {
		t.Errorf("original response not retained, got %q, %v", raw, ok)
	}
	if msg := service.LastError(sess); msg != "" {
		t.Errorf("stale error message survived a successful login: %q", msg)
	}

	if hooked == nil || hooked.SPNameID != "FLT123" {
		t.Errorf("success hook got %+v", hooked)
	}
	if metrics.authSuccess != 1 || metrics.authFailure != 0 {
		t.Errorf("metrics = %+v", metrics)
	}
	if !service.IsAuthenticated(sess) {
		t.Error("IsAuthenticated should report true after login")
	}
}

func TestEnforceLogin_AssertModeSuccess(t *testing.T) {
	assertion := &Assertion{
		NameID:       "TransientID",
		SessionIndex: "idx-2",
		Attributes: AttributeBag{
			FITAttribute:      {"FIT123"},
			IdentitySourceXML: {encodeIdentityPayload([]byte(identityPartyXML))},
		},
		RawResponse: "cmF3",
	}
	engine := &fakeEngine{assertion: assertion}
	metrics := &fakeMetrics{}
	service := NewAuthenticationService(testConfig(ModeAssert), engine, WithMetrics(metrics))
	sess := NewMemorySessionStore()

	result, err := service.EnforceLogin(samlPostRequest("cmF3"), sess)
	if err != nil {
		t.Fatalf("EnforceLogin: %v", err)
	}
	if result.Outcome != OutcomeAuthenticated {
		t.Fatalf("outcome = %v, want authenticated", result.Outcome)
	}

	user := result.User
	if user.UserFederatedTag != "FIT123" {
		t.Errorf("UserFederatedTag = %q, want the FIT attribute value", user.UserFederatedTag)
	}
	if user.FederatedIdentity == nil || user.FederatedIdentity.FirstName != "Edmund" {
		t.Errorf("FederatedIdentity = %+v", user.FederatedIdentity)
	}
	if !user.IsValid(ModeAssert) {
		t.Error("assert-mode user should validate")
	}
	if metrics.decodeSuccess != 1 || metrics.decodeFailure != 0 {
		t.Errorf("decode metrics = %+v", metrics)
	}
}

func TestEnforceLogin_ProviderErrorTranslated(t *testing.T) {
	engine := &fakeEngine{parseErr: newAuthError(ErrCodeAuthFailed, "SAML response validation failed")}
	metrics := &fakeMetrics{}
	service := NewAuthenticationService(testConfig(ModeLogin), engine, WithMetrics(metrics))
	sess := NewMemorySessionStore()

	result, err := service.EnforceLogin(samlPostRequest(encodeResponse(failedResponseXML)), sess)
	if err != nil {
		t.Fatalf("EnforceLogin: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", result.Outcome)
	}

	want := NewErrorTranslator(nil).Translate(StatusUnknownPrincipal)
	if result.Message != want {
		t.Errorf("message = %q, want %q", result.Message, want)
	}
	if got := service.LastError(sess); got != want {
		t.Errorf("LastError = %q, want %q", got, want)
	}
	if strings.Contains(result.Message, "urn:") {
		t.Errorf("message leaks the raw status URN: %q", result.Message)
	}

	// No user record may exist after a failed attempt.
	if service.SessionUser(sess) != nil {
		t.Error("failed attempt left a user record in session")
	}
	if metrics.authFailure != 1 || metrics.authSuccess != 0 {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestEnforceLogin_ProviderErrorWithoutStatusCode(t *testing.T) {
	engine := &fakeEngine{parseErr: newAuthError(ErrCodeAuthFailed, "SAML response validation failed")}
	service := NewAuthenticationService(testConfig(ModeLogin), engine)
	sess := NewMemorySessionStore()

	result, err := service.EnforceLogin(samlPostRequest(encodeResponse(successResponseXML)), sess)
	if err != nil {
		t.Fatalf("EnforceLogin: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", result.Outcome)
	}
	if result.Message != genericStatusMessage {
		t.Errorf("message = %q, want the generic message", result.Message)
	}
}

func TestEnforceLogin_UnusableAssertionRestarts(t *testing.T) {
	engine := &fakeEngine{
		assertion: &Assertion{NameID: "FLT123", Attributes: AttributeBag{}},
		loginURL:  "https://mts.realme.govt.nz/sso?SAMLRequest=x",
	}
	metrics := &fakeMetrics{}
	service := NewAuthenticationService(testConfig(ModeLogin), engine, WithMetrics(metrics))
	sess := NewMemorySessionStore()

	result, err := service.EnforceLogin(samlPostRequest("cmF3"), sess)
	if err != nil {
		t.Fatalf("EnforceLogin: %v", err)
	}
	if result.Outcome != OutcomeRedirectToIdP {
		t.Errorf("outcome = %v, want redirect to IdP", result.Outcome)
	}
	if service.SessionUser(sess) != nil {
		t.Error("unusable assertion left a user record in session")
	}
	if metrics.authFailure != 1 {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestAuthData_MissingFields(t *testing.T) {
	service := NewAuthenticationService(testConfig(ModeLogin), &fakeEngine{})

	tests := []struct {
		name      string
		assertion *Assertion
		wantCode  ErrorCode
	}{
		{"nil assertion", nil, ErrCodeNotAuthenticated},
		{"missing name id", &Assertion{SessionIndex: "idx", Attributes: AttributeBag{}}, ErrCodeMissingNameID},
		{"missing session index", &Assertion{NameID: "FLT123", Attributes: AttributeBag{}}, ErrCodeMissingSessionIndex},
		{"missing attributes", &Assertion{NameID: "FLT123", SessionIndex: "idx"}, ErrCodeMissingAttributes},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.AuthData(tc.assertion)
			if !HasErrorCode(err, tc.wantCode) {
				t.Errorf("expected code %s, got %v", tc.wantCode, err)
			}
		})
	}
}

func TestAuthData_UndecodableIdentity(t *testing.T) {
	metrics := &fakeMetrics{}
	service := NewAuthenticationService(testConfig(ModeAssert), &fakeEngine{}, WithMetrics(metrics))

	assertion := &Assertion{
		NameID:       "TransientID",
		SessionIndex: "idx",
		Attributes: AttributeBag{
			FITAttribute:      {"FIT123"},
			IdentitySourceXML: {"abc!def"},
		},
	}

	_, err := service.AuthData(assertion)
	if !HasErrorCode(err, ErrCodeFailedParsingIdentity) {
		t.Errorf("expected code %s, got %v", ErrCodeFailedParsingIdentity, err)
	}
	if metrics.decodeFailure != 1 {
		t.Errorf("decode metrics = %+v", metrics)
	}
}

func TestBackURL_OneTimeRead(t *testing.T) {
	service := NewAuthenticationService(testConfig(ModeLogin), &fakeEngine{})
	sess := NewMemorySessionStore()

	service.SetBackURL(sess, "/members/home")

	if got := service.BackURL(sess); got != "https://www.example.govt.nz/members/home" {
		t.Errorf("first read = %q", got)
	}
	// The stored value is consumed; a second read falls back to the base.
	if got := service.BackURL(sess); got != "https://www.example.govt.nz" {
		t.Errorf("second read = %q, want the site base URL", got)
	}
}

func TestBackURL_SameSiteValidation(t *testing.T) {
	const base = "https://www.example.govt.nz"

	tests := []struct {
		name     string
		target   string
		want     string
		rejected bool
	}{
		{"empty falls back", "", base, false},
		{"relative path resolves", "/profile", base + "/profile", false},
		{"same-site absolute kept", base + "/account?tab=1", base + "/account?tab=1", false},
		{"foreign host rejected", "https://evil.example/phish", base, true},
		{"protocol-relative rejected", "//evil.example/phish", base, true},
		{"scheme downgrade rejected", "http://www.example.govt.nz/x", base, true},
		{"unparsable rejected", "https://example.com/%zz", base, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			metrics := &fakeMetrics{}
			service := NewAuthenticationService(testConfig(ModeLogin), &fakeEngine{},
				WithMetrics(metrics))
			sess := NewMemorySessionStore()

			service.SetErrorBackURL(sess, tc.target)
			if got := service.ErrorBackURL(sess); got != tc.want {
				t.Errorf("ErrorBackURL = %q, want %q", got, tc.want)
			}

			wantRejected := 0
			if tc.rejected {
				wantRejected = 1
			}
			if metrics.rejectedRedirects != wantRejected {
				t.Errorf("rejected redirects = %d, want %d", metrics.rejectedRedirects, wantRejected)
			}
		})
	}
}

func TestClearLogin(t *testing.T) {
	service := NewAuthenticationService(testConfig(ModeLogin), &fakeEngine{})
	sess := NewMemorySessionStore()

	sess.Set(SessionDataKey, "data")
	sess.Set(OriginalResponseKey, "raw")
	sess.Set(LastErrorKey, "message")
	sess.Set(BackURLKey, "/a")
	sess.Set(ErrorBackURLKey, "/b")

	service.ClearLogin(sess)

	for _, key := range []string{SessionDataKey, OriginalResponseKey, LastErrorKey, BackURLKey, ErrorBackURLKey} {
		if _, ok := sess.Get(key); ok {
			t.Errorf("key %s survived ClearLogin", key)
		}
	}
	if service.IsAuthenticated(sess) {
		t.Error("IsAuthenticated should report false after ClearLogin")
	}

	// Idempotent on an empty session.
	service.ClearLogin(sess)
}

func TestIsAuthenticated_ModeAware(t *testing.T) {
	sess := NewMemorySessionStore()
	encoded, err := JSONUserCodec{}.Encode(&UserRecord{SPNameID: "FLT123", SessionIndex: "idx"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	sess.Set(SessionDataKey, encoded)

	loginService := NewAuthenticationService(testConfig(ModeLogin), &fakeEngine{})
	if !loginService.IsAuthenticated(sess) {
		t.Error("login-mode record should authenticate a login-mode service")
	}

	// The same record lacks the FIT and attributes an assert-mode
	// integration requires.
	assertService := NewAuthenticationService(testConfig(ModeAssert), &fakeEngine{})
	if assertService.IsAuthenticated(sess) {
		t.Error("login-mode record must not authenticate an assert-mode service")
	}
}
