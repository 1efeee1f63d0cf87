// Package realme integrates a site's login flow with the New Zealand RealMe
// identity provider over SAML 2.0.
//
// The AuthenticationService drives one protocol round-trip to completion:
// it delegates cryptographic and protocol validation to the SAML engine,
// extracts and decodes the identity attributes (including the nested
// base64url encoded identity document carried in assert-mode assertions),
// maps SAML status codes to user-facing messages, and binds the resulting
// UserRecord to a bounded, replay-resistant session.
package realme

import (
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// Outcome is the result category of one EnforceLogin call.
type Outcome int

const (
	// OutcomeAuthenticated means a valid UserRecord exists; the caller may
	// proceed and should redirect to BackURL.
	OutcomeAuthenticated Outcome = iota

	// OutcomeRedirectToIdP means no authentication data is present yet; the
	// caller must redirect the browser to RedirectURL, which carries an
	// AuthnRequest for the identity provider.
	OutcomeRedirectToIdP

	// OutcomeFailed means the identity provider reported an error; Message
	// holds the user-facing explanation and the caller should redirect to
	// ErrorBackURL.
	OutcomeFailed
)

// LoginResult is the outcome of one EnforceLogin call. The decision to
// actually issue an HTTP redirect belongs to the framework layer; this
// module never terminates a request itself.
type LoginResult struct {
	Outcome     Outcome
	User        *UserRecord
	RedirectURL string
	Message     string
}

// ServiceOption configures an AuthenticationService.
type ServiceOption func(*AuthenticationService)

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *AuthenticationService) { s.logger = logger }
}

// WithMetrics sets the metrics recorder. The default records nothing.
func WithMetrics(metrics MetricsRecorder) ServiceOption {
	return func(s *AuthenticationService) { s.metrics = metrics }
}

// WithUserCodec sets the codec used to serialize the UserRecord into the
// session store. The default stores plain JSON, which is appropriate for
// trusted server-side session storage.
func WithUserCodec(codec UserCodec) ServiceOption {
	return func(s *AuthenticationService) { s.codec = codec }
}

// WithLoginSuccessHook registers a callback invoked once per successful
// authentication, before EnforceLogin returns. Typically used to sync the
// authenticated subject with a local member database.
func WithLoginSuccessHook(hook func(*UserRecord)) ServiceOption {
	return func(s *AuthenticationService) { s.onLoginSuccess = hook }
}

// AuthenticationService orchestrates the SAML engine and exposes session
// state to callers. It keeps no per-user state of its own: the caller
// supplies the session store on every call.
type AuthenticationService struct {
	cfg            *Config
	engine         Engine
	translator     *ErrorTranslator
	codec          UserCodec
	logger         *zap.Logger
	metrics        MetricsRecorder
	onLoginSuccess func(*UserRecord)
}

// NewAuthenticationService creates a service for the given configuration
// and engine.
func NewAuthenticationService(cfg *Config, engine Engine, opts ...ServiceOption) *AuthenticationService {
	s := &AuthenticationService{
		cfg:        cfg,
		engine:     engine,
		translator: NewErrorTranslator(cfg.ErrorMessageOverrides),
		codec:      JSONUserCodec{},
		logger:     zap.NewNop(),
		metrics:    NewNoopMetricsRecorder(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnforceLogin drives one protocol round-trip for the inbound request.
//
// If an authenticated session already exists it is returned immediately and
// the engine is not consulted. Otherwise the request is handed to the
// engine: a missing SAMLResponse yields OutcomeRedirectToIdP, a provider
// error yields OutcomeFailed with a translated message, and a valid
// assertion yields OutcomeAuthenticated with the persisted UserRecord.
//
// Malformed or tampered assertion contents (missing NameID, undecodable
// identity document) are fatal for the attempt: they are logged at error
// severity and the visitor is sent back to the identity provider to
// restart, never shown raw provider detail.
func (s *AuthenticationService) EnforceLogin(r *http.Request, sess SessionStore) (*LoginResult, error) {
	if user := s.SessionUser(sess); user != nil && user.IsValid(s.cfg.Mode) {
		return &LoginResult{Outcome: OutcomeAuthenticated, User: user}, nil
	}

	assertion, err := s.engine.ParseResponse(r)
	if errors.Is(err, ErrNoResponse) {
		return s.redirectToIdP()
	}
	if err != nil {
		return s.failWithSAMLError(r, sess, err)
	}

	user, err := s.AuthData(assertion)
	if err != nil {
		// Assertion passed protocol validation but its contents could not
		// be used. Restart the login rather than surfacing detail.
		s.logger.Error("failed to build user record from assertion", zap.Error(err))
		s.metrics.RecordAuthAttempt(s.cfg.Mode, false)
		return s.redirectToIdP()
	}

	encoded, err := s.codec.Encode(user)
	if err != nil {
		return nil, err
	}
	sess.Set(SessionDataKey, encoded)
	sess.Set(OriginalResponseKey, assertion.RawResponse)
	sess.Clear(LastErrorKey)

	if s.onLoginSuccess != nil {
		s.onLoginSuccess(user)
	}

	s.metrics.RecordAuthAttempt(s.cfg.Mode, true)
	s.logger.Info("RealMe authentication succeeded",
		zap.String("session_index", user.SessionIndex),
		zap.String("mode", string(s.cfg.Mode)))

	return &LoginResult{Outcome: OutcomeAuthenticated, User: user}, nil
}

func (s *AuthenticationService) redirectToIdP() (*LoginResult, error) {
	loginURL, err := s.engine.LoginURL(s.cfg.SiteBaseURL)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Outcome: OutcomeRedirectToIdP, RedirectURL: loginURL}, nil
}

// failWithSAMLError translates a protocol-level failure into a user-facing
// message. The engine's top-level error is generic; the code that actually
// identifies the failure is the nested StatusCode of the POSTed response
// document, when one is present.
func (s *AuthenticationService) failWithSAMLError(r *http.Request, sess SessionStore, cause error) (*LoginResult, error) {
	statusCode := ""
	if r.Method == http.MethodPost {
		if raw := r.PostFormValue("SAMLResponse"); raw != "" {
			statusCode, _ = InnerStatusCode(raw)
		}
	}

	message := s.translator.Translate(statusCode)
	sess.Set(LastErrorKey, message)

	s.metrics.RecordAuthAttempt(s.cfg.Mode, false)
	s.logger.Info("SAML response reported an error",
		zap.String("status_code", statusCode),
		zap.Error(cause))

	return &LoginResult{Outcome: OutcomeFailed, Message: message}, nil
}

// AuthData builds a UserRecord from a validated assertion, failing fast on
// the first missing field. It does not persist the record; that is
// EnforceLogin's responsibility.
func (s *AuthenticationService) AuthData(assertion *Assertion) (*UserRecord, error) {
	if assertion == nil {
		return nil, newAuthError(ErrCodeNotAuthenticated,
			"SAML engine did not authenticate but returned no specific error")
	}

	if assertion.NameID == "" {
		return nil, newAuthError(ErrCodeMissingNameID, "invalid/missing NameID in SAML response")
	}

	if assertion.SessionIndex == "" {
		return nil, newAuthError(ErrCodeMissingSessionIndex,
			"invalid/missing SessionIndex value in SAML response")
	}

	if assertion.Attributes == nil {
		return nil, newAuthError(ErrCodeMissingAttributes,
			"invalid/missing attributes in SAML response")
	}

	// Depending on integration mode the federated tag is the FIT attribute
	// (assert) or the NameID itself (login; the FLT is a synonym of NameID).
	var tag string
	if s.cfg.Mode == ModeAssert {
		tag, _ = assertion.Attributes.First(FITAttribute)
	} else {
		tag = assertion.NameID
	}

	identity, err := ExtractIdentity(assertion.Attributes, assertion.NameID)
	if err != nil {
		s.metrics.RecordIdentityDecode(false)
		return nil, err
	}
	if identity != nil {
		s.metrics.RecordIdentityDecode(true)
	}

	return &UserRecord{
		SPNameID:          assertion.NameID,
		UserFederatedTag:  tag,
		SessionIndex:      assertion.SessionIndex,
		Attributes:        assertion.Attributes,
		FederatedIdentity: identity,
	}, nil
}

// SessionUser returns the UserRecord stored in the session, or nil if none
// is stored or it cannot be decoded. No validity check is applied; callers
// that need one use UserRecord.IsValid.
func (s *AuthenticationService) SessionUser(sess SessionStore) *UserRecord {
	value, ok := sess.Get(SessionDataKey)
	if !ok || value == "" {
		return nil
	}

	user, err := s.codec.Decode(value)
	if err != nil {
		return nil
	}
	return user
}

// IsAuthenticated reports whether the session holds a valid authenticated
// user.
func (s *AuthenticationService) IsAuthenticated(sess SessionStore) bool {
	user := s.SessionUser(sess)
	return user != nil && user.IsAuthenticated(s.cfg.Mode)
}

// ClearLogin removes all session state this service owns. It is idempotent
// and safe to call on an empty session; used during logout.
func (s *AuthenticationService) ClearLogin(sess SessionStore) {
	sess.Clear(SessionDataKey)
	sess.Clear(OriginalResponseKey)
	sess.Clear(LastErrorKey)
	sess.Clear(BackURLKey)
	sess.Clear(ErrorBackURLKey)
}

// LastError returns the last stored user-facing error message, or "".
func (s *AuthenticationService) LastError(sess SessionStore) string {
	message, _ := sess.Get(LastErrorKey)
	return message
}

// SetBackURL stores the redirect target to use after a successful login.
func (s *AuthenticationService) SetBackURL(sess SessionStore, target string) {
	sess.Set(BackURLKey, target)
}

// SetErrorBackURL stores the redirect target to use after a failed login.
func (s *AuthenticationService) SetErrorBackURL(sess SessionStore, target string) {
	sess.Set(ErrorBackURLKey, target)
}

// BackURL consumes the stored post-login redirect target. The value is
// cleared on read so each stored URL is used exactly once, and validated as
// same-site; a missing or foreign target falls back to the site base URL.
func (s *AuthenticationService) BackURL(sess SessionStore) string {
	return s.consumeRedirect(sess, BackURLKey)
}

// ErrorBackURL consumes the stored post-failure redirect target, with the
// same one-time-read and same-site guarantees as BackURL.
func (s *AuthenticationService) ErrorBackURL(sess SessionStore) string {
	return s.consumeRedirect(sess, ErrorBackURLKey)
}

func (s *AuthenticationService) consumeRedirect(sess SessionStore, key string) string {
	target, ok := sess.Get(key)
	if ok {
		sess.Clear(key)
	}
	return s.validSiteURL(target)
}

// validSiteURL returns target as an absolute URL if it belongs to this
// site, and the site base URL otherwise. A redirect target is never trusted
// without validation: a stored foreign URL is a spoofing attempt, not a
// destination.
func (s *AuthenticationService) validSiteURL(target string) string {
	base, err := url.Parse(s.cfg.SiteBaseURL)
	if err != nil {
		return s.cfg.SiteBaseURL
	}

	if target == "" {
		return base.String()
	}

	u, err := url.Parse(target)
	if err != nil {
		s.metrics.RecordRejectedRedirect()
		return base.String()
	}

	// Relative paths resolve against the site base. A host-carrying but
	// scheme-less value ("//evil.example/x") is not relative in this sense.
	if !u.IsAbs() {
		if u.Host != "" {
			s.metrics.RecordRejectedRedirect()
			return base.String()
		}
		return base.ResolveReference(u).String()
	}

	if u.Scheme != base.Scheme || u.Host != base.Host {
		s.metrics.RecordRejectedRedirect()
		s.logger.Warn("rejected non-site redirect target", zap.String("target", target))
		return base.String()
	}

	return u.String()
}
