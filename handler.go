package realme

import (
	"net/http"

	"go.uber.org/zap"
)

// SessionProvider resolves the session store for an inbound request.
// Framework integrations supply their own implementation backed by whatever
// session machinery the host application uses.
type SessionProvider interface {
	Session(r *http.Request) SessionStore
}

// SessionProviderFunc adapts a function to the SessionProvider interface.
type SessionProviderFunc func(r *http.Request) SessionStore

// Session resolves the session store for r.
func (f SessionProviderFunc) Session(r *http.Request) SessionStore {
	return f(r)
}

// LoginHandler is a minimal net/http adapter around the authentication
// service. It serves both the login entry point and the assertion consumer
// service endpoint: the request either carries a SAMLResponse or it does
// not, and EnforceLogin decides which flow applies. The handler's only job
// is to perform the redirects the service decided on.
type LoginHandler struct {
	service  *AuthenticationService
	sessions SessionProvider
	logger   *zap.Logger
}

// NewLoginHandler creates a handler. logger may be nil.
func NewLoginHandler(service *AuthenticationService, sessions SessionProvider, logger *zap.Logger) *LoginHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoginHandler{service: service, sessions: sessions, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Session(r)

	result, err := h.service.EnforceLogin(r, sess)
	if err != nil {
		h.logger.Error("login enforcement failed", zap.Error(err))
		http.Error(w, "authentication unavailable", http.StatusInternalServerError)
		return
	}

	switch result.Outcome {
	case OutcomeAuthenticated:
		http.Redirect(w, r, h.service.BackURL(sess), http.StatusFound)

	case OutcomeRedirectToIdP:
		http.Redirect(w, r, result.RedirectURL, http.StatusFound)

	case OutcomeFailed:
		http.Redirect(w, r, h.service.ErrorBackURL(sess), http.StatusFound)
	}
}
