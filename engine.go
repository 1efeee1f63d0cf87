package realme

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"strings"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
	"go.uber.org/zap"
)

// Assertion is the validated outcome of one SAML protocol round-trip. By the
// time an Assertion exists, signature, encryption and condition checks have
// all passed.
type Assertion struct {
	NameID       string
	SessionIndex string
	Attributes   AttributeBag

	// RawResponse is the base64 encoded SAMLResponse as POSTed, retained
	// for audit.
	RawResponse string
}

// Engine is the trusted SAML protocol engine consumed by the authentication
// service. It performs all cryptographic and protocol validation; the
// service layer never inspects signatures itself.
type Engine interface {
	// ParseResponse validates the SAMLResponse carried by r and returns the
	// assertion details. Returns ErrNoResponse when r carries no
	// SAMLResponse at all, which callers must treat as "redirect to login",
	// not as a failure.
	ParseResponse(r *http.Request) (*Assertion, error)

	// LoginURL returns the identity provider redirect URL carrying a signed
	// AuthnRequest. relayState is returned by the IdP unchanged.
	LoginURL(relayState string) (string, error)
}

// SAMLEngine implements Engine on top of gosaml2.
type SAMLEngine struct {
	sp     *saml2.SAMLServiceProvider
	logger *zap.Logger
}

// NewSAMLEngine builds an engine from the validated configuration. It reads
// and parses the certificate material up front so a misconfigured deployment
// fails at startup, not at first login.
func NewSAMLEngine(cfg *Config, logger *zap.Logger) (*SAMLEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	idpCert, err := loadCertificate(cfg.IdPCertPath())
	if err != nil {
		return nil, fmt.Errorf("load IdP certificate: %w", err)
	}

	keyStore, err := loadSigningKeyPair(cfg.SigningCertPath())
	if err != nil {
		return nil, fmt.Errorf("load SP signing certificate: %w", err)
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      cfg.SSOServiceURL(),
		IdentityProviderIssuer:      cfg.IdPEntityID(),
		ServiceProviderIssuer:       cfg.SPEntityID(),
		AssertionConsumerServiceURL: cfg.AssertionConsumerServiceURL(),
		AudienceURI:                 cfg.SPEntityID(),
		SignAuthnRequests:           true,
		NameIdFormat:                cfg.NameIDFormat(),
		RequestedAuthnContext: &saml2.RequestedAuthnContext{
			Comparison: "exact",
			Contexts:   []string{cfg.AuthnContext()},
		},
		IDPCertificateStore: &dsig.MemoryX509CertificateStore{
			Roots: []*x509.Certificate{idpCert},
		},
		SPKeyStore:             keyStore,
		AllowMissingAttributes: true,
	}

	return &SAMLEngine{sp: sp, logger: logger}, nil
}

// ParseResponse validates an inbound SAML response.
func (e *SAMLEngine) ParseResponse(r *http.Request) (*Assertion, error) {
	if r.Method != http.MethodPost {
		return nil, ErrNoResponse
	}

	raw := r.PostFormValue("SAMLResponse")
	if raw == "" {
		return nil, ErrNoResponse
	}

	info, err := e.sp.RetrieveAssertionInfo(raw)
	if err != nil {
		return nil, wrapAuthError(ErrCodeAuthFailed, "SAML response validation failed", err)
	}

	if info.WarningInfo.InvalidTime {
		return nil, newAuthError(ErrCodeAuthFailed, "SAML assertion is outside its validity window")
	}
	if info.WarningInfo.NotInAudience {
		return nil, newAuthError(ErrCodeAuthFailed, "SAML assertion is not for this audience")
	}

	attrs := make(AttributeBag, len(info.Values))
	for name, attr := range info.Values {
		for _, value := range attr.Values {
			attrs[name] = append(attrs[name], value.Value)
		}
	}

	e.logger.Debug("SAML response validated",
		zap.String("session_index", info.SessionIndex),
		zap.Int("attributes", len(attrs)))

	return &Assertion{
		NameID:       info.NameID,
		SessionIndex: info.SessionIndex,
		Attributes:   attrs,
		RawResponse:  raw,
	}, nil
}

// LoginURL returns the IdP redirect URL carrying a signed AuthnRequest.
func (e *SAMLEngine) LoginURL(relayState string) (string, error) {
	return e.sp.BuildAuthURL(relayState)
}

// loadCertificate reads an X509 certificate from path. RealMe integration
// bundles ship certificates both as PEM and as bare base64 DER without
// header lines; both forms are accepted.
func loadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if block, _ := pem.Decode(data); block != nil {
		return x509.ParseCertificate(block.Bytes)
	}

	// Bare base64 DER: strip whitespace and decode.
	compact := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, string(data))

	der, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("certificate is neither PEM nor base64 DER: %w", err)
	}

	return x509.ParseCertificate(der)
}

// loadSigningKeyPair reads the SP signing certificate and private key from a
// single PEM file and wraps them as an xmldsig key store.
func loadSigningKeyPair(path string) (dsig.X509KeyStore, error) {
	if path == "" {
		return nil, fmt.Errorf("no signing certificate configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// The file carries both CERTIFICATE and PRIVATE KEY blocks.
	pair, err := tls.X509KeyPair(data, data)
	if err != nil {
		return nil, fmt.Errorf("parse signing key pair: %w", err)
	}

	keyStore := dsig.TLSCertKeyStore(pair)
	return keyStore, nil
}
