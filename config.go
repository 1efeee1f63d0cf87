package realme

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment identifies which RealMe environment to authenticate against.
// Developer environments generally use mts, UAT/staging sites use ite, and
// production sites use prod.
type Environment string

const (
	EnvMTS  Environment = "mts"
	EnvITE  Environment = "ite"
	EnvProd Environment = "prod"
)

// Valid reports whether e is a supported RealMe environment.
func (e Environment) Valid() bool {
	switch e {
	case EnvMTS, EnvITE, EnvProd:
		return true
	}
	return false
}

// IntegrationMode selects which RealMe service the module integrates with.
// After successful authentication:
//   - ModeLogin provides a unique FLT (Federated Logon Tag) back
//   - ModeAssert provides a unique FIT (Federated Identity Tag) and a
//     FederatedIdentity record back
type IntegrationMode string

const (
	ModeLogin  IntegrationMode = "login"
	ModeAssert IntegrationMode = "assert"
)

// Valid reports whether m is a supported integration mode.
func (m IntegrationMode) Valid() bool {
	return m == ModeLogin || m == ModeAssert
}

// The valid AuthN context values for the supported RealMe environments.
// An AuthN context describes the strength of authentication requested from
// the identity provider.
const (
	AuthnLowStrength = "urn:nzl:govt:ict:stds:authn:deployment:GLS:SAML:2.0:ac:classes:LowStrength"
	AuthnModStrength = "urn:nzl:govt:ict:stds:authn:deployment:GLS:SAML:2.0:ac:classes:ModStrength"
	AuthnModMobileSMS = "urn:nzl:govt:ict:stds:authn:deployment:GLS:SAML:2.0:ac:classes:ModStrength" +
		"::OTP:Mobile:SMS"
	AuthnModTokenSID = "urn:nzl:govt:ict:stds:authn:deployment:GLS:SAML:2.0:ac:classes:ModStrength" +
		"::OTP:Token:SID"
)

// SAML NameID format URNs. RealMe requires transient NameIDs for assert-mode
// integrations; login mode uses persistent NameIDs.
const (
	nameIDFormatPersistent = "urn:oasis:names:tc:SAML:2.0:nameid-format:persistent"
	nameIDFormatTransient  = "urn:oasis:names:tc:SAML:2.0:nameid-format:transient"
)

// allowedAuthnContexts is the closed list of AuthN contexts RealMe accepts.
var allowedAuthnContexts = []string{
	AuthnLowStrength,
	AuthnModStrength,
	AuthnModMobileSMS,
	AuthnModTokenSID,
}

// defaultIdPEntityIDs holds the identity provider entity IDs for each
// environment and integration mode. These can be overridden in Config if an
// intermediary IdP is used instead of connecting to RealMe directly.
var defaultIdPEntityIDs = map[Environment]map[IntegrationMode]string{
	EnvMTS: {
		ModeLogin:  "https://mts.realme.govt.nz/saml2",
		ModeAssert: "https://mts.realme.govt.nz/realmemts/realmeidp",
	},
	EnvITE: {
		ModeLogin:  "https://www.ite.logon.realme.govt.nz/saml2",
		ModeAssert: "https://www.ite.account.realme.govt.nz/saml2/assertion",
	},
	EnvProd: {
		ModeLogin:  "https://www.logon.realme.govt.nz/saml2",
		ModeAssert: "https://www.account.realme.govt.nz/saml2/assertion",
	},
}

// defaultSSOServiceURLs holds the single sign-on endpoints the AuthnRequest
// redirect is sent to, per environment and integration mode.
var defaultSSOServiceURLs = map[Environment]map[IntegrationMode]string{
	EnvMTS: {
		ModeLogin:  "https://mts.realme.govt.nz/logon-mts/mtsEntryPoint",
		ModeAssert: "https://mts.realme.govt.nz/realme-mts/validate/realme-mts-idp.xhtml",
	},
	EnvITE: {
		ModeLogin:  "https://www.ite.logon.realme.govt.nz/sso/logon/metaAlias/logon/logonidp",
		ModeAssert: "https://www.ite.assert.realme.govt.nz/sso/SSORedirect/metaAlias/assertion/realmeidp",
	},
	EnvProd: {
		ModeLogin:  "https://www.logon.realme.govt.nz/sso/logon/metaAlias/logon/logonidp",
		ModeAssert: "https://www.assert.realme.govt.nz/sso/SSORedirect/metaAlias/assertion/realmeidp",
	},
}

// defaultIdPCertFilenames holds the certificate filenames shipped in the
// RealMe integration bundles, per environment and integration mode. The
// files must exist within CertDir.
var defaultIdPCertFilenames = map[Environment]map[IntegrationMode]string{
	EnvMTS: {
		ModeLogin:  "mts_login_saml_idp.cer",
		ModeAssert: "mts_assert_saml_idp.cer",
	},
	EnvITE: {
		ModeLogin:  "ite.signing.logon.realme.govt.nz.cer",
		ModeAssert: "ite.signing.account.realme.govt.nz.cer",
	},
	EnvProd: {
		ModeLogin:  "signing.logon.realme.govt.nz.cer",
		ModeAssert: "signing.account.realme.govt.nz.cer",
	},
}

// Config holds all deployment-specific settings. Construct it directly or
// load it from YAML with LoadConfig, then call Validate before use:
// authentication must never silently proceed on a misconfigured deployment.
type Config struct {
	// Environment is the RealMe environment to authenticate against.
	Environment Environment `yaml:"environment"`

	// Mode is the integration type, either login or assert.
	Mode IntegrationMode `yaml:"integration_type"`

	// SPEntityIDs maps each environment to this service provider's entity
	// ID. An entity ID takes the form of a URL including privacy realm and
	// application name, e.g.
	// https://www.agency.govt.nz/privacy-realm-name/application-name
	SPEntityIDs map[Environment]string `yaml:"sp_entity_ids"`

	// AuthnContexts maps each environment to the requested AuthN context.
	AuthnContexts map[Environment]string `yaml:"authn_contexts"`

	// AssertionServiceDomains maps each environment to the fully qualified
	// domain the assertion consumer service is reachable on, e.g.
	// https://www.agency.govt.nz
	AssertionServiceDomains map[Environment]string `yaml:"metadata_assertion_service_domains"`

	// LoginPath is the path under the assertion service domain where the
	// login handler is mounted. The ACS endpoint lives at
	// LoginPath + "/RealMe/acs".
	LoginPath string `yaml:"login_path"`

	// SiteBaseURL is the absolute base URL of this site, used to validate
	// redirect targets and as the fallback redirect destination.
	SiteBaseURL string `yaml:"site_base_url"`

	// CertDir is the directory holding the RealMe certificate files. When
	// empty, the REALME_CERT_DIR environment variable is used.
	CertDir string `yaml:"cert_dir"`

	// SigningCertFilename is the SP signing certificate (PEM, certificate
	// plus private key) within CertDir. When empty, the
	// REALME_SIGNING_CERT_FILENAME environment variable is used.
	SigningCertFilename string `yaml:"signing_cert_filename"`

	// IdPEntityIDs optionally overrides the built-in identity provider
	// entity IDs, keyed by environment then integration mode.
	IdPEntityIDs map[Environment]map[IntegrationMode]string `yaml:"idp_entity_ids"`

	// SSOServiceURLs optionally overrides the built-in single sign-on
	// endpoint URLs, keyed by environment then integration mode.
	SSOServiceURLs map[Environment]map[IntegrationMode]string `yaml:"idp_sso_service_urls"`

	// IdPCertFilenames optionally overrides the built-in IdP certificate
	// filenames, keyed by environment then integration mode.
	IdPCertFilenames map[Environment]map[IntegrationMode]string `yaml:"idp_x509_cert_filenames"`

	// ErrorMessageOverrides maps SAML status code URNs to operator-supplied
	// messages, replacing the built-in defaults.
	ErrorMessageOverrides map[string]string `yaml:"error_message_overrides"`

	// Organisation details included in generated SP metadata.
	OrganisationName        string `yaml:"metadata_organisation_name"`
	OrganisationDisplayName string `yaml:"metadata_organisation_display_name"`
	OrganisationURL         string `yaml:"metadata_organisation_url"`

	// Support contact details included in generated SP metadata.
	ContactSupportCompany    string `yaml:"metadata_contact_support_company"`
	ContactSupportFirstNames string `yaml:"metadata_contact_support_firstnames"`
	ContactSupportSurname    string `yaml:"metadata_contact_support_surname"`
}

// LoadConfig reads and parses a YAML configuration file. The returned
// Config is not yet validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for the selected environment and mode.
// It fails on the first problem found so a misconfigured deployment cannot
// limp along with degraded authentication security.
func (c *Config) Validate() error {
	if !c.Environment.Valid() {
		return newAuthError(ErrCodeConfigInvalid,
			fmt.Sprintf("environment %q is not one of mts, ite, prod", c.Environment))
	}

	if !c.Mode.Valid() {
		return newAuthError(ErrCodeConfigInvalid,
			fmt.Sprintf("integration_type %q is not one of login, assert", c.Mode))
	}

	entityID := c.SPEntityIDs[c.Environment]
	if entityID == "" {
		return newAuthError(ErrCodeConfigInvalid,
			fmt.Sprintf("sp_entity_ids[%s] is not set", c.Environment))
	}
	if u, err := url.Parse(entityID); err != nil || !u.IsAbs() || u.Host == "" {
		return newAuthError(ErrCodeConfigInvalid,
			fmt.Sprintf("sp_entity_ids[%s] %q is not an absolute URL", c.Environment, entityID))
	}

	authnContext := c.AuthnContexts[c.Environment]
	if authnContext == "" {
		return newAuthError(ErrCodeConfigInvalid,
			fmt.Sprintf("authn_contexts[%s] is not set", c.Environment))
	}
	if !contains(allowedAuthnContexts, authnContext) {
		return newAuthError(ErrCodeConfigInvalid,
			fmt.Sprintf("authn_contexts[%s] %q is not a recognised RealMe AuthN context", c.Environment, authnContext))
	}

	if c.SiteBaseURL == "" {
		return newAuthError(ErrCodeConfigInvalid, "site_base_url is not set")
	}
	if u, err := url.Parse(c.SiteBaseURL); err != nil || !u.IsAbs() || u.Host == "" {
		return newAuthError(ErrCodeConfigInvalid,
			fmt.Sprintf("site_base_url %q is not an absolute URL", c.SiteBaseURL))
	}

	domain := c.AssertionServiceDomains[c.Environment]
	if domain != "" {
		if u, err := url.Parse(domain); err != nil || !u.IsAbs() || u.Host == "" {
			return newAuthError(ErrCodeConfigInvalid,
				fmt.Sprintf("metadata_assertion_service_domains[%s] %q is not an absolute URL", c.Environment, domain))
		}
	}

	return nil
}

// SPEntityID returns the service provider entity ID for the configured
// environment.
func (c *Config) SPEntityID() string {
	return c.SPEntityIDs[c.Environment]
}

// AuthnContext returns the requested AuthN context for the configured
// environment.
func (c *Config) AuthnContext() string {
	return c.AuthnContexts[c.Environment]
}

// IdPEntityID returns the identity provider entity ID for the configured
// environment and integration mode.
func (c *Config) IdPEntityID() string {
	if v := lookupByEnvAndMode(c.IdPEntityIDs, c.Environment, c.Mode); v != "" {
		return v
	}
	return defaultIdPEntityIDs[c.Environment][c.Mode]
}

// SSOServiceURL returns the single sign-on endpoint for the configured
// environment and integration mode.
func (c *Config) SSOServiceURL() string {
	if v := lookupByEnvAndMode(c.SSOServiceURLs, c.Environment, c.Mode); v != "" {
		return v
	}
	return defaultSSOServiceURLs[c.Environment][c.Mode]
}

// IdPCertPath returns the filesystem path of the identity provider signing
// certificate for the configured environment and integration mode.
func (c *Config) IdPCertPath() string {
	name := lookupByEnvAndMode(c.IdPCertFilenames, c.Environment, c.Mode)
	if name == "" {
		name = defaultIdPCertFilenames[c.Environment][c.Mode]
	}
	return filepath.Join(c.certDir(), name)
}

// SigningCertPath returns the filesystem path of the SP signing certificate
// and key file, or an empty string if none is configured.
func (c *Config) SigningCertPath() string {
	name := c.SigningCertFilename
	if name == "" {
		name = os.Getenv("REALME_SIGNING_CERT_FILENAME")
	}
	if name == "" {
		return ""
	}
	return filepath.Join(c.certDir(), name)
}

func (c *Config) certDir() string {
	if c.CertDir != "" {
		return c.CertDir
	}
	return os.Getenv("REALME_CERT_DIR")
}

// AssertionConsumerServiceURL returns the absolute URL of the ACS endpoint,
// e.g. https://www.agency.govt.nz/Security/login/RealMe/acs. The assertion
// service domain falls back to SiteBaseURL when not configured.
func (c *Config) AssertionConsumerServiceURL() string {
	domain := c.AssertionServiceDomains[c.Environment]
	if domain == "" {
		domain = c.SiteBaseURL
	}
	return joinURL(domain, c.loginPath(), "RealMe", "acs")
}

// NameIDFormat returns the SAML NameID format URN required for the
// configured integration mode. RealMe mandates transient NameIDs for assert
// and uses persistent NameIDs for login.
func (c *Config) NameIDFormat() string {
	if c.Mode == ModeAssert {
		return nameIDFormatTransient
	}
	return nameIDFormatPersistent
}

func (c *Config) loginPath() string {
	if c.LoginPath != "" {
		return c.LoginPath
	}
	return "/Security/login"
}

func lookupByEnvAndMode(m map[Environment]map[IntegrationMode]string, env Environment, mode IntegrationMode) string {
	if m == nil {
		return ""
	}
	return m[env][mode]
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// joinURL joins a base URL with path segments, normalising slashes.
func joinURL(base string, segments ...string) string {
	out := strings.TrimRight(base, "/")
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			out += "/" + s
		}
	}
	return out
}
