package realme

// AttributeBag is the raw SAML attribute map from an assertion: attribute
// name to value list. Lookups go through First, which centralises the
// "missing means absent, never crash" contract.
type AttributeBag map[string][]string

// First returns the first value for the given attribute, and whether the
// attribute is present with at least one value.
func (b AttributeBag) First(key string) (string, bool) {
	values, ok := b[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// FITAttribute is the SAML attribute carrying the FIT (Federated Identity
// Tag) in assert-mode assertions.
const FITAttribute = "urn:nzl:govt:ict:stds:authn:attribute:igovt:IVS:FIT"

// UserRecord holds the outcome of one successful RealMe authentication, as
// stored and retrieved from session. It is constructed once per protocol
// round-trip and immutable thereafter.
type UserRecord struct {
	// SPNameID is the stable pseudonymous identifier RealMe issued for
	// this service provider.
	SPNameID string `json:"spNameId"`

	// UserFederatedTag is the FLT (login mode, a synonym of SPNameID) or
	// the FIT (assert mode, a distinct opaque value).
	UserFederatedTag string `json:"userFederatedTag,omitempty"`

	// SessionIndex identifies this session with both the identity
	// provider and this service provider.
	SessionIndex string `json:"sessionIndex"`

	// Attributes is the raw SAML attribute bag from the assertion.
	Attributes AttributeBag `json:"attributes,omitempty"`

	// FederatedIdentity is present only for assert-mode integrations
	// whose assertion carried an identity document.
	FederatedIdentity *FederatedIdentity `json:"federatedIdentity,omitempty"`
}

// IsValid reports whether the data in this record is sufficient for the
// given integration mode. Login mode requires only the pseudonymous
// identifier and session index. Assert mode additionally requires the FIT
// and the attribute bag, and any embedded identity must itself validate.
func (u *UserRecord) IsValid(mode IntegrationMode) bool {
	validLogin := u.SPNameID != "" && u.SessionIndex != ""
	if mode != ModeAssert {
		return validLogin
	}

	if !validLogin || u.UserFederatedTag == "" || u.Attributes == nil {
		return false
	}

	if u.FederatedIdentity != nil {
		return u.FederatedIdentity.IsValid()
	}

	return true
}

// IsAuthenticated is an alias of IsValid: a valid UserRecord is
// semantically the same as an authenticated user.
func (u *UserRecord) IsAuthenticated(mode IntegrationMode) bool {
	return u.IsValid(mode)
}
