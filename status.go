package realme

import (
	"encoding/base64"

	"github.com/beevik/etree"
)

// SAML status code URNs returned by RealMe in Response documents. The first
// two are RealMe-specific; the rest are standard OASIS status codes used for
// business logic and switching error messages.
const (
	StatusTimeout       = "urn:nzl:govt:ict:stds:authn:deployment:GLS:SAML:2.0:status:Timeout"
	StatusInternalError = "urn:nzl:govt:ict:stds:authn:deployment:GLS:SAML:2.0:status:InternalError"

	StatusAuthnFailed        = "urn:oasis:names:tc:SAML:2.0:status:AuthnFailed"
	StatusUnknownPrincipal   = "urn:oasis:names:tc:SAML:2.0:status:UnknownPrincipal"
	StatusNoAvailableIDP     = "urn:oasis:names:tc:SAML:2.0:status:NoAvailableIDP"
	StatusNoPassive          = "urn:oasis:names:tc:SAML:2.0:status:NoPassive"
	StatusNoAuthnContext     = "urn:oasis:names:tc:SAML:2.0:status:NoAuthnContext"
	StatusRequestUnsupported = "urn:oasis:names:tc:SAML:2.0:status:RequestUnsupported"
	StatusRequestDenied      = "urn:oasis:names:tc:SAML:2.0:status:RequestDenied"
	StatusUnsupportedBinding = "urn:oasis:names:tc:SAML:2.0:status:UnsupportedBinding"
)

const helpDeskDetails = "If the problem persists, please contact the RealMe Help Desk. " +
	"From New Zealand: 0800 664 774 (toll free), from overseas dial +64 4 462 0674 " +
	"(overseas call charges apply)."

// defaultStatusMessages maps the known status code URNs to user-facing
// messages. None of them leak raw provider URNs or internals.
var defaultStatusMessages = map[string]string{
	StatusAuthnFailed: "You have chosen to leave RealMe.",
	StatusTimeout:     "Your RealMe session has timed out - please try again.",
	StatusInternalError: "RealMe was unable to process your request due to a RealMe internal error. " +
		"Please try again. " + helpDeskDetails,
	StatusNoAvailableIDP: "RealMe reported that the TXT service or the token service is not available. " +
		"You may try again later. " + helpDeskDetails,
	StatusRequestUnsupported: "RealMe reported a serious application error with the message " +
		"'Request Unsupported'. Please try again later. " + helpDeskDetails,
	StatusNoPassive: "RealMe reported a serious application error with the message " +
		"'No Passive'. Please try again later. " + helpDeskDetails,
	StatusRequestDenied: "RealMe reported a serious application error with the message " +
		"'Request Denied'. Please try again later. " + helpDeskDetails,
	StatusUnsupportedBinding: "RealMe reported a serious application error with the message " +
		"'Unsupported Binding'. Please try again later. " + helpDeskDetails,
	StatusUnknownPrincipal: "You are unable to use RealMe to verify your identity if you do not " +
		"have a RealMe account. Visit the RealMe home page for more information and to create " +
		"an account.",
	StatusNoAuthnContext: "RealMe reported a serious application error with the message " +
		"'No AuthN Context'. Please try again later. " + helpDeskDetails,
}

// genericStatusMessage is used for unknown status codes.
const genericStatusMessage = "RealMe reported a serious application error. Please try again later. " +
	helpDeskDetails

// ErrorTranslator maps SAML status code URNs to human-readable messages.
// Operator-supplied overrides take precedence over the built-in defaults.
type ErrorTranslator struct {
	overrides map[string]string
}

// NewErrorTranslator creates a translator. The overrides table may be nil,
// and is keyed by status code URN.
func NewErrorTranslator(overrides map[string]string) *ErrorTranslator {
	return &ErrorTranslator{overrides: overrides}
}

// Translate returns the message for the given status code URN. Unknown
// codes translate to a generic message.
func (t *ErrorTranslator) Translate(statusCode string) string {
	if t.overrides != nil {
		if msg, ok := t.overrides[statusCode]; ok && msg != "" {
			return msg
		}
	}

	if msg, ok := defaultStatusMessages[statusCode]; ok {
		return msg
	}

	return genericStatusMessage
}

// InnerStatusCode extracts the second-level StatusCode URN from a base64
// encoded samlp:Response document, as POSTed by RealMe. The top-level
// StatusCode of a failed response is always the generic Responder URN; the
// code that actually identifies the failure is nested inside it.
//
// Returns false if no nested status code is present or the document cannot
// be parsed.
func InnerStatusCode(encodedResponse string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(encodedResponse)
	if err != nil {
		return "", false
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return "", false
	}

	root := doc.Root()
	if root == nil || root.Tag != "Response" {
		return "", false
	}

	outer := childByTag(childByTag(root, "Status"), "StatusCode")
	inner := childByTag(outer, "StatusCode")
	if inner == nil {
		return "", false
	}

	value := attrByKey(inner, "Value")
	return value, value != ""
}
