package realme

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// SAML attribute names carrying the federated identity document. The two
// sources are mutually exclusive: an assertion carries the identity either as
// a CIQ party XML document or as a JSON object, never both.
const (
	IdentitySourceXML  = "urn:nzl:govt:ict:stds:authn:safeb64:attribute:igovt:IVS:Assertion:Identity"
	IdentitySourceJSON = "urn:nzl:govt:ict:stds:authn:safeb64:attribute:igovt:IVS:Assertion:JSON:Identity"
)

// FederatedIdentity holds verified personal-identity facts decoded from the
// identity document inside an assert-mode assertion. Individual fields may
// be empty when the source document omits them; consumers must treat every
// field as optional.
//
// The source document's cryptographic validity is established by the SAML
// engine before extraction ever runs, so a constructed FederatedIdentity is
// always considered valid.
type FederatedIdentity struct {
	// NameID is the FIT (Federated Identity Tag) carried through from the
	// assertion, not re-derived from the identity document.
	NameID string `json:"nameId"`

	FirstName  string `json:"firstName,omitempty"`
	MiddleName string `json:"middleName,omitempty"`
	LastName   string `json:"lastName,omitempty"`

	// Gender is one of 'M', 'F', possibly 'U' or 'O' (the messaging spec
	// is unclear).
	Gender string `json:"gender,omitempty"`

	// BirthInfoQuality describes the quality of the birth information,
	// presumably based on its source. Undocumented in the messaging spec.
	BirthInfoQuality string `json:"birthInfoQuality,omitempty"`

	BirthYear  string `json:"birthYear,omitempty"`
	BirthMonth string `json:"birthMonth,omitempty"`
	BirthDay   string `json:"birthDay,omitempty"`

	// BirthPlaceQuality describes the quality of the birthplace
	// information. Undocumented in the messaging spec.
	BirthPlaceQuality  string `json:"birthPlaceQuality,omitempty"`
	BirthPlaceCountry  string `json:"birthPlaceCountry,omitempty"`
	BirthPlaceLocality string `json:"birthPlaceLocality,omitempty"`
}

// IsValid always reports true: the document this identity was extracted from
// was already validated upstream by the SAML engine.
func (fi *FederatedIdentity) IsValid() bool {
	return true
}

// DateOfBirth returns the date of birth when all three components are
// present and numeric. No cross-field consistency is enforced during
// extraction, so impossible dates normalise per time.Date rules.
func (fi *FederatedIdentity) DateOfBirth() (time.Time, bool) {
	if fi.BirthYear == "" || fi.BirthMonth == "" || fi.BirthDay == "" {
		return time.Time{}, false
	}

	year, err := strconv.Atoi(fi.BirthYear)
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(fi.BirthMonth)
	if err != nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(fi.BirthDay)
	if err != nil {
		return time.Time{}, false
	}

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// DecodeAttributePayload decodes the identity document from its SAML
// attribute value. The document arrives as a single-element list of text
// encoded with 'Base 64 Encoding with URL and Filename Safe Alphabet'
// (RFC 4648 section 5): chars 62 and 63 are '-' and '_' instead of '+' and
// '/'. Decoding is strict; silently accepting malformed input risks
// misinterpreting corrupted or tampered identity data.
func DecodeAttributePayload(values []string) ([]byte, error) {
	if len(values) == 0 || values[0] == "" {
		return nil, newAuthError(ErrCodeInvalidIdentityValue,
			"invalid identity response received from RealMe")
	}

	// Switch from the filename-safe alphabet to standard base64, padding to
	// a multiple of four as the source omits padding characters.
	encoded := strings.NewReplacer("-", "+", "_", "/").Replace(values[0])
	if rem := len(encoded) % 4; rem != 0 {
		encoded += strings.Repeat("=", 4-rem)
	}

	decoded, err := base64.StdEncoding.Strict().DecodeString(encoded)
	if err != nil {
		return nil, wrapAuthError(ErrCodeFailedParsingIdentity,
			"failed to parse safe base64 encoded identity", err)
	}

	return decoded, nil
}

// ExtractIdentity builds a FederatedIdentity from the assertion's attribute
// bag. Not all assertions carry an identity document; when neither source
// attribute is present the result is nil with no error.
func ExtractIdentity(attrs AttributeBag, nameID string) (*FederatedIdentity, error) {
	source := IdentitySourceXML
	values, ok := attrs[source]
	if !ok {
		source = IdentitySourceJSON
		if values, ok = attrs[source]; !ok {
			return nil, nil
		}
	}

	payload, err := DecodeAttributePayload(values)
	if err != nil {
		return nil, err
	}

	if source == IdentitySourceXML {
		return identityFromXML(payload, nameID)
	}
	return identityFromJSON(payload, nameID)
}

// identityFromXML extracts identity details from a CIQ party document:
//
//	<ns1:Party xmlns:ns1="urn:oasis:names:tc:ciq:xpil:3" ...>
//	    <ns1:PartyName>
//	        <ns3:PersonName>
//	            <ns3:NameElement ns3:ElementType="FirstName">Edmund</ns3:NameElement>
//	            ...
//	        </ns3:PersonName>
//	    </ns1:PartyName>
//	    <ns1:PersonInfo ns1:Gender="M"/>
//	    <ns1:BirthInfo ns2:DataQualityType="Valid">
//	        <ns1:BirthInfoElement ns1:Type="BirthYear">1919</ns1:BirthInfoElement>
//	        ...
//	        <ns1:BirthPlaceDetails ns2:DataQualityType="Valid">
//	            <ns5:Country><ns5:NameElement ns5:NameType="Name">New Zealand</ns5:NameElement></ns5:Country>
//	            <ns5:Locality><ns5:NameElement ns5:NameType="Name">Auckland</ns5:NameElement></ns5:Locality>
//	        </ns1:BirthPlaceDetails>
//	    </ns1:BirthInfo>
//	</ns1:Party>
//
// The schema permits partial data: absent elements yield empty fields, not
// errors. Element lookups match on local names so namespace prefix churn in
// provider output cannot break extraction.
func identityFromXML(payload []byte, nameID string) (*FederatedIdentity, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(payload); err != nil {
		return nil, wrapAuthError(ErrCodeFailedParsingIdentity,
			"failed to parse identity XML document", err)
	}

	party := doc.Root()
	if party == nil || party.Tag != "Party" {
		return nil, newAuthError(ErrCodeFailedParsingIdentity,
			"identity document has no Party root element")
	}

	identity := &FederatedIdentity{NameID: nameID}

	personName := childByTag(childByTag(party, "PartyName"), "PersonName")
	identity.FirstName = childTextWithAttr(personName, "NameElement", "ElementType", "FirstName")
	identity.MiddleName = childTextWithAttr(personName, "NameElement", "ElementType", "MiddleName")
	identity.LastName = childTextWithAttr(personName, "NameElement", "ElementType", "LastName")

	identity.Gender = attrByKey(childByTag(party, "PersonInfo"), "Gender")

	birthInfo := childByTag(party, "BirthInfo")
	identity.BirthInfoQuality = attrByKey(birthInfo, "DataQualityType")
	identity.BirthYear = childTextWithAttr(birthInfo, "BirthInfoElement", "Type", "BirthYear")
	identity.BirthMonth = childTextWithAttr(birthInfo, "BirthInfoElement", "Type", "BirthMonth")
	identity.BirthDay = childTextWithAttr(birthInfo, "BirthInfoElement", "Type", "BirthDay")

	birthPlace := childByTag(birthInfo, "BirthPlaceDetails")
	identity.BirthPlaceQuality = attrByKey(birthPlace, "DataQualityType")
	identity.BirthPlaceCountry = childTextWithAttr(
		childByTag(birthPlace, "Country"), "NameElement", "NameType", "Name")
	identity.BirthPlaceLocality = childTextWithAttr(
		childByTag(birthPlace, "Locality"), "NameElement", "NameType", "Name")

	return identity, nil
}

// jsonIdentity mirrors the JSON identity document schema.
type jsonIdentity struct {
	Name struct {
		FirstName  string `json:"firstName"`
		MiddleName string `json:"middleName"`
		LastName   string `json:"lastName"`
	} `json:"name"`
	Gender struct {
		GenderValue string `json:"genderValue"`
	} `json:"gender"`
	DateOfBirth struct {
		DateOfBirthValue    string `json:"dateOfBirthValue"`
		DateOfBirthDisputed string `json:"dateOfBirthDisputed"`
	} `json:"dateOfBirth"`
	PlaceOfBirth struct {
		Country              string `json:"country"`
		Locality             string `json:"locality"`
		PlaceOfBirthDisputed string `json:"placeOfBirthDisputed"`
	} `json:"placeOfBirth"`
}

// identityFromJSON extracts identity details from the JSON identity
// document. The date of birth is a YYYY-MM-DD string; a malformed value
// fails extraction rather than silently storing partial components.
// Disputed-quality flags default to "Valid" when the source omits them.
func identityFromJSON(payload []byte, nameID string) (*FederatedIdentity, error) {
	var src jsonIdentity
	if err := json.Unmarshal(payload, &src); err != nil {
		return nil, wrapAuthError(ErrCodeFailedParsingIdentity,
			"failed to parse identity JSON document", err)
	}

	identity := &FederatedIdentity{
		NameID:             nameID,
		FirstName:          src.Name.FirstName,
		MiddleName:         src.Name.MiddleName,
		LastName:           src.Name.LastName,
		Gender:             src.Gender.GenderValue,
		BirthInfoQuality:   src.DateOfBirth.DateOfBirthDisputed,
		BirthPlaceQuality:  src.PlaceOfBirth.PlaceOfBirthDisputed,
		BirthPlaceCountry:  src.PlaceOfBirth.Country,
		BirthPlaceLocality: src.PlaceOfBirth.Locality,
	}
	if identity.BirthInfoQuality == "" {
		identity.BirthInfoQuality = "Valid"
	}
	if identity.BirthPlaceQuality == "" {
		identity.BirthPlaceQuality = "Valid"
	}

	if dob := src.DateOfBirth.DateOfBirthValue; dob != "" {
		parts := strings.Split(dob, "-")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, newAuthError(ErrCodeFailedParsingIdentity,
				fmt.Sprintf("identity date of birth %q is not in YYYY-MM-DD form", dob))
		}
		identity.BirthYear, identity.BirthMonth, identity.BirthDay = parts[0], parts[1], parts[2]
	}

	return identity, nil
}

// childByTag returns the first child element with the given local tag name,
// or nil. A nil parent yields nil, which lets lookups chain across absent
// optional elements.
func childByTag(parent *etree.Element, tag string) *etree.Element {
	if parent == nil {
		return nil
	}
	for _, child := range parent.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

// childTextWithAttr returns the text of the first child element with the
// given local tag carrying attribute key=value, or "".
func childTextWithAttr(parent *etree.Element, tag, key, value string) string {
	if parent == nil {
		return ""
	}
	for _, child := range parent.ChildElements() {
		if child.Tag == tag && attrByKey(child, key) == value {
			return strings.TrimSpace(child.Text())
		}
	}
	return ""
}

// attrByKey returns the value of the attribute with the given local key,
// ignoring any namespace prefix, or "".
func attrByKey(e *etree.Element, key string) string {
	if e == nil {
		return ""
	}
	for _, attr := range e.Attr {
		if attr.Key == key {
			return attr.Value
		}
	}
	return ""
}
