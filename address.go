package realme

import "github.com/beevik/etree"

// Address types returned in verified-address documents.
const (
	AddressTypeStandard      = "NZStandard"
	AddressTypeRuralDelivery = "NZRuralDelivery"
)

// FederatedAddress holds the verified address returned as part of an
// assert-mode identity. Fields may be empty when the source document omits
// them.
//
// See https://developers.realme.govt.nz/how-realme-works/verified-address-data/
type FederatedAddress struct {
	// AddressType is either NZStandard or NZRuralDelivery.
	AddressType string `json:"addressType,omitempty"`

	// VerificationDate is the date this address was marked as verified.
	VerificationDate string `json:"verificationDate,omitempty"`

	// DataQuality describes the quality of the address information.
	// Undocumented in the messaging spec.
	DataQuality string `json:"dataQuality,omitempty"`

	// NZNumberStreet is the street number, suffix and street name,
	// e.g. 103 Courtenay Place.
	NZNumberStreet string `json:"nzNumberStreet,omitempty"`

	// NZRuralDelivery is the RD number, e.g. RD 123. Required when the
	// address type is rural.
	NZRuralDelivery string `json:"nzRuralDelivery,omitempty"`

	NZSuburb     string `json:"nzSuburb,omitempty"`
	NZTownOrCity string `json:"nzTownOrCity,omitempty"`

	// NZPostCode is a 4 digit string with leading zeroes, e.g. 6011 or 0002.
	NZPostCode string `json:"nzPostCode,omitempty"`
}

// IsRuralDelivery reports whether this is a rural delivery address.
func (a *FederatedAddress) IsRuralDelivery() bool {
	return a.AddressType == AddressTypeRuralDelivery
}

// IsValid always reports true: the document this address was extracted from
// was already validated upstream by the SAML engine.
func (a *FederatedAddress) IsValid() bool {
	return true
}

// AddressFromXML extracts a verified address from its party document:
//
//	<p:Party xmlns:p="urn:oasis:names:tc:ciq:xpil:3"
//	         xmlns:a="urn:oasis:names:tc:ciq:xal:3">
//	    <a:Addresses>
//	        <a:Address Type="NZStandard" Usage="Residential"
//	                   DataQualityType="Valid" ValidFrom="13/11/2012">
//	            <a:Locality>
//	                <a:NameElement a:NameType="NZTownCity">Wellington</a:NameElement>
//	                <a:NameElement a:NameType="NZSuburb">Kelburn</a:NameElement>
//	            </a:Locality>
//	            <a:Thoroughfare>
//	                <a:NameElement a:NameType="NZNumberStreet">1 Main St</a:NameElement>
//	            </a:Thoroughfare>
//	            <a:PostCode>
//	                <a:Identifier Type="NZPostCode">1111</a:Identifier>
//	            </a:PostCode>
//	        </a:Address>
//	    </a:Addresses>
//	</p:Party>
//
// Absent elements yield empty fields, not errors.
func AddressFromXML(payload []byte) (*FederatedAddress, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(payload); err != nil {
		return nil, wrapAuthError(ErrCodeFailedParsingIdentity,
			"failed to parse address XML document", err)
	}

	party := doc.Root()
	if party == nil || party.Tag != "Party" {
		return nil, newAuthError(ErrCodeFailedParsingIdentity,
			"address document has no Party root element")
	}

	address := childByTag(childByTag(party, "Addresses"), "Address")
	if address == nil {
		return nil, newAuthError(ErrCodeFailedParsingIdentity,
			"address document has no Address element")
	}

	return &FederatedAddress{
		AddressType:      attrByKey(address, "Type"),
		VerificationDate: attrByKey(address, "ValidFrom"),
		DataQuality:      attrByKey(address, "DataQualityType"),
		NZNumberStreet: childTextWithAttr(
			childByTag(address, "Thoroughfare"), "NameElement", "NameType", "NZNumberStreet"),
		NZRuralDelivery: childTextWithAttr(
			childByTag(address, "RuralDelivery"), "Identifier", "Type", "NZRuralDelivery"),
		NZSuburb: childTextWithAttr(
			childByTag(address, "Locality"), "NameElement", "NameType", "NZSuburb"),
		NZTownOrCity: childTextWithAttr(
			childByTag(address, "Locality"), "NameElement", "NameType", "NZTownCity"),
		NZPostCode: childTextWithAttr(
			childByTag(address, "PostCode"), "Identifier", "Type", "NZPostCode"),
	}, nil
}
