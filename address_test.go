package realme

import "testing"

const standardAddressXML = `<?xml version="1.0" encoding="UTF-8"?>
<p:Party xmlns:p="urn:oasis:names:tc:ciq:xpil:3" xmlns:a="urn:oasis:names:tc:ciq:xal:3">
    <a:Addresses>
        <a:Address Type="NZStandard" Usage="Residential" DataQualityType="Valid" ValidFrom="13/11/2012">
            <a:Locality>
                <a:NameElement a:NameType="NZTownCity">Wellington</a:NameElement>
                <a:NameElement a:NameType="NZSuburb">Kelburn</a:NameElement>
            </a:Locality>
            <a:Thoroughfare>
                <a:NameElement a:NameType="NZNumberStreet">103 Courtenay Place</a:NameElement>
            </a:Thoroughfare>
            <a:PostCode>
                <a:Identifier Type="NZPostCode">6011</a:Identifier>
            </a:PostCode>
        </a:Address>
    </a:Addresses>
</p:Party>`

const ruralAddressXML = `<?xml version="1.0" encoding="UTF-8"?>
<p:Party xmlns:p="urn:oasis:names:tc:ciq:xpil:3" xmlns:a="urn:oasis:names:tc:ciq:xal:3">
    <a:Addresses>
        <a:Address Type="NZRuralDelivery" DataQualityType="Valid">
            <a:Thoroughfare>
                <a:NameElement a:NameType="NZNumberStreet">1 Back Road</a:NameElement>
            </a:Thoroughfare>
            <a:RuralDelivery>
                <a:Identifier Type="NZRuralDelivery">RD 123</a:Identifier>
            </a:RuralDelivery>
            <a:Locality>
                <a:NameElement a:NameType="NZTownCity">Masterton</a:NameElement>
            </a:Locality>
            <a:PostCode>
                <a:Identifier Type="NZPostCode">0002</a:Identifier>
            </a:PostCode>
        </a:Address>
    </a:Addresses>
</p:Party>`

func TestAddressFromXML_Standard(t *testing.T) {
	address, err := AddressFromXML([]byte(standardAddressXML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"AddressType", address.AddressType, AddressTypeStandard},
		{"VerificationDate", address.VerificationDate, "13/11/2012"},
		{"DataQuality", address.DataQuality, "Valid"},
		{"NZNumberStreet", address.NZNumberStreet, "103 Courtenay Place"},
		{"NZSuburb", address.NZSuburb, "Kelburn"},
		{"NZTownOrCity", address.NZTownOrCity, "Wellington"},
		{"NZPostCode", address.NZPostCode, "6011"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}

	if address.IsRuralDelivery() {
		t.Error("standard address reported as rural delivery")
	}
	if !address.IsValid() {
		t.Error("extracted address should report valid")
	}
}

func TestAddressFromXML_RuralDelivery(t *testing.T) {
	address, err := AddressFromXML([]byte(ruralAddressXML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !address.IsRuralDelivery() {
		t.Error("rural address not reported as rural delivery")
	}
	if address.NZRuralDelivery != "RD 123" {
		t.Errorf("NZRuralDelivery = %q, want RD 123", address.NZRuralDelivery)
	}
	// Leading zeroes must survive: the post code is a string, not a number.
	if address.NZPostCode != "0002" {
		t.Errorf("NZPostCode = %q, want 0002", address.NZPostCode)
	}
}

func TestAddressFromXML_Malformed(t *testing.T) {
	cases := map[string]string{
		"not xml":    "not xml at all",
		"wrong root": "<Other/>",
		"no address": `<p:Party xmlns:p="urn:oasis:names:tc:ciq:xpil:3"/>`,
	}
	for name, payload := range cases {
		if _, err := AddressFromXML([]byte(payload)); !HasErrorCode(err, ErrCodeFailedParsingIdentity) {
			t.Errorf("%s: expected code %s, got %v", name, ErrCodeFailedParsingIdentity, err)
		}
	}
}
