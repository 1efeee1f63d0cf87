package realme

import (
	"testing"

	"github.com/beevik/etree"
)

func metadataConfig() *Config {
	return &Config{
		Environment:   EnvMTS,
		Mode:          ModeAssert,
		SPEntityIDs:   map[Environment]string{EnvMTS: "https://dev.example.govt.nz/p-realm/s-name"},
		AuthnContexts: map[Environment]string{EnvMTS: AuthnLowStrength},
		SiteBaseURL:   "https://dev.example.govt.nz",

		OrganisationName:        "example-nz",
		OrganisationDisplayName: "Example Agency",
		OrganisationURL:         "https://www.example.govt.nz",

		ContactSupportCompany:    "Example Agency",
		ContactSupportFirstNames: "Jane",
		ContactSupportSurname:    "Bloggs",
	}
}

func parseMetadata(t *testing.T, data []byte) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		t.Fatalf("metadata is not well-formed XML: %v", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "EntityDescriptor" {
		t.Fatalf("unexpected root element: %+v", root)
	}
	return root
}

func TestSPMetadata(t *testing.T) {
	cfg := metadataConfig()

	data, err := SPMetadata(cfg)
	if err != nil {
		t.Fatalf("SPMetadata: %v", err)
	}
	root := parseMetadata(t, data)

	if got := attrByKey(root, "entityID"); got != cfg.SPEntityID() {
		t.Errorf("entityID = %q, want %q", got, cfg.SPEntityID())
	}

	spsso := childByTag(root, "SPSSODescriptor")
	if spsso == nil {
		t.Fatal("no SPSSODescriptor element")
	}

	acs := childByTag(spsso, "AssertionConsumerService")
	if acs == nil {
		t.Fatal("no AssertionConsumerService element")
	}
	wantACS := "https://dev.example.govt.nz/Security/login/RealMe/acs"
	if got := attrByKey(acs, "Location"); got != wantACS {
		t.Errorf("ACS Location = %q, want %q", got, wantACS)
	}
	if got := attrByKey(acs, "Binding"); got != "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST" {
		t.Errorf("ACS Binding = %q", got)
	}

	// Assert mode publishes a transient NameID format.
	nameIDFormat := childByTag(spsso, "NameIDFormat")
	if nameIDFormat == nil {
		t.Fatal("no NameIDFormat element")
	}
	if got := nameIDFormat.Text(); got != "urn:oasis:names:tc:SAML:2.0:nameid-format:transient" {
		t.Errorf("NameIDFormat = %q", got)
	}
}

func TestSPMetadata_OrganisationAndContact(t *testing.T) {
	data, err := SPMetadata(metadataConfig())
	if err != nil {
		t.Fatalf("SPMetadata: %v", err)
	}
	root := parseMetadata(t, data)

	org := childByTag(root, "Organization")
	if org == nil {
		t.Fatal("no Organization element")
	}
	if got := childByTag(org, "OrganizationName"); got == nil || got.Text() != "example-nz" {
		t.Errorf("OrganizationName = %v", got)
	}
	if got := childByTag(org, "OrganizationDisplayName"); got == nil || got.Text() != "Example Agency" {
		t.Errorf("OrganizationDisplayName = %v", got)
	}
	if got := childByTag(org, "OrganizationURL"); got == nil || got.Text() != "https://www.example.govt.nz" {
		t.Errorf("OrganizationURL = %v", got)
	}

	contact := childByTag(root, "ContactPerson")
	if contact == nil {
		t.Fatal("no ContactPerson element")
	}
	if got := attrByKey(contact, "contactType"); got != "support" {
		t.Errorf("contactType = %q", got)
	}
	if got := childByTag(contact, "GivenName"); got == nil || got.Text() != "Jane" {
		t.Errorf("GivenName = %v", got)
	}
	if got := childByTag(contact, "SurName"); got == nil || got.Text() != "Bloggs" {
		t.Errorf("SurName = %v", got)
	}
}

func TestSPMetadata_NoOrganisationConfigured(t *testing.T) {
	cfg := metadataConfig()
	cfg.OrganisationName = ""
	cfg.OrganisationDisplayName = ""
	cfg.OrganisationURL = ""
	cfg.ContactSupportCompany = ""
	cfg.ContactSupportFirstNames = ""
	cfg.ContactSupportSurname = ""

	data, err := SPMetadata(cfg)
	if err != nil {
		t.Fatalf("SPMetadata: %v", err)
	}
	root := parseMetadata(t, data)

	if childByTag(root, "Organization") != nil {
		t.Error("unexpected Organization element")
	}
	if childByTag(root, "ContactPerson") != nil {
		t.Error("unexpected ContactPerson element")
	}
}
