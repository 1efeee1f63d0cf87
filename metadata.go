package realme

import (
	"encoding/xml"
	"fmt"
	"net/url"

	"github.com/beevik/etree"
	"github.com/crewjam/saml"
)

// SPMetadata renders the service provider metadata XML that is submitted to
// RealMe during integration: entity ID, POST-binding assertion consumer
// service, NameID format for the configured integration mode, the signing
// certificate when one is configured, and the organisation and support
// contact details.
func SPMetadata(cfg *Config) ([]byte, error) {
	entityID, err := url.Parse(cfg.SPEntityID())
	if err != nil {
		return nil, fmt.Errorf("parse SP entity ID: %w", err)
	}

	acsURL, err := url.Parse(cfg.AssertionConsumerServiceURL())
	if err != nil {
		return nil, fmt.Errorf("parse ACS URL: %w", err)
	}

	sp := &saml.ServiceProvider{
		EntityID:          cfg.SPEntityID(),
		MetadataURL:       *entityID,
		AcsURL:            *acsURL,
		AuthnNameIDFormat: saml.NameIDFormat(cfg.NameIDFormat()),
	}

	if certPath := cfg.SigningCertPath(); certPath != "" {
		cert, err := loadCertificate(certPath)
		if err != nil {
			return nil, fmt.Errorf("load signing certificate: %w", err)
		}
		sp.Certificate = cert
	}

	descriptor := sp.Metadata()
	data, err := xml.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return nil, err
	}

	return appendOrganisationDetails(cfg, data)
}

// appendOrganisationDetails adds the Organization and ContactPerson
// elements RealMe expects. The elements are unprefixed and inherit the
// metadata namespace from the document root.
func appendOrganisationDetails(cfg *Config, data []byte) ([]byte, error) {
	hasOrg := cfg.OrganisationName != "" || cfg.OrganisationDisplayName != "" || cfg.OrganisationURL != ""
	hasContact := cfg.ContactSupportCompany != "" || cfg.ContactSupportFirstNames != "" ||
		cfg.ContactSupportSurname != ""
	if !hasOrg && !hasContact {
		return data, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("metadata document has no root element")
	}

	if hasOrg {
		org := root.CreateElement("Organization")
		addLocalisedElement(org, "OrganizationName", cfg.OrganisationName)
		addLocalisedElement(org, "OrganizationDisplayName", cfg.OrganisationDisplayName)
		addLocalisedElement(org, "OrganizationURL", cfg.OrganisationURL)
	}

	if hasContact {
		contact := root.CreateElement("ContactPerson")
		contact.CreateAttr("contactType", "support")
		if cfg.ContactSupportCompany != "" {
			contact.CreateElement("Company").SetText(cfg.ContactSupportCompany)
		}
		if cfg.ContactSupportFirstNames != "" {
			contact.CreateElement("GivenName").SetText(cfg.ContactSupportFirstNames)
		}
		if cfg.ContactSupportSurname != "" {
			contact.CreateElement("SurName").SetText(cfg.ContactSupportSurname)
		}
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}

func addLocalisedElement(parent *etree.Element, tag, value string) {
	if value == "" {
		return
	}
	el := parent.CreateElement(tag)
	el.CreateAttr("xml:lang", "en")
	el.SetText(value)
}
