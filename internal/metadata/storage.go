// Package metadata keeps thoth's bookkeeping about a VM (owner, display
// name, flavor, image, creation time) inside the libvirt domain itself,
// using libvirt's custom XML metadata element.
package metadata

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
)

const (
	// Namespace identifies thoth's metadata element.
	Namespace = "https://github.com/jbweber/thoth/metadata/v1"

	// Key is the XML prefix libvirt uses for the element.
	Key = "thoth"
)

// LibvirtClient is the pair of metadata RPCs this package needs.
type LibvirtClient interface {
	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(Dom libvirt.Domain, Type int32, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)
}

// Instance is what thoth records about a VM it provisioned.
type Instance struct {
	XMLName     xml.Name  `xml:"instance"`
	Xmlns       string    `xml:"xmlns,attr,omitempty"`
	Owner       string    `xml:"owner,omitempty"`
	DisplayName string    `xml:"displayName,omitempty"`
	Flavor      string    `xml:"flavor,omitempty"`
	Image       string    `xml:"image,omitempty"`
	Created     time.Time `xml:"created,omitempty"`
	ClonedFrom  string    `xml:"clonedFrom,omitempty"`
}

// Store writes inst to the domain's persistent config, replacing any
// previous record.
func Store(l LibvirtClient, domain libvirt.Domain, inst Instance) error {
	inst.Xmlns = Namespace
	data, err := xml.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata to XML: %w", err)
	}

	err = l.DomainSetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{string(data)},
		libvirt.OptString{Key},
		libvirt.OptString{Namespace},
		libvirt.DomainAffectConfig,
	)
	if err != nil {
		return fmt.Errorf("failed to set libvirt domain metadata: %w", err)
	}
	return nil
}

// Load reads the record back. Domains not created by thoth have none and
// return an error.
func Load(l LibvirtClient, domain libvirt.Domain) (*Instance, error) {
	raw, err := l.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{Namespace},
		libvirt.DomainAffectConfig,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get libvirt domain metadata: %w", err)
	}

	var inst Instance
	if err := xml.Unmarshal([]byte(raw), &inst); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata XML: %w", err)
	}
	inst.Xmlns = ""
	return &inst, nil
}

// LoadOrDefault is Load that treats a missing or unreadable record as an
// empty one.
func LoadOrDefault(l LibvirtClient, domain libvirt.Domain) Instance {
	inst, err := Load(l, domain)
	if err != nil {
		return Instance{}
	}
	return *inst
}
