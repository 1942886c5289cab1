package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/thoth/internal/cloudinit"
	thothlibvirt "github.com/jbweber/thoth/internal/libvirt"
	"github.com/jbweber/thoth/internal/metadata"
	"github.com/jbweber/thoth/internal/naming"
	"github.com/jbweber/thoth/internal/remote"
)

var errImageRequired = errors.New("image is required")

// CreateProvisioningRequest provisions a VM and returns its name. The
// domain is defined but not started.
//
// This orchestrates the entire VM creation process:
//  1. Normalize and validate the request
//  2. Pre-flight checks (VM exists, base image present)
//  3. Create the boot volume as an overlay of the base image
//  4. Generate the cloud-init seed ISO and upload it
//  5. Define the domain in libvirt
//  6. Record thoth metadata
//
// On any failure, attempts to clean up partially created resources.
func (b *Backend) CreateProvisioningRequest(ctx context.Context, req remote.ProvisioningRequest) (string, error) {
	const op = "provision"

	req = req.Normalized()
	if req.Image == "" {
		req.Image = b.cfg.DefaultImage
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.Image == "" {
		return "", remote.Validation(op, errImageRequired)
	}
	if err := ctx.Err(); err != nil {
		return "", remote.Unavailable(op, req.Hostname, err)
	}

	name := req.Hostname
	log := b.log.With("name", name)

	// State tracking for cleanup
	var (
		domainDefined bool
		volumes       []string
	)
	var createErr error
	defer func() {
		if createErr != nil {
			b.cleanup(ctx, name, volumes, domainDefined)
		}
	}()

	// Step 1: Check if VM already exists
	log.Infof("Checking if VM '%s' already exists...", name)
	exists, err := b.domainExists(name)
	if err != nil {
		return "", classify(op, name, err)
	}
	if exists {
		return "", remote.Rejected(op, name, remote.ErrAlreadyExists)
	}

	// Step 2: Storage pools and base image
	log.Infof("Ensuring storage pools exist...")
	if err := b.sm.EnsureDefaultPools(ctx); err != nil {
		return "", classify(op, name, err)
	}

	image := naming.ImageVolumeName(req.Image)
	log.Infof("Checking base image %s...", image)
	ok, err := b.sm.ImageExists(ctx, image)
	if err != nil {
		return "", classify(op, name, err)
	}
	if !ok {
		return "", remote.Validation(op, fmt.Errorf("base image %q not found in images pool", image))
	}

	// Step 3: Boot disk
	bootName := naming.VolumeNameBoot(name)
	log.Infof("Creating boot disk %s (%dGB)...", bootName, req.DiskGB)
	if _, createErr = b.sm.CreateOverlay(ctx, bootName, image, req.DiskGB); createErr != nil {
		return "", classify(op, name, fmt.Errorf("failed to create boot disk: %w", createErr))
	}
	volumes = append(volumes, bootName)

	// Step 4: Cloud-init seed
	log.Infof("Generating cloud-init ISO...")
	var iso []byte
	iso, createErr = cloudinit.GenerateISO(cloudinit.Config{
		Hostname: name,
		Username: req.Username,
		Password: req.Password,
		SSHKey:   req.SSHKey,
	})
	if createErr != nil {
		return "", remote.Validation(op, fmt.Errorf("failed to generate cloud-init ISO: %w", createErr))
	}

	seedName := naming.VolumeNameCloudInit(name)
	log.Infof("Writing cloud-init ISO %s...", seedName)
	if _, createErr = b.sm.CreateSeed(ctx, seedName, iso); createErr != nil {
		return "", classify(op, name, fmt.Errorf("failed to write cloud-init ISO: %w", createErr))
	}
	volumes = append(volumes, seedName)

	// Step 5: Domain
	log.Infof("Generating domain XML...")
	var domainXML string
	domainXML, createErr = thothlibvirt.GenerateDomainXML(thothlibvirt.DomainSpec{
		Name:        name,
		MemoryMB:    req.MemoryMB,
		VCPUs:       req.VCPUs,
		Pool:        b.sm.VMsPool(),
		BootVolume:  bootName,
		SeedVolume:  seedName,
		Network:     req.Network,
		Description: fmt.Sprintf("%s flavor, image %s", req.Flavor, req.Image),
	})
	if createErr != nil {
		return "", remote.Validation(op, createErr)
	}

	log.Infof("Defining domain in libvirt...")
	var dom libvirt.Domain
	dom, createErr = b.lv.DomainDefineXML(domainXML)
	if createErr != nil {
		return "", classify(op, name, fmt.Errorf("failed to define domain: %w", createErr))
	}
	domainDefined = true

	// Step 6: Metadata
	inst := metadata.Instance{
		Owner:       b.cfg.Owner,
		DisplayName: name,
		Flavor:      req.Flavor,
		Image:       req.Image,
		Created:     b.cfg.Clock.Now().UTC(),
	}
	if createErr = metadata.Store(b.lv, dom, inst); createErr != nil {
		return "", classify(op, name, createErr)
	}

	log.Infof("VM '%s' created successfully!", name)
	return name, nil
}

// cleanup attempts to remove everything a failed provisioning created.
//
// This is best-effort: it logs errors but continues trying to clean up
// as much as possible. It never returns an error.
func (b *Backend) cleanup(ctx context.Context, name string, volumes []string, domainDefined bool) {
	log := b.log.With("name", name)
	log.Infof("Cleaning up after failed VM creation...")

	// The caller's context may be what failed the creation.
	ctx = context.WithoutCancel(ctx)

	if domainDefined {
		dom, err := b.lv.DomainLookupByName(name)
		if err != nil {
			log.Warnf("failed to lookup domain for cleanup: %v", err)
		} else if err := b.lv.DomainUndefine(dom); err != nil {
			log.Warnf("failed to undefine domain: %v", err)
		}
	}

	for _, vol := range volumes {
		if err := b.sm.DeleteVolume(ctx, b.sm.VMsPool(), vol); err != nil {
			log.Warnf("failed to delete volume %s: %v", vol, err)
		}
	}

	log.Infof("Cleanup complete")
}
