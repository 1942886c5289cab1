// Package naming holds the volume naming conventions shared by provisioning,
// clone and delete.
package naming

import (
	"fmt"
	"path/filepath"
	"strings"
)

// VolumeNameBoot returns the volume name for a VM's boot disk.
// Format: {vmName}_boot.qcow2
func VolumeNameBoot(vmName string) string {
	return fmt.Sprintf("%s_boot.qcow2", vmName)
}

// VolumeNameCloudInit returns the volume name for a VM's cloud-init ISO.
// Format: {vmName}_cloudinit.iso
func VolumeNameCloudInit(vmName string) string {
	return fmt.Sprintf("%s_cloudinit.iso", vmName)
}

// VolumeNameClone names the copy of srcVolume made for cloneName. Volumes
// that follow the {srcVM}_ convention keep their suffix
// (web01_boot.qcow2 -> web02_boot.qcow2); anything else is prefixed with
// the clone name and disambiguated by target device.
func VolumeNameClone(srcVM, cloneName, srcVolume, target string) string {
	base := filepath.Base(srcVolume)
	if rest, ok := strings.CutPrefix(base, srcVM+"_"); ok {
		return cloneName + "_" + rest
	}
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".qcow2"
	}
	return fmt.Sprintf("%s_%s%s", cloneName, target, ext)
}

// ImageVolumeName maps an OS image selector to its volume in the images
// pool. Selectors without an extension get ".qcow2".
func ImageVolumeName(image string) string {
	if filepath.Ext(image) == "" || !knownImageExt(filepath.Ext(image)) {
		return image + ".qcow2"
	}
	return image
}

func knownImageExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".qcow2", ".img", ".raw":
		return true
	}
	return false
}

// OwnsVolume reports whether volume follows the naming convention of vmName.
func OwnsVolume(vmName, volume string) bool {
	return strings.HasPrefix(filepath.Base(volume), vmName+"_")
}
