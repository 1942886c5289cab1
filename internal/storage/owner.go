package storage

import (
	"bufio"
	"io"
	"os"
	"os/user"
	"strings"
)

// Owner is the uid/gid new pools and volumes are chowned to so the qemu
// process can open them.
type Owner struct {
	UID string
	GID string
}

// FallbackOwner is the Fedora/RHEL qemu account.
var FallbackOwner = Owner{UID: "107", GID: "107"}

// DefaultQEMUConf is where libvirt's qemu driver config lives.
const DefaultQEMUConf = "/etc/libvirt/qemu.conf"

// ResolveOwner finds the account qemu runs as. It reads user and group
// from confPath, then tries the common account names, then falls back to
// FallbackOwner. The bool is false when the fallback was used.
func ResolveOwner(confPath string) (Owner, bool) {
	var username, groupname string
	if f, err := os.Open(confPath); err == nil {
		username, groupname = ParseQEMUConf(f)
		_ = f.Close()
	}

	candidates := []string{"qemu", "libvirt-qemu"}
	if username != "" {
		candidates = append([]string{username}, candidates...)
	}

	for _, name := range candidates {
		u, err := user.Lookup(name)
		if err != nil {
			continue
		}
		owner := Owner{UID: u.Uid, GID: u.Gid}
		if name == username && groupname != "" {
			if g, err := user.LookupGroup(groupname); err == nil {
				owner.GID = g.Gid
			}
		}
		return owner, true
	}
	return FallbackOwner, false
}

// ParseQEMUConf extracts the user and group settings from qemu.conf
// content. Commented-out lines are ignored.
func ParseQEMUConf(r io.Reader) (username, groupname string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}
	return username, groupname
}
