package module

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-version"
)

// Request describes what to do with one module name.
type Request struct {
	// Name is the module name as given by the caller.
	Name string
	// Install allows installing the module when it is missing.
	Install bool
	// Update allows upgrading the module when the repository has a newer version.
	Update bool
	// Scope is where new versions are installed.
	Scope Scope
}

// Installed is a snapshot of one locally installed module version.
type Installed struct {
	// Name is the module name as recorded on disk.
	Name string
	// Version is the installed module version.
	Version *version.Version
	// Origin is the repository source location the module was installed from.
	// It is empty when the module was not installed from a repository.
	Origin string
	// Path is the version directory holding the module files.
	Path string
	// Scope is the module root the version was found in.
	Scope Scope
}

// Remote is the latest version of a module as reported by the repository.
type Remote struct {
	// Name is the module identifier in the repository.
	Name string
	// Version is the latest stable version.
	Version *version.Version
	// DownloadURL points to the package archive.
	DownloadURL string
	// PackageHash is the base64 encoded package digest.
	PackageHash string
	// HashAlgorithm names the digest algorithm (SHA512 for the gallery).
	HashAlgorithm string
}

// Highest returns the installed entry with the greatest version, or nil for an empty list.
func Highest(installed []Installed) *Installed {
	var best *Installed

	for i := range installed {
		candidate := &installed[i]
		if candidate.Version == nil {
			continue
		}

		if best == nil || candidate.Version.GreaterThan(best.Version) {
			best = candidate
		}
	}

	return best
}

// IsNewer reports whether remote is strictly greater than local.
func IsNewer(local, remote *version.Version) bool {
	if local == nil || remote == nil {
		return false
	}

	return remote.GreaterThan(local)
}

// OriginHost returns the host of the recorded origin, lowercased.
// A bare host without scheme is accepted as well.
func OriginHost(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ""
	}

	if !strings.Contains(origin, "://") {
		origin = "https://" + origin
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return ""
	}

	return strings.ToLower(parsed.Hostname())
}

// IsTrustedOrigin reports whether the installed module came from trustedHost.
func (i *Installed) IsTrustedOrigin(trustedHost string) bool {
	host := OriginHost(i.Origin)

	return host != "" && strings.EqualFold(host, strings.TrimSpace(trustedHost))
}

// ActionKind tells what a planned action would change.
type ActionKind int

const (
	// ActionNone leaves the module untouched.
	ActionNone ActionKind = iota
	// ActionInstall installs a missing module.
	ActionInstall
	// ActionUpdate installs a newer version over an existing one.
	ActionUpdate
)

// String returns the verb used in prompts and logs.
func (k ActionKind) String() string {
	switch k {
	case ActionInstall:
		return "Install"
	case ActionUpdate:
		return "Update"
	default:
		return "None"
	}
}

// Action is the outcome of planning for one module.
type Action struct {
	// Kind is what the action would change.
	Kind ActionKind
	// Name is the module name.
	Name string
	// Version is the target version; empty means the latest available.
	Version string
	// Scope is where the module is installed.
	Scope Scope
	// Notice is a human readable note for ActionNone outcomes.
	Notice string
}

// Mutates reports whether applying the action changes the machine.
func (a *Action) Mutates() bool {
	return a != nil && a.Kind != ActionNone
}

// Question is the confirmation prompt for the action.
func (a *Action) Question() string {
	if a.Version == "" {
		return fmt.Sprintf("%s %s?", a.Kind, a.Name)
	}

	return fmt.Sprintf("%s %s to version %s?", a.Kind, a.Name, a.Version)
}
