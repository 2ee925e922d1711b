package installed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/modsync/internal/domain/module"
)

// ReceiptFilename is the install receipt written into every version directory.
const ReceiptFilename = "modsync-receipt.yaml"

// receiptFileMode is the permission of receipt files.
const receiptFileMode = 0o644

// Registry lists locally installed module versions.
type Registry interface {
	List(ctx context.Context, name string) ([]module.Installed, error)
}

// Receipt describes how a module version was installed.
type Receipt struct {
	// Name is the module name as published in the repository.
	Name string `yaml:"name"`
	// Version is the installed version.
	Version string `yaml:"version"`
	// Repository is the repository name, e.g. PSGallery.
	Repository string `yaml:"repository"`
	// RepositorySourceLocation is the repository URL the package was downloaded from.
	RepositorySourceLocation string `yaml:"repository_source_location"`
	// Scope is the install scope.
	Scope module.Scope `yaml:"scope"`
	// PackageHash is the base64 digest of the package archive.
	PackageHash string `yaml:"package_hash,omitempty"`
	// InstalledAt is when the version was installed.
	InstalledAt time.Time `yaml:"installed_at"`
}

// ErrInvalidReceipt is returned when a receipt lacks its name or version.
var ErrInvalidReceipt = errors.New("receipt must name a module and version")

// FileRegistry reads installed modules from the module roots on disk.
type FileRegistry struct {
	// roots maps each scope to its module root directory.
	roots map[module.Scope]string
}

// NewFileRegistry creates a registry over the module root of each scope.
func NewFileRegistry(roots map[module.Scope]string) *FileRegistry {
	cleaned := make(map[module.Scope]string, len(roots))
	for scope, root := range roots {
		if root != "" {
			cleaned[scope] = filepath.Clean(root)
		}
	}

	return &FileRegistry{roots: cleaned}
}

// Root returns the module root of the scope.
func (r *FileRegistry) Root(scope module.Scope) string {
	return r.roots[scope]
}

// List returns every installed version of name across all scopes.
// Names match case-insensitively and missing roots are not an error.
func (r *FileRegistry) List(ctx context.Context, name string) ([]module.Installed, error) {
	var result []module.Installed

	for _, scope := range module.Scopes() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		root, ok := r.roots[scope]
		if !ok {
			continue
		}

		found, err := listScope(root, scope, name)
		if err != nil {
			return nil, err
		}

		result = append(result, found...)
	}

	return result, nil
}

// Record writes the receipt into the version directory of the scope root.
func (r *FileRegistry) Record(_ context.Context, receipt *Receipt) (string, error) {
	if receipt == nil || receipt.Name == "" || receipt.Version == "" {
		return "", ErrInvalidReceipt
	}

	dir := filepath.Join(r.roots[receipt.Scope], receipt.Name, receipt.Version)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("create module directory: %w", err)
	}

	data, err := yaml.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("encode receipt: %w", err)
	}

	path := filepath.Join(dir, ReceiptFilename)
	if err = os.WriteFile(path, data, receiptFileMode); err != nil {
		return "", fmt.Errorf("write receipt: %w", err)
	}

	return path, nil
}

// ReadReceipt loads the receipt stored in a version directory.
func ReadReceipt(versionDir string) (*Receipt, error) {
	contents, err := os.ReadFile(filepath.Join(versionDir, ReceiptFilename))
	if err != nil {
		return nil, err
	}

	var receipt Receipt
	if err = yaml.Unmarshal(contents, &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt %s: %w", versionDir, err)
	}

	return &receipt, nil
}

func listScope(root string, scope module.Scope, name string) ([]module.Installed, error) {
	moduleDirs, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read module root %s: %w", root, err)
	}

	var result []module.Installed

	for _, moduleDir := range moduleDirs {
		if !moduleDir.IsDir() || !strings.EqualFold(moduleDir.Name(), name) {
			continue
		}

		found, err := listVersions(filepath.Join(root, moduleDir.Name()), moduleDir.Name(), scope)
		if err != nil {
			return nil, err
		}

		result = append(result, found...)
	}

	return result, nil
}

func listVersions(moduleDir, name string, scope module.Scope) ([]module.Installed, error) {
	versionDirs, err := os.ReadDir(moduleDir)
	if err != nil {
		return nil, fmt.Errorf("read module directory %s: %w", moduleDir, err)
	}

	result := make([]module.Installed, 0, len(versionDirs))

	for _, versionDir := range versionDirs {
		if !versionDir.IsDir() {
			continue
		}

		parsed, parseErr := version.NewVersion(versionDir.Name())
		if parseErr != nil {
			continue
		}

		path := filepath.Join(moduleDir, versionDir.Name())
		installed := module.Installed{
			Name:    name,
			Version: parsed,
			Path:    path,
			Scope:   scope,
		}

		if err = readOrigin(path, &installed); err != nil {
			return nil, err
		}

		result = append(result, installed)
	}

	return result, nil
}

// readOrigin fills the origin from the modsync receipt, falling back to the
// PowerShellGet metadata. Hand-copied versions keep an empty origin.
func readOrigin(path string, installed *module.Installed) error {
	receipt, err := ReadReceipt(path)
	if err == nil {
		installed.Origin = receipt.RepositorySourceLocation
		if receipt.Name != "" {
			installed.Name = receipt.Name
		}

		return nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	info, err := ReadPSGetInfo(path)
	if err == nil {
		installed.Origin = info.RepositorySourceLocation
		if info.Name != "" {
			installed.Name = info.Name
		}

		return nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}
