package gallery

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/modsync/internal/domain/module"
	"github.com/oshokin/modsync/internal/logger"
	"github.com/oshokin/modsync/internal/repository/installed"

	// Ensure SHA512 is available for package verification.
	_ "crypto/sha512"
)

const (
	// packageFileMode is used for cached packages and extracted files.
	packageFileMode os.FileMode = 0o644
	// directoryMode is used for created module directories.
	directoryMode os.FileMode = 0o755
	// packageExtension is the NuGet package suffix.
	packageExtension = ".nupkg"
	// stagingPattern names the temporary extraction directory.
	stagingPattern = ".modsync-staging-"
	// oldFileSuffix names the previous cached package kept by go-update during Apply.
	oldFileSuffix = ".old"
)

var (
	// ErrAlreadyInstalled is returned when the version exists and Force is not set.
	ErrAlreadyInstalled = errors.New("module version is already installed")
	// ErrWouldClobber is returned when existing files would be replaced without AllowClobber.
	ErrWouldClobber = errors.New("existing module files would be overwritten")
	// ErrMissingChecksum is returned when the feed publishes no package digest.
	ErrMissingChecksum = errors.New("package hash missing from feed")
	// ErrUnsupportedHash is returned for package digests other than SHA512.
	ErrUnsupportedHash = errors.New("unsupported package hash algorithm")
	// ErrUnsafePath is returned for archive entries escaping the module directory.
	ErrUnsafePath = errors.New("archive entry escapes module directory")

	errUnknownScope = errors.New("no module root configured for scope")
)

// InstallRequest asks the installer to put a module version on disk.
type InstallRequest struct {
	// Name is the module name.
	Name string
	// Version pins a version; empty means the latest stable one.
	Version string
	// Scope selects the module root.
	Scope module.Scope
	// Force installs even when the version directory already exists.
	Force bool
	// AllowClobber allows replacing files of an existing version directory.
	AllowClobber bool
}

// Receipts records install receipts and resolves module roots.
type Receipts interface {
	Root(scope module.Scope) string
	Record(ctx context.Context, receipt *installed.Receipt) (string, error)
}

// Installer installs modules from the gallery into the local module roots.
type Installer struct {
	// client talks to the feed.
	client *Client
	// receipts resolves roots and records receipts.
	receipts Receipts
	// repositoryName is recorded in receipts.
	repositoryName string
	// cacheDir keeps verified package archives.
	cacheDir string
	// now returns the install time.
	now func() time.Time
}

// NewInstaller creates an installer that caches packages in cacheDir.
func NewInstaller(client *Client, receipts Receipts, repositoryName, cacheDir string) *Installer {
	return &Installer{
		client:         client,
		receipts:       receipts,
		repositoryName: repositoryName,
		cacheDir:       filepath.Clean(cacheDir),
		now:            time.Now,
	}
}

// FindLatest returns the latest stable version of the module.
func (i *Installer) FindLatest(ctx context.Context, name string) (*module.Remote, error) {
	return i.client.FindLatest(ctx, name)
}

// Install downloads, verifies and extracts a module version, then records its receipt.
func (i *Installer) Install(ctx context.Context, req *InstallRequest) (*module.Installed, error) {
	root := i.receipts.Root(req.Scope)
	if root == "" {
		return nil, fmt.Errorf("%s: %w", req.Scope, errUnknownScope)
	}

	remote, err := i.client.Find(ctx, req.Name, req.Version)
	if err != nil {
		return nil, err
	}

	ver := remote.Version.Original()
	destination := filepath.Join(root, remote.Name, ver)

	exists, err := directoryExists(destination)
	if err != nil {
		return nil, err
	}

	if exists && !req.Force {
		return nil, fmt.Errorf("%s %s: %w", remote.Name, ver, ErrAlreadyInstalled)
	}

	if exists && !req.AllowClobber {
		return nil, fmt.Errorf("%s: %w", destination, ErrWouldClobber)
	}

	data, err := i.client.Download(ctx, remote)
	if err != nil {
		return nil, err
	}

	if err = i.cachePackage(ctx, remote, data); err != nil {
		return nil, err
	}

	if err = extractPackage(data, filepath.Join(root, remote.Name), destination); err != nil {
		return nil, err
	}

	receipt := &installed.Receipt{
		Name:                     remote.Name,
		Version:                  ver,
		Repository:               i.repositoryName,
		RepositorySourceLocation: i.client.BaseURL(),
		Scope:                    req.Scope,
		PackageHash:              remote.PackageHash,
		InstalledAt:              i.now().UTC(),
	}

	if _, err = i.receipts.Record(ctx, receipt); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Installed module", "module", remote.Name, "version", ver, "path", destination)

	return &module.Installed{
		Name:    remote.Name,
		Version: remote.Version,
		Origin:  receipt.RepositorySourceLocation,
		Path:    destination,
		Scope:   req.Scope,
	}, nil
}

// cachePackage writes the archive into the cache through go-update,
// which rejects the bytes when they do not match the published digest.
func (i *Installer) cachePackage(ctx context.Context, remote *module.Remote, data []byte) error {
	checksum, err := decodeChecksum(remote)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(i.cacheDir, directoryMode); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	target := filepath.Join(i.cacheDir, strings.ToLower(remote.Name)+"."+remote.Version.Original()+packageExtension)

	// go-update renames the existing target aside, so it has to exist.
	if _, err = os.Stat(target); errors.Is(err, os.ErrNotExist) {
		var placeholder *os.File

		placeholder, err = os.Create(target)
		if err != nil {
			return fmt.Errorf("create cached package: %w", err)
		}

		_ = placeholder.Close()
	}

	oldPath := target + oldFileSuffix

	options := goupdate.Options{
		TargetPath:  target,
		TargetMode:  packageFileMode,
		Checksum:    checksum,
		Hash:        crypto.SHA512,
		OldSavePath: oldPath,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("verify package %s: %w", remote.Name, err)
	}

	if _, err = os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	logger.DebugKV(ctx, "Cached package", "path", target)

	return nil
}

// decodeChecksum returns the SHA512 digest of the package.
func decodeChecksum(remote *module.Remote) ([]byte, error) {
	if remote.PackageHash == "" {
		return nil, fmt.Errorf("%s %s: %w", remote.Name, remote.Version.Original(), ErrMissingChecksum)
	}

	if remote.HashAlgorithm != "" && !strings.EqualFold(remote.HashAlgorithm, "SHA512") {
		return nil, fmt.Errorf("%s: %w", remote.HashAlgorithm, ErrUnsupportedHash)
	}

	checksum, err := base64.StdEncoding.DecodeString(remote.PackageHash)
	if err != nil {
		return nil, fmt.Errorf("decode package hash: %w", err)
	}

	return checksum, nil
}

// extractPackage unpacks the archive into a staging directory next to
// destination and swaps it in once every entry was written.
func extractPackage(data []byte, moduleDir, destination string) error {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open package: %w", err)
	}

	if err = os.MkdirAll(moduleDir, directoryMode); err != nil {
		return fmt.Errorf("create module directory: %w", err)
	}

	staging, err := os.MkdirTemp(moduleDir, stagingPattern)
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}

	defer func() {
		_ = os.RemoveAll(staging)
	}()

	for _, file := range archive.File {
		if err = extractEntry(file, staging); err != nil {
			return err
		}
	}

	if err = os.RemoveAll(destination); err != nil {
		return fmt.Errorf("remove previous files: %w", err)
	}

	if err = os.Rename(staging, destination); err != nil {
		return fmt.Errorf("move module into place: %w", err)
	}

	return nil
}

func extractEntry(file *zip.File, staging string) error {
	name, skip, err := entryPath(file.Name)
	if err != nil || skip {
		return err
	}

	target := filepath.Join(staging, filepath.FromSlash(name))

	if file.FileInfo().IsDir() {
		return os.MkdirAll(target, directoryMode)
	}

	if err = os.MkdirAll(filepath.Dir(target), directoryMode); err != nil {
		return err
	}

	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", file.Name, err)
	}

	defer func() {
		_ = reader.Close()
	}()

	output, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, packageFileMode)
	if err != nil {
		return err
	}

	//nolint:gosec // Archive size is bounded by the download limit.
	if _, err = io.Copy(output, reader); err != nil {
		_ = output.Close()
		return fmt.Errorf("extract %s: %w", file.Name, err)
	}

	return output.Close()
}

// entryPath decodes an archive entry name and reports NuGet metadata entries as skipped.
func entryPath(raw string) (string, bool, error) {
	name := strings.ReplaceAll(raw, `\`, "/")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}

	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", false, fmt.Errorf("%s: %w", raw, ErrUnsafePath)
	}

	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false, fmt.Errorf("%s: %w", raw, ErrUnsafePath)
	}

	lower := strings.ToLower(cleaned)

	switch {
	case cleaned == ".", lower == "[content_types].xml":
		return "", true, nil
	case strings.HasPrefix(lower, "_rels/"), strings.HasPrefix(lower, "package/"):
		return "", true, nil
	case !strings.Contains(lower, "/") && strings.HasSuffix(lower, ".nuspec"):
		return "", true, nil
	}

	return cleaned, false, nil
}

func directoryExists(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err == nil {
		return info.IsDir(), nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, err
}
