package synchronizer

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/modsync/internal/config"
	"github.com/oshokin/modsync/internal/domain/module"
	"github.com/oshokin/modsync/internal/prompt"
	"github.com/oshokin/modsync/internal/repository/installed"
)

// newGalleryServer serves a single published version of name.
func newGalleryServer(t *testing.T, name, ver string) *httptest.Server {
	t.Helper()

	var buf bytes.Buffer

	archive := zip.NewWriter(&buf)

	for entry, body := range map[string]string{
		"[Content_Types].xml": "<Types/>",
		name + ".nuspec":      "<package/>",
		name + ".psd1":        "@{ ModuleVersion = '" + ver + "' }",
	} {
		w, err := archive.Create(entry)
		require.NoError(t, err)

		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}

	require.NoError(t, archive.Close())

	data := buf.Bytes()
	sum := sha512.Sum512(data)
	hash := base64.StdEncoding.EncodeToString(sum[:])

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/FindPackagesById()", func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder

		b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
		b.WriteString(`<feed xmlns="http://www.w3.org/2005/Atom"` +
			` xmlns:d="http://schemas.microsoft.com/ado/2007/08/dataservices"` +
			` xmlns:m="http://schemas.microsoft.com/ado/2007/08/dataservices/metadata">`)

		if strings.EqualFold(r.URL.Query().Get("id"), "'"+name+"'") {
			fmt.Fprintf(&b, `<entry><title type="text">%s</title><m:properties>`, name)
			fmt.Fprintf(&b, `<d:Id>%s</d:Id><d:Version>%s</d:Version>`, name, ver)
			fmt.Fprintf(&b, `<d:PackageHash>%s</d:PackageHash>`, hash)
			b.WriteString(`<d:PackageHashAlgorithm>SHA512</d:PackageHashAlgorithm></m:properties></entry>`)
		}

		b.WriteString(`</feed>`)

		_, _ = w.Write([]byte(b.String()))
	})
	mux.HandleFunc("/api/v2/package/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(data)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

// writeTestConfig saves settings pointing at the server and temporary roots.
func writeTestConfig(t *testing.T, serverURL string) (string, *config.Config) {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Repository: config.Repository{URL: serverURL + "/api/v2"},
		ModulesPath: config.ModulesPath{
			CurrentUser: filepath.Join(dir, "user"),
			AllUsers:    filepath.Join(dir, "machine"),
		},
		CacheDir:       filepath.Join(dir, "cache"),
		DefaultModules: []string{"Alpha"},
	}

	path := filepath.Join(dir, config.DefaultConfigFilename)
	require.NoError(t, config.Save(path, cfg))

	return path, cfg
}

// TestRun_InstallThenUpToDate installs from the gallery and finds the module current afterwards.
func TestRun_InstallThenUpToDate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server := newGalleryServer(t, "Alpha", "1.4.0")
	configPath, cfg := writeTestConfig(t, server.URL)

	report, err := Run(ctx, &Options{
		ConfigPath: configPath,
		Settings:   Settings{Install: true, Force: true},
		Confirmer:  prompt.Always(false),
	})
	require.NoError(t, err)
	require.Equal(t, StatusInstalled, report.Results[0].Status)
	require.Equal(t, "1.4.0", report.Results[0].Version)

	destination := filepath.Join(cfg.ModulesPath.CurrentUser, "Alpha", "1.4.0")
	require.FileExists(t, filepath.Join(destination, "Alpha.psd1"))
	require.NoFileExists(t, filepath.Join(destination, "Alpha.nuspec"))
	require.NoFileExists(t, filepath.Join(cfg.CacheDir, MarkerFilename))

	receipt, err := installed.ReadReceipt(destination)
	require.NoError(t, err)
	require.Equal(t, module.ScopeCurrentUser, receipt.Scope)

	report, err = Run(ctx, &Options{
		ConfigPath: configPath,
		Names:      []string{"alpha"},
		Settings:   Settings{Update: true},
		Confirmer:  prompt.Always(false),
	})
	require.NoError(t, err)
	require.Equal(t, StatusUpToDate, report.Results[0].Status)
}

// TestRun_UpdatesPowerShellGetModule upgrades a module that Install-Module put on disk.
func TestRun_UpdatesPowerShellGetModule(t *testing.T) {
	t.Parallel()

	server := newGalleryServer(t, "Alpha", "1.4.0")
	configPath, cfg := writeTestConfig(t, server.URL)

	oldDir := filepath.Join(cfg.ModulesPath.CurrentUser, "Alpha", "1.0.0")
	psGetInfo := `<Objs Version="1.1.0.1" xmlns="http://schemas.microsoft.com/powershell/2004/04"><Obj RefId="0"><MS>` +
		`<S N="Name">Alpha</S><Version N="Version">1.0.0</Version><S N="Repository">PSGallery</S>` +
		`<S N="RepositorySourceLocation">` + cfg.Repository.URL + `</S></MS></Obj></Objs>`

	require.NoError(t, os.MkdirAll(oldDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, installed.PSGetInfoFilename), []byte(psGetInfo), 0o644))

	report, err := Run(context.Background(), &Options{
		ConfigPath: configPath,
		Names:      []string{"Alpha"},
		Settings:   Settings{Update: true, Force: true},
	})
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, report.Results[0].Status)
	require.Equal(t, "1.4.0", report.Results[0].Version)
	require.FileExists(t, filepath.Join(cfg.ModulesPath.CurrentUser, "Alpha", "1.4.0", "Alpha.psd1"))
	require.DirExists(t, oldDir)
}

// TestRun_MissingWithoutInstall fails the run with the not installed reason.
func TestRun_MissingWithoutInstall(t *testing.T) {
	t.Parallel()

	server := newGalleryServer(t, "Alpha", "1.0.0")
	configPath, _ := writeTestConfig(t, server.URL)

	report, err := Run(context.Background(), &Options{
		ConfigPath: configPath,
		Names:      []string{"Alpha", "Beta"},
		Settings:   Settings{DryRun: true},
	})
	require.ErrorIs(t, err, module.ErrNotInstalled)
	require.Len(t, report.Failed(), 2)
}

// TestRun_MissingConfig rejects an explicit path that does not exist.
func TestRun_MissingConfig(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), &Options{
		ConfigPath: filepath.Join(t.TempDir(), "absent.yaml"),
	})
	require.Error(t, err)
}
