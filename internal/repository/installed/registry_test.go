package installed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/modsync/internal/domain/module"
)

func newTestRegistry(t *testing.T) (*FileRegistry, string, string) {
	t.Helper()

	dir := t.TempDir()
	user := filepath.Join(dir, "user")
	machine := filepath.Join(dir, "machine")

	return NewFileRegistry(map[module.Scope]string{
		module.ScopeCurrentUser: user,
		module.ScopeAllUsers:    machine,
	}), user, machine
}

// TestFileRegistry_MissingRoots verifies that absent module roots list nothing.
func TestFileRegistry_MissingRoots(t *testing.T) {
	t.Parallel()

	registry, _, _ := newTestRegistry(t)

	found, err := registry.List(context.Background(), "Pester")
	require.NoError(t, err)
	require.Empty(t, found)
}

// TestFileRegistry_RecordAndList ensures recorded receipts are listed across scopes with their origin.
func TestFileRegistry_RecordAndList(t *testing.T) {
	t.Parallel()

	registry, _, machine := newTestRegistry(t)
	ctx := context.Background()

	path, err := registry.Record(ctx, &Receipt{
		Name:                     "Pester",
		Version:                  "5.5.0",
		Repository:               "PSGallery",
		RepositorySourceLocation: "https://www.powershellgallery.com/api/v2",
		Scope:                    module.ScopeCurrentUser,
		InstalledAt:              time.Now().UTC(),
	})
	require.NoError(t, err)
	require.FileExists(t, path)

	// A hand-copied version without a receipt in the machine root.
	require.NoError(t, os.MkdirAll(filepath.Join(machine, "pester", "3.4.0"), 0o755))
	// Not a version directory.
	require.NoError(t, os.MkdirAll(filepath.Join(machine, "pester", "en-US"), 0o755))

	found, err := registry.List(ctx, "PESTER")
	require.NoError(t, err)
	require.Len(t, found, 2)

	best := module.Highest(found)
	require.Equal(t, "5.5.0", best.Version.String())
	require.Equal(t, "Pester", best.Name)
	require.Equal(t, module.ScopeCurrentUser, best.Scope)
	require.True(t, best.IsTrustedOrigin("www.powershellgallery.com"))

	for _, entry := range found {
		if entry.Scope == module.ScopeAllUsers {
			require.Empty(t, entry.Origin)
			require.Equal(t, "3.4.0", entry.Version.String())
		}
	}
}

// TestFileRegistry_RecordRejectsIncompleteReceipt checks required receipt fields.
func TestFileRegistry_RecordRejectsIncompleteReceipt(t *testing.T) {
	t.Parallel()

	registry, _, _ := newTestRegistry(t)

	_, err := registry.Record(context.Background(), &Receipt{Name: "Pester"})
	require.ErrorIs(t, err, ErrInvalidReceipt)
}

// TestFileRegistry_CorruptReceipt surfaces decode errors instead of guessing an origin.
func TestFileRegistry_CorruptReceipt(t *testing.T) {
	t.Parallel()

	registry, user, _ := newTestRegistry(t)
	dir := filepath.Join(user, "PSReadLine", "2.3.4")

	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ReceiptFilename), []byte("name: [broken"), 0o600))

	_, err := registry.List(context.Background(), "PSReadLine")
	require.Error(t, err)
}

// psGetModuleInfo is a trimmed PSGetModuleInfo.xml as written by Install-Module.
const psGetModuleInfo = `<Objs Version="1.1.0.1" xmlns="http://schemas.microsoft.com/powershell/2004/04">
  <Obj RefId="0">
    <TN RefId="0">
      <T>Microsoft.PowerShell.Commands.PSRepositoryItemInfo</T>
      <T>System.Management.Automation.PSCustomObject</T>
      <T>System.Object</T>
    </TN>
    <MS>
      <S N="Name">Pester</S>
      <Version N="Version">5.5.0</Version>
      <S N="Type">Module</S>
      <S N="Author">Pester Team</S>
      <S N="Repository">PSGallery</S>
      <S N="RepositorySourceLocation">https://www.powershellgallery.com/api/v2</S>
      <S N="InstalledLocation">C:\Program Files\WindowsPowerShell\Modules\Pester\5.5.0</S>
    </MS>
  </Obj>
</Objs>`

// TestFileRegistry_PowerShellGetOrigin reads the origin of modules installed by Install-Module.
func TestFileRegistry_PowerShellGetOrigin(t *testing.T) {
	t.Parallel()

	registry, user, _ := newTestRegistry(t)
	versionDir := filepath.Join(user, "pester", "5.5.0")

	require.NoError(t, os.MkdirAll(versionDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(versionDir, PSGetInfoFilename), []byte(psGetModuleInfo), 0o644))

	found, err := registry.List(context.Background(), "Pester")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "https://www.powershellgallery.com/api/v2", found[0].Origin)
	require.Equal(t, "Pester", found[0].Name)
	require.True(t, found[0].IsTrustedOrigin("www.powershellgallery.com"))

	info, err := ReadPSGetInfo(versionDir)
	require.NoError(t, err)
	require.Equal(t, &PSGetInfo{
		Name:                     "Pester",
		Version:                  "5.5.0",
		Repository:               "PSGallery",
		RepositorySourceLocation: "https://www.powershellgallery.com/api/v2",
	}, info)
}

// TestFileRegistry_ReceiptWinsOverPowerShellGet prefers the modsync receipt when both exist.
func TestFileRegistry_ReceiptWinsOverPowerShellGet(t *testing.T) {
	t.Parallel()

	registry, user, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.Record(ctx, &Receipt{
		Name:                     "Pester",
		Version:                  "5.5.0",
		RepositorySourceLocation: "https://mirror.example/api/v2",
		Scope:                    module.ScopeCurrentUser,
	})
	require.NoError(t, err)

	versionDir := filepath.Join(user, "Pester", "5.5.0")
	require.NoError(t, os.WriteFile(filepath.Join(versionDir, PSGetInfoFilename), []byte(psGetModuleInfo), 0o644))

	found, err := registry.List(ctx, "Pester")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "https://mirror.example/api/v2", found[0].Origin)
}

// TestFileRegistry_CorruptPowerShellGetInfo fails the listing.
func TestFileRegistry_CorruptPowerShellGetInfo(t *testing.T) {
	t.Parallel()

	registry, user, _ := newTestRegistry(t)
	versionDir := filepath.Join(user, "Pester", "5.5.0")

	require.NoError(t, os.MkdirAll(versionDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(versionDir, PSGetInfoFilename), []byte("<Objs><Obj>"), 0o644))

	_, err := registry.List(context.Background(), "Pester")
	require.Error(t, err)
}
