package synchronizer

import (
	"testing"

	"github.com/hashicorp/go-version"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/modsync/internal/domain/module"
)

// TestPlanMissing returns an install action only when installation is enabled.
func TestPlanMissing(t *testing.T) {
	t.Parallel()

	action, err := PlanMissing(&module.Request{Name: "Alpha", Install: true, Scope: module.ScopeAllUsers})
	require.NoError(t, err)
	require.Equal(t, &module.Action{Kind: module.ActionInstall, Name: "Alpha", Scope: module.ScopeAllUsers}, action)

	action, err = PlanMissing(&module.Request{Name: "Alpha"})
	require.Nil(t, action)
	require.ErrorIs(t, err, module.ErrNotInstalled)
}

// TestPlanUpgrade covers newer, equal and older remote versions.
func TestPlanUpgrade(t *testing.T) {
	t.Parallel()

	current := &module.Installed{Name: "Beta", Version: version.Must(version.NewVersion("1.0"))}
	newer := &module.Remote{Name: "Beta", Version: version.Must(version.NewVersion("2.0"))}
	same := &module.Remote{Name: "Beta", Version: version.Must(version.NewVersion("1.0.0"))}

	action, status := PlanUpgrade(&module.Request{Name: "Beta", Update: true}, current, newer)
	require.Empty(t, status)
	require.Equal(t, module.ActionUpdate, action.Kind)
	require.Equal(t, "2.0", action.Version)

	action, status = PlanUpgrade(&module.Request{Name: "Beta"}, current, newer)
	require.Equal(t, StatusUpdateAvailable, status)
	require.False(t, action.Mutates())

	action, status = PlanUpgrade(&module.Request{Name: "Beta", Update: true}, current, same)
	require.Equal(t, StatusUpToDate, status)
	require.False(t, action.Mutates())
}

// TestCheckOrigin accepts the trusted host only.
func TestCheckOrigin(t *testing.T) {
	t.Parallel()

	require.NoError(t, CheckOrigin(&module.Installed{Name: "Beta", Origin: trustedOrigin}, trustedHost))

	err := CheckOrigin(&module.Installed{Name: "Gamma", Origin: "https://evil.example/api"}, trustedHost)
	require.ErrorIs(t, err, module.ErrUnsupportedSource)
	require.Contains(t, err.Error(), "evil.example")
}
