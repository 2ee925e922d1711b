package synchronizer

import (
	"fmt"

	"github.com/oshokin/modsync/internal/domain/module"
)

// PlanMissing decides what to do with a module that has no installed version.
func PlanMissing(req *module.Request) (*module.Action, error) {
	if !req.Install {
		return nil, module.NewError(module.ReasonNotInstalled, req.Name,
			"module is not installed and installation is disabled", nil)
	}

	return &module.Action{
		Kind:  module.ActionInstall,
		Name:  req.Name,
		Scope: req.Scope,
	}, nil
}

// CheckOrigin rejects modules that were not installed from the trusted host.
func CheckOrigin(current *module.Installed, trustedHost string) error {
	if current.IsTrustedOrigin(trustedHost) {
		return nil
	}

	origin := current.Origin
	if origin == "" {
		origin = "an unknown source"
	}

	return module.NewError(module.ReasonUnsupportedSource, current.Name,
		fmt.Sprintf("installed from %s, only %s is supported", origin, trustedHost), nil)
}

// PlanUpgrade compares the installed and latest versions.
// The returned status is empty when the action mutates.
func PlanUpgrade(req *module.Request, current *module.Installed, latest *module.Remote) (*module.Action, Status) {
	if !module.IsNewer(current.Version, latest.Version) {
		return &module.Action{
			Kind:   module.ActionNone,
			Name:   req.Name,
			Notice: fmt.Sprintf("version %s is up to date", current.Version.Original()),
		}, StatusUpToDate
	}

	if !req.Update {
		notice := fmt.Sprintf("update available: %s -> %s", current.Version.Original(), latest.Version.Original())

		return &module.Action{
			Kind:    module.ActionNone,
			Name:    req.Name,
			Version: latest.Version.Original(),
			Notice:  notice,
		}, StatusUpdateAvailable
	}

	return &module.Action{
		Kind:    module.ActionUpdate,
		Name:    req.Name,
		Version: latest.Version.Original(),
		Scope:   req.Scope,
	}, ""
}
