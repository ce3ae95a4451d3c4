package onair

import (
	"context"

	"github.com/friendsincode/muninn_airlog/internal/lease"
)

// AutomationController toggles the unattended fallback broadcaster. It is
// a thin surface over the coordinator so transitions stay consistent with
// session state.
type AutomationController struct {
	coord  *Coordinator
	leases lease.Store
}

// NewAutomationController creates a controller bound to the coordinator.
func NewAutomationController(coord *Coordinator) *AutomationController {
	return &AutomationController{coord: coord, leases: coord.leases}
}

// Enable switches automation on. Idempotent; the transition is logged only
// when the flag actually changes.
func (a *AutomationController) Enable(ctx context.Context) error {
	return a.coord.enableAutomation(ctx)
}

// Disable switches automation off and, when an automation session is on
// air, ends it and clears the on-air pointers.
func (a *AutomationController) Disable(ctx context.Context) error {
	a.coord.disableAutomation(ctx)
	return nil
}

// IsEnabled reports whether automation is running. An absent flag reads as
// false; unlike the activity lease, absence carries no special meaning
// here.
func (a *AutomationController) IsEnabled(ctx context.Context) (bool, error) {
	flag, err := a.leases.AutomationFlag(ctx)
	if err != nil {
		return false, err
	}
	return flag == lease.FlagTrue, nil
}
