package texstage

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ManagerStats is a snapshot of a Manager's pool.
type ManagerStats struct {
	// Available is the number of idle surfaces.
	Available int

	// InUse is the number of surfaces handed out by Acquire.
	InUse int

	// AvailableBytes is the staging memory held by idle surfaces; this is
	// what the budget limits.
	AvailableBytes uint64

	// InUseBytes is the staging memory of surfaces in use.
	InUseBytes uint64

	// BudgetBytes is the soft limit on AvailableBytes.
	BudgetBytes uint64

	// Created counts surfaces created over the manager's lifetime.
	Created uint64
}

// Utilization returns the fraction of the budget held by idle surfaces.
func (s ManagerStats) Utilization() float64 {
	if s.BudgetBytes == 0 {
		return 0
	}
	return float64(s.AvailableBytes) / float64(s.BudgetBytes)
}

var statsPrinter = message.NewPrinter(language.English)

// String returns a human-readable summary with grouped digits.
func (s ManagerStats) String() string {
	return statsPrinter.Sprintf("Staging[%d idle %d bytes, %d in use %d bytes, budget %d bytes (%.1f%%), %d created]",
		s.Available, s.AvailableBytes, s.InUse, s.InUseBytes, s.BudgetBytes, s.Utilization()*100, s.Created)
}
