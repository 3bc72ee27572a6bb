package modes

import (
	"cogmux/internal/dispatch"
	"cogmux/internal/mode"
)

// Mode IDs. Render functions and the command layer refer to modes by
// these rather than repeating string literals.
const (
	IDSummarizing   = "summarizing"
	IDExplaining    = "explaining"
	IDReviewing     = "reviewing"
	IDOrganizing    = "organizing"
	IDArchitecting  = "architecting"
	IDPlanning      = "planning"
	IDBrainstorming = "brainstorming"
	IDDocumenting   = "documenting"
	IDRefactoring   = "refactoring"
	IDImplementing  = "implementing"
	IDDebugging     = "debugging"
	IDVim           = "vim"
)

// All returns a fresh instance of every built-in mode. The order here
// is the registration order, which is the final tie-breaker in
// selection, so it is part of the catalog's observable behavior.
func All() []mode.Plugin {
	return []mode.Plugin{
		NewSummarizing(),
		NewExplaining(),
		NewReviewing(),
		NewOrganizing(),
		NewArchitecting(),
		NewPlanning(),
		NewBrainstorming(),
		NewDocumenting(),
		NewRefactoring(),
		NewImplementing(),
		NewDebugging(),
		NewVim(),
	}
}

// Register installs the full catalog into reg. The first error aborts;
// callers treat it as fatal at startup.
func Register(reg *dispatch.Registry) error {
	for _, p := range All() {
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	return nil
}
