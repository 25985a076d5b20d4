package resolver

import (
	"fmt"
	"strings"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
)

// NoSelectableMethodError reports that no install method of a recipe is
// usable on the profiled system. It carries the attempted methods and the
// reason each was rejected so the caller can show a useful diagnostic.
type NoSelectableMethodError struct {
	Tool      string
	Attempted map[recipe.Method]string // method -> rejection reason
}

func (e *NoSelectableMethodError) Error() string {
	var parts []string
	for _, m := range recipe.KnownMethods {
		if reason, ok := e.Attempted[m]; ok {
			parts = append(parts, fmt.Sprintf("%s (%s)", m, reason))
		}
	}
	return fmt.Sprintf("no installable method for %q on this system; attempted: %s",
		e.Tool, strings.Join(parts, ", "))
}

// ChoiceUnresolvedError reports missing or invalid choice answers.
type ChoiceUnresolvedError struct {
	Tool     string
	ChoiceID string
	OptionID string // empty when the answer is missing entirely
	Reason   string
}

func (e *ChoiceUnresolvedError) Error() string {
	if e.OptionID == "" {
		return fmt.Sprintf("choice %q for %q is unanswered", e.ChoiceID, e.Tool)
	}
	return fmt.Sprintf("choice %q for %q: option %q %s", e.ChoiceID, e.Tool, e.OptionID, e.Reason)
}

// UnsupportedFamilyError reports a recipe that declares no packages or
// methods for the profiled distro family.
type UnsupportedFamilyError struct {
	Tool   string
	Family recipe.Family
}

func (e *UnsupportedFamilyError) Error() string {
	return fmt.Sprintf("recipe %q does not support distro family %q", e.Tool, e.Family)
}
