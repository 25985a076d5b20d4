// Package errmsg provides enhanced error message formatting with actionable suggestions.
package errmsg

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/failure"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/resolver"
)

// ErrorContext provides additional context for error formatting
type ErrorContext struct {
	ToolName string // The tool being operated on (for suggestions)
}

// Format returns a formatted error message with possible causes and suggestions.
// The context parameter is optional - pass nil for generic formatting.
func Format(err error, ctx *ErrorContext) string {
	if err == nil {
		return ""
	}

	errMsg := err.Error()

	// Structured resolver errors first
	var noMethod *resolver.NoSelectableMethodError
	if errors.As(err, &noMethod) {
		return formatNoMethodError(noMethod)
	}

	var choiceErr *resolver.ChoiceUnresolvedError
	if errors.As(err, &choiceErr) {
		return formatChoiceError(choiceErr)
	}

	if errors.Is(err, recipe.ErrToolNotFound) {
		return formatNotFoundError(errMsg, ctx)
	}

	// Check for network errors
	var netErr net.Error
	if errors.As(err, &netErr) {
		return formatNetworkError(netErr)
	}

	// Check for connection-related errors by message
	if isNetworkError(errMsg) {
		return formatGenericNetworkError(errMsg)
	}

	// Check for permission errors
	if isPermissionError(errMsg) {
		return formatPermissionError(errMsg)
	}

	// Return original error for unrecognized types
	return errMsg
}

func formatNoMethodError(err *resolver.NoSelectableMethodError) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("no installable method for %q on this system\n", err.Tool))

	if len(err.Attempted) > 0 {
		sb.WriteString("\nAttempted methods:\n")
		for _, m := range recipe.KnownMethods {
			if reason, ok := err.Attempted[m]; ok {
				sb.WriteString(fmt.Sprintf("  - %s: %s\n", m, reason))
			}
		}
	}

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Install one of the missing package managers listed above\n")
	sb.WriteString(fmt.Sprintf("  - Run 'provision plan %s' on a supported distro to inspect the recipe\n", err.Tool))

	return sb.String()
}

func formatChoiceError(err *resolver.ChoiceUnresolvedError) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString(fmt.Sprintf("  - Run 'provision choices %s' to see the options and their availability\n", err.Tool))
	sb.WriteString("  - Answer with '--answers <file>' or interactively without the flag\n")

	return sb.String()
}

func formatNotFoundError(errMsg string, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - The tool has no recipe in the registry\n")
	sb.WriteString("  - Typo in the tool name\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check the spelling of the tool name\n")
	sb.WriteString("  - Run 'provision list' to see available recipes\n")
	if ctx != nil && ctx.ToolName != "" {
		sb.WriteString(fmt.Sprintf("  - Drop a %s.toml recipe into $PROVISION_HOME/recipes\n", ctx.ToolName))
	}

	return sb.String()
}

func formatNetworkError(err net.Error) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	if err.Timeout() {
		sb.WriteString("  - Request timed out\n")
		sb.WriteString("  - Slow or unstable network connection\n")
	} else {
		sb.WriteString("  - Network connectivity issue\n")
		sb.WriteString("  - DNS resolution failure\n")
	}
	sb.WriteString("  - Firewall or proxy blocking the connection\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")
	if err.Timeout() {
		sb.WriteString("  - Check if you're behind a slow proxy\n")
	}

	return sb.String()
}

func formatGenericNetworkError(errMsg string) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Network connectivity issue\n")
	sb.WriteString("  - DNS resolution failure\n")
	sb.WriteString("  - Service temporarily unavailable\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")

	return sb.String()
}

func formatPermissionError(errMsg string) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Insufficient permissions on the $PROVISION_HOME directory\n")
	sb.WriteString("  - File or directory owned by a different user\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check permissions: ls -la ~/.provision\n")
	sb.WriteString("  - Ensure you own the state directories\n")

	return sb.String()
}

// tailLines is how many lines of step output a failure report shows.
const tailLines = 20

// FormatReport renders a failure diagnosis: what failed, the tail of its
// output, and the ranked remediation options with availability markers.
func FormatReport(report *failure.Report, step *plan.Step, res *plan.StepResult) string {
	var sb strings.Builder

	if step != nil {
		sb.WriteString(fmt.Sprintf("Step failed: %s\n", step.Label))
	}
	sb.WriteString(fmt.Sprintf("Diagnosis: %s\n", report.Label))
	if report.Description != "" {
		sb.WriteString(fmt.Sprintf("  %s\n", report.Description))
	}

	if res != nil && len(res.StderrTail) > 0 {
		sb.WriteString("\nLast output:\n")
		tail := res.StderrTail
		if len(tail) > tailLines {
			tail = tail[len(tail)-tailLines:]
		}
		for _, line := range tail {
			sb.WriteString("  ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	if len(report.Options) > 0 {
		sb.WriteString("\nOptions:\n")
		for i, opt := range report.Options {
			sb.WriteString(fmt.Sprintf("  %d. %s%s\n", i+1, opt.Label, optionMarker(&opt)))
			if opt.Availability == resolver.Locked && opt.Hint != "" {
				sb.WriteString(fmt.Sprintf("     unlock: %s\n", opt.Hint))
			}
		}
	}

	return sb.String()
}

func optionMarker(opt *failure.RankedOption) string {
	switch opt.Availability {
	case resolver.Ready:
		if opt.Recommended {
			return " (recommended)"
		}
		return ""
	case resolver.Locked:
		return fmt.Sprintf(" [locked: %s]", opt.Reason)
	case resolver.Impossible:
		return fmt.Sprintf(" [unavailable: %s]", opt.Reason)
	}
	return ""
}

// isNetworkError checks if the error message indicates a network issue
func isNetworkError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network is unreachable") ||
		strings.Contains(lower, "dial tcp") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "i/o timeout")
}

// isPermissionError checks if the error message indicates a permission issue
func isPermissionError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "operation not permitted")
}
