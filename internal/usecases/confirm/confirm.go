// Package confirm implements the interactive confirmation gate for mutating
// cloud-API commands. Classification is a flat case-insensitive prefix match
// of the command name against a fixed verb list; there is no service-side
// read/write metadata involved, and callers depend on exactly this
// heuristic (StartExportTask gates, DescribeExportTasks does not).
package confirm

import (
	"context"
	"strings"

	"github.com/FreePeak/cloudbridge/internal/domain"
)

// mutatingVerbs is the deny-by-default verb list. A command whose name
// begins with any of these (case-insensitive) requires confirmation.
var mutatingVerbs = []string{
	"create", "update", "delete", "put", "send", "publish", "invoke",
	"start", "stop", "terminate", "execute", "run", "upload", "download",
	"copy", "insert", "commit", "rollback", "modify", "attach", "detach",
	"associate", "disassociate", "register", "deregister", "set", "add",
	"remove", "restore", "reboot", "release", "allocate", "deallocate",
	"import", "tag", "untag", "enable", "disable", "authorize", "revoke",
	"grant", "reset", "cancel", "purge", "apply", "write", "deploy",
}

// IsMutating reports whether a command name matches the mutating-verb list.
func IsMutating(command string) bool {
	lower := strings.ToLower(strings.TrimSpace(command))
	if lower == "" {
		return false
	}
	for _, verb := range mutatingVerbs {
		if strings.HasPrefix(lower, verb) {
			return true
		}
	}
	return false
}

// Gate wraps an approver with the mutating-verb classification: read-only
// commands pass without consultation, mutating commands require approval
// and default to declined when no approver is installed.
type Gate struct {
	approver domain.ConfirmationGate
}

// NewGate creates a gate backed by the given approver. A nil approver means
// every mutating command is declined.
func NewGate(approver domain.ConfirmationGate) *Gate {
	return &Gate{approver: approver}
}

// Confirm implements domain.ConfirmationGate.
func (g *Gate) Confirm(ctx context.Context, tool, command string, params map[string]interface{}) (bool, error) {
	if !IsMutating(command) {
		return true, nil
	}
	if g.approver == nil {
		return false, nil
	}
	return g.approver.Confirm(ctx, tool, command, params)
}

// GateFunc adapts a function to the domain.ConfirmationGate interface.
type GateFunc func(ctx context.Context, tool, command string, params map[string]interface{}) (bool, error)

// Confirm calls the wrapped function.
func (f GateFunc) Confirm(ctx context.Context, tool, command string, params map[string]interface{}) (bool, error) {
	return f(ctx, tool, command, params)
}

// ApproveAll returns an approver that accepts every prompt. Intended for
// tests and trusted automation.
func ApproveAll() domain.ConfirmationGate {
	return GateFunc(func(context.Context, string, string, map[string]interface{}) (bool, error) {
		return true, nil
	})
}

// DenyAll returns an approver that declines every prompt.
func DenyAll() domain.ConfirmationGate {
	return GateFunc(func(context.Context, string, string, map[string]interface{}) (bool, error) {
		return false, nil
	})
}
