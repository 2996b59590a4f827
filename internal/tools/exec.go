package tools

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gzhole/shopbot/internal/guardrail"
	"github.com/gzhole/shopbot/internal/redact"
	"github.com/gzhole/shopbot/internal/sandbox"
)

var (
	readStatement = regexp.MustCompile(`(?i)^\(*\s*(select|with)\b`)
	hasLimit      = regexp.MustCompile(`(?i)\blimit\s+\d+`)
)

func isRead(stmt string) bool {
	return readStatement.MatchString(guardrail.NormalizeSQL(stmt))
}

// withRowLimit appends a LIMIT clause to read statements that lack one.
// Statements with comments are left alone; the runner caps rows anyway.
func withRowLimit(stmt string, limit int) string {
	if !isRead(stmt) || hasLimit.MatchString(stmt) || strings.Contains(stmt, "--") || strings.Contains(stmt, "/*") {
		return stmt
	}
	trimmed := strings.TrimRight(strings.TrimSpace(stmt), "; \t\n")
	return trimmed + " LIMIT " + strconv.Itoa(limit)
}

func (d *Dispatcher) runSQL(ctx context.Context, caller Identity, stmt string) Result {
	if d.backend.Queries == nil {
		return failure(KindInternal, "no database is configured")
	}
	v := d.guard.Evaluate(stmt, guardrail.DomainSQL)
	if !v.Allowed {
		d.record(caller, RunSQLQuery, guardrail.DomainSQL, stmt, v, nil)
		return denial(v)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.SQLTimeout)
	defer cancel()

	var err error
	var res any
	if isRead(stmt) {
		res, err = d.backend.Queries.Query(ctx, withRowLimit(stmt, d.cfg.SQLRowLimit), d.cfg.SQLRowLimit)
	} else {
		res, err = d.backend.Queries.Exec(ctx, stmt)
	}
	d.record(caller, RunSQLQuery, guardrail.DomainSQL, stmt, v, err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return failure(KindUpstream, "the query timed out")
		}
		return failure(KindValidation, "query failed: "+redact.Redact(err.Error()))
	}
	return Result{Data: res}
}

func (d *Dispatcher) runCommand(ctx context.Context, caller Identity, command string) Result {
	if d.backend.Commands == nil {
		return failure(KindInternal, "command execution is not configured")
	}
	v := d.guard.Evaluate(command, guardrail.DomainShell)
	if !v.Allowed {
		d.record(caller, RunCommand, guardrail.DomainShell, command, v, nil)
		return denial(v)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.CommandTimeout)
	defer cancel()

	res, err := d.backend.Commands.Run(ctx, command)
	d.record(caller, RunCommand, guardrail.DomainShell, command, v, err)
	if err != nil {
		if errors.Is(err, sandbox.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return Result{
				Data:  res,
				Kind:  KindUpstream,
				Error: fmt.Sprintf("the command timed out after %s", d.cfg.CommandTimeout),
			}
		}
		d.log.Error("command failed to start", "error", err)
		return failure(KindUpstream, "the command could not be run")
	}
	res.Output = redact.Redact(res.Output)
	return Result{Data: res}
}

func denial(v guardrail.Verdict) Result {
	return Result{Kind: KindDenied, Error: v.Reason, Category: v.Category}
}
