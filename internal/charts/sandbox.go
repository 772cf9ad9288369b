package charts

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"kasku/internal/core"
)

// The raw-query surface lets power users submit their own SELECT
// templates. Structural text cannot be parameter-bound, so safety
// rests on two compensating controls: an allow-list grammar checked
// before anything touches the store, and placeholder substitution that
// only ever injects engine-computed literals, bound parameters, or
// privilege-aware table rewrites.

var (
	errMultipleStatements = errors.New("multiple SQL statements are not allowed")
	errNotSelect          = errors.New("only SELECT statements are allowed")
	errComments           = errors.New("SQL comments are not allowed")
	errFileAccess         = errors.New("file access constructs are not allowed")
	errNoKnownTable       = errors.New("query must reference at least one of {{active}}, {{savings}}, {{reminders}}")
)

var (
	selectRe   = regexp.MustCompile(`(?i)^\s*select\b`)
	mutatingRe = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|replace|grant|revoke)\b`)
	fileRe     = regexp.MustCompile(`(?i)\b(into\s+outfile|into\s+dumpfile|load_file)\b`)
	tableRe    = regexp.MustCompile(`\{\{(active|savings|reminders)\}\}`)

	placeholderRe = regexp.MustCompile(`\{\{(active|savings|reminders|from_dt|to_excl_dt|to_excl|to_dt|from|to|date_col|user_id)\}\}`)
)

// validateRawTemplate checks a caller-supplied template against the
// sandbox grammar. The first failing rule short-circuits with a
// caller-facing diagnostic.
func validateRawTemplate(tpl string) error {
	q := strings.TrimSpace(tpl)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))

	if strings.Contains(q, ";") {
		return errMultipleStatements
	}
	if !selectRe.MatchString(q) {
		return errNotSelect
	}
	if m := mutatingRe.FindString(q); m != "" {
		return fmt.Errorf("forbidden keyword %q is not allowed", strings.ToUpper(m))
	}
	for _, seq := range []string{"--", "/*", "*/", "#"} {
		if strings.Contains(q, seq) {
			return errComments
		}
	}
	if fileRe.MatchString(q) {
		return errFileAccess
	}
	if !tableRe.MatchString(q) {
		return errNoKnownTable
	}
	return nil
}

// ValidateRawTemplate reports whether a template passes the sandbox
// grammar. Exposed so specs can be rejected at save time instead of
// first failing when a dashboard requests their data.
func ValidateRawTemplate(tpl string) error {
	return validateRawTemplate(tpl)
}

// substituteRawTemplate resolves the logical placeholders of a
// validated template. Date placeholders become engine-computed quoted
// literals (no caller input reaches them), the user-id placeholder
// becomes a bound parameter, and table placeholders are rewritten
// through scopedTableRef. Args follow placeholder order.
func substituteRawTemplate(tpl string, caller core.Caller, win core.Window, basis core.DateBasis) Query {
	q := strings.TrimSpace(tpl)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))

	var args []any
	sql := placeholderRe.ReplaceAllStringFunc(q, func(match string) string {
		name := match[2 : len(match)-2]
		switch name {
		case "active", "savings", "reminders":
			ref, refArgs := scopedTableRef(name, caller)
			args = append(args, refArgs...)
			return ref
		case "user_id":
			args = append(args, caller.UserID)
			return "?"
		case "from":
			return "'" + win.FromDate() + "'"
		case "to":
			return "'" + win.ToDate() + "'"
		case "to_excl":
			return "'" + win.ToExclDate() + "'"
		case "from_dt":
			return "'" + win.FromDateTime() + "'"
		case "to_dt":
			return "'" + win.ToDateTime() + "'"
		case "to_excl_dt":
			return "'" + win.ToExclDateTime() + "'"
		case "date_col":
			return dateColumn(basis)
		}
		return match
	})

	return Query{SQL: sql, Args: args}
}

// scopedTableRef is the sole row-level-security enforcement point of
// the raw surface. Privileged callers get the bare table; everyone
// else gets a derived table pre-filtered to their own rows, with the
// user id bound as a parameter. Callers cannot opt out.
func scopedTableRef(logical string, caller core.Caller) (string, []any) {
	physical := logicalTables[logical]
	if caller.Privileged {
		return physical, nil
	}
	return "(SELECT * FROM " + physical + " WHERE " + colUserID + " = ?) AS " + logical,
		[]any{caller.UserID}
}
