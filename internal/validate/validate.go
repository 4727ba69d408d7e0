// Package validate decides whether a candidate statement may touch the data.
// It parses the statement into a syntax tree, allow-lists every table and
// column against the catalog, rejects anything that is not a single read-only
// query, and injects a row bound when the statement carries none. Acceptance
// mints a single-use receipt; the executor refuses statements without one.
package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/sqlward/sqlward/internal/catalog"
)

type ViolationKind string

const (
	ViolationSyntaxError            ViolationKind = "syntax_error"
	ViolationMultipleStatements     ViolationKind = "multiple_statements"
	ViolationForbiddenStatementType ViolationKind = "forbidden_statement_type"
	ViolationUnknownTable           ViolationKind = "unknown_table"
	ViolationUnknownColumn          ViolationKind = "unknown_column"
	ViolationSensitiveColumn        ViolationKind = "sensitive_column"
	ViolationDisallowedFunction     ViolationKind = "disallowed_function"
	ViolationMissingLimit           ViolationKind = "missing_limit_unbounded"
)

type Violation struct {
	Kind   ViolationKind
	Detail string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("validate: %s: %s", v.Kind, v.Detail)
}

// Outcome is either an acceptance carrying normalized SQL plus its receipt,
// or a rejection carrying the violation.
type Outcome struct {
	NormalizedSQL        string
	ImplicitLimitApplied bool
	Receipt              *Receipt
	Violation            *Violation
}

func (o Outcome) Accepted() bool {
	return o.Receipt != nil
}

// Functions that reach outside the query result set: file readers, globbing,
// environment and settings introspection. None of them have a place in a
// question-answering query.
var deniedFunctions = map[string]bool{
	"read_csv":        true,
	"read_csv_auto":   true,
	"read_parquet":    true,
	"read_json":       true,
	"read_json_auto":  true,
	"read_ndjson":     true,
	"glob":            true,
	"getenv":          true,
	"current_setting": true,
	"duckdb_settings": true,
	"database_list":   true,
}

type Validator struct {
	descriptor *catalog.Descriptor
	maxResults int
}

func New(descriptor *catalog.Descriptor, maxResults int) *Validator {
	return &Validator{descriptor: descriptor, maxResults: maxResults}
}

// Validate runs the full check sequence over one candidate statement using
// the validator's configured row bound.
func (v *Validator) Validate(sql string) Outcome {
	return v.ValidateWithLimit(sql, 0)
}

// ValidateWithLimit is Validate with a per-request row bound. Bounds of zero
// or above the configured maximum fall back to the configured maximum, so a
// request can tighten the ceiling but never raise it. Checks short-circuit on
// the first failure. The parser boundary fails closed: any panic during
// analysis becomes a syntax rejection, never a crash.
func (v *Validator) ValidateWithLimit(sql string, maxResults int) (outcome Outcome) {
	if maxResults <= 0 || maxResults > v.maxResults {
		maxResults = v.maxResults
	}
	defer func() {
		if r := recover(); r != nil {
			outcome = rejected(ViolationSyntaxError, "statement could not be analyzed")
		}
	}()

	pieces, err := sqlparser.SplitStatementToPieces(sql)
	if err != nil {
		return rejected(ViolationSyntaxError, "statement could not be parsed")
	}
	var statements []string
	for _, piece := range pieces {
		if strings.TrimSpace(piece) != "" {
			statements = append(statements, piece)
		}
	}
	if len(statements) == 0 {
		return rejected(ViolationSyntaxError, "empty statement")
	}
	if len(statements) > 1 {
		return rejected(ViolationMultipleStatements, fmt.Sprintf("%d statements found, exactly one is allowed", len(statements)))
	}
	if hasDoubleQuote(statements[0]) {
		return rejected(ViolationSyntaxError, "double quotes are not supported, write identifiers unquoted and string values in single quotes")
	}

	stmt, err := sqlparser.Parse(statements[0])
	if err != nil {
		return rejected(ViolationSyntaxError, "statement could not be parsed")
	}

	switch stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union:
	default:
		return rejected(ViolationForbiddenStatementType, fmt.Sprintf("%s statements are not allowed, only read-only queries", statementVerb(stmt)))
	}

	refs := collectReferences(stmt)
	if violation := v.checkTables(refs); violation != nil {
		return Outcome{Violation: violation}
	}
	if violation := v.checkColumns(refs); violation != nil {
		return Outcome{Violation: violation}
	}
	if violation := checkFunctions(refs); violation != nil {
		return Outcome{Violation: violation}
	}

	implicit, violation := ensureLimit(stmt, maxResults)
	if violation != nil {
		return Outcome{Violation: violation}
	}

	normalized := normalizeSQL(stmt)
	return Outcome{
		NormalizedSQL:        normalized,
		ImplicitLimitApplied: implicit,
		Receipt:              &Receipt{sql: normalized},
	}
}

func rejected(kind ViolationKind, detail string) Outcome {
	return Outcome{Violation: &Violation{Kind: kind, Detail: detail}}
}

// hasDoubleQuote reports a double quote anywhere outside a single-quoted
// string. The parser's dialect reads "name" as a string literal, not an
// identifier, which would silently change what the query selects; rejecting
// up front turns that into a correctable violation instead.
func hasDoubleQuote(sql string) bool {
	inString := false
	for _, r := range sql {
		switch r {
		case '\'':
			inString = !inString
		case '"':
			if !inString {
				return true
			}
		}
	}
	return false
}

// normalizeSQL renders the statement with LIMIT/OFFSET spelled the way the
// engine expects. The parser's own renderer emits the comma form
// ("limit offset, count"), which DuckDB does not accept.
func normalizeSQL(stmt sqlparser.Statement) string {
	buf := sqlparser.NewTrackedBuffer(func(buf *sqlparser.TrackedBuffer, node sqlparser.SQLNode) {
		if limit, ok := node.(*sqlparser.Limit); ok {
			if limit == nil {
				return
			}
			if limit.Offset != nil {
				buf.Myprintf(" limit %v offset %v", limit.Rowcount, limit.Offset)
				return
			}
		}
		node.Format(buf)
	})
	stmt.Format(buf)
	return buf.String()
}

// references is a flat inventory of everything the statement touches.
// Resolution is deliberately scope-free: every table in any FROM clause,
// including subqueries, lands in one alias map. That is stricter than SQL
// scoping in corner cases, which is the right direction to fail in.
type references struct {
	tables         map[string]string // alias or bare name, lowercased -> table name
	selectAliases  map[string]bool
	columns        []*sqlparser.ColName
	starQualifiers []sqlparser.TableName
	functions      []*sqlparser.FuncExpr
}

func collectReferences(stmt sqlparser.Statement) *references {
	refs := &references{
		tables:        map[string]string{},
		selectAliases: map[string]bool{},
	}
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.AliasedTableExpr:
			if name, ok := n.Expr.(sqlparser.TableName); ok {
				table := name.Name.String()
				refs.tables[strings.ToLower(table)] = table
				if alias := n.As.String(); alias != "" {
					refs.tables[strings.ToLower(alias)] = table
				}
			}
		case *sqlparser.AliasedExpr:
			if alias := n.As.String(); alias != "" {
				refs.selectAliases[strings.ToLower(alias)] = true
			}
		case *sqlparser.StarExpr:
			if n.TableName.Name.String() != "" {
				refs.starQualifiers = append(refs.starQualifiers, n.TableName)
			}
		case *sqlparser.ColName:
			refs.columns = append(refs.columns, n)
		case *sqlparser.FuncExpr:
			refs.functions = append(refs.functions, n)
		}
		return true, nil
	}, stmt)
	return refs
}

func (v *Validator) checkTables(refs *references) *Violation {
	for key, table := range refs.tables {
		// The parser supplies "dual" for table-less selects.
		if key == "dual" {
			continue
		}
		if _, ok := v.descriptor.Table(table); !ok {
			return &Violation{Kind: ViolationUnknownTable, Detail: fmt.Sprintf("table %q does not exist; available tables: %s", table, strings.Join(v.descriptor.TableNames(), ", "))}
		}
	}
	for _, qualifier := range refs.starQualifiers {
		name := qualifier.Name.String()
		if _, ok := refs.tables[strings.ToLower(name)]; !ok {
			return &Violation{Kind: ViolationUnknownTable, Detail: fmt.Sprintf("%q is not a table or alias in the FROM clause", name)}
		}
	}
	return nil
}

func (v *Validator) checkColumns(refs *references) *Violation {
	for _, col := range refs.columns {
		name := col.Name.String()
		qualifier := col.Qualifier.Name.String()

		if qualifier != "" {
			table, ok := refs.tables[strings.ToLower(qualifier)]
			if !ok {
				return &Violation{Kind: ViolationUnknownTable, Detail: fmt.Sprintf("%q is not a table or alias in the FROM clause", qualifier)}
			}
			if table == "" || strings.EqualFold(table, "dual") {
				continue
			}
			descTable, ok := v.descriptor.Table(table)
			if !ok {
				continue // already reported by checkTables
			}
			column, ok := descTable.Column(name)
			if !ok {
				return &Violation{Kind: ViolationUnknownColumn, Detail: fmt.Sprintf("table %q has no column %q", table, name)}
			}
			if column.Sensitive {
				return sensitiveViolation(table, name)
			}
			continue
		}

		if refs.selectAliases[strings.ToLower(name)] {
			continue
		}
		found := false
		for key, table := range refs.tables {
			if key == "dual" {
				continue
			}
			descTable, ok := v.descriptor.Table(table)
			if !ok {
				continue
			}
			column, ok := descTable.Column(name)
			if !ok {
				continue
			}
			if column.Sensitive {
				return sensitiveViolation(table, name)
			}
			found = true
		}
		if !found {
			return &Violation{Kind: ViolationUnknownColumn, Detail: fmt.Sprintf("column %q does not exist in any referenced table", name)}
		}
	}
	return nil
}

func sensitiveViolation(table, column string) *Violation {
	return &Violation{Kind: ViolationSensitiveColumn, Detail: fmt.Sprintf("column %q of table %q holds sensitive data and must not be selected or filtered on", column, table)}
}

func checkFunctions(refs *references) *Violation {
	for _, fn := range refs.functions {
		name := fn.Name.Lowered()
		if deniedFunctions[name] {
			return &Violation{Kind: ViolationDisallowedFunction, Detail: fmt.Sprintf("function %q is not allowed", name)}
		}
	}
	return nil
}

// ensureLimit guarantees the normalized statement carries a row bound no
// larger than maxResults, injecting one when absent and clamping an explicit
// bound that exceeds it.
func ensureLimit(stmt sqlparser.Statement, maxResults int) (bool, *Violation) {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return boundLimit(&s.Limit, maxResults)
	case *sqlparser.Union:
		// The bound goes on the outermost level so it applies to the
		// combined result, not per branch.
		return boundLimit(&s.Limit, maxResults)
	default:
		return false, &Violation{Kind: ViolationMissingLimit, Detail: "a row bound cannot be applied to this statement form"}
	}
}

func boundLimit(limit **sqlparser.Limit, maxResults int) (bool, *Violation) {
	capValue := sqlparser.NewIntVal([]byte(strconv.Itoa(maxResults)))
	if *limit == nil {
		*limit = &sqlparser.Limit{Rowcount: capValue}
		return true, nil
	}
	if value, ok := (*limit).Rowcount.(*sqlparser.SQLVal); ok && value.Type == sqlparser.IntVal {
		requested, err := strconv.Atoi(string(value.Val))
		if err == nil && requested > maxResults {
			(*limit).Rowcount = capValue
			return true, nil
		}
		return false, nil
	}
	// Non-literal row count (placeholder or expression): replace with the cap.
	(*limit).Rowcount = capValue
	return true, nil
}

func statementVerb(stmt sqlparser.Statement) string {
	switch s := stmt.(type) {
	case *sqlparser.Insert:
		return s.Action
	case *sqlparser.Update:
		return "update"
	case *sqlparser.Delete:
		return "delete"
	case *sqlparser.Set:
		return "set"
	case *sqlparser.DDL:
		return s.Action
	case *sqlparser.DBDDL:
		return s.Action
	case *sqlparser.Show:
		return "show"
	case *sqlparser.Use:
		return "use"
	case *sqlparser.Begin, *sqlparser.Commit, *sqlparser.Rollback:
		return "transaction control"
	default:
		return "this kind of"
	}
}
