// Package prompt renders the flattened text sent to the completion model:
// schema inventory, query rules, a window of recent exchanges, and, on a
// retry, a corrective paragraph naming what was wrong with the last attempt.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sqlward/sqlward/internal/catalog"
)

// Exchange is one prior question/SQL pair from the caller's session.
type Exchange struct {
	Question string
	SQL      string
}

// Correction describes why the previous attempt failed, so the next
// completion is conditioned on the failure.
type Correction struct {
	Kind   string
	Detail string
}

// Correction kinds raised by the extractor; validator kinds carry the
// validate.ViolationKind values directly.
const (
	CorrectionNoSQLFound   = "no_sql_found"
	CorrectionAmbiguousSQL = "ambiguous_sql"
)

var correctionPhrases = map[string]string{
	CorrectionNoSQLFound:       "Your previous reply contained no SQL statement.",
	CorrectionAmbiguousSQL:     "Your previous reply contained more than one SQL candidate; reply with exactly one statement.",
	"syntax_error":             "Your previous query was not valid SQL.",
	"multiple_statements":      "Your previous reply contained more than one statement; reply with exactly one.",
	"forbidden_statement_type": "Your previous query was not a read-only SELECT.",
	"unknown_table":            "Your previous query referenced a table that does not exist.",
	"unknown_column":           "Your previous query referenced a column that does not exist.",
	"sensitive_column":         "Your previous query touched a restricted column.",
	"disallowed_function":      "Your previous query called a function that is not allowed.",
	"missing_limit_unbounded":  "Your previous query had no row bound and one could not be added.",
}

type Builder struct {
	maxResults    int
	fewShotWindow int
}

func NewBuilder(maxResults, fewShotWindow int) *Builder {
	return &Builder{maxResults: maxResults, fewShotWindow: fewShotWindow}
}

// Build produces the full prompt for one attempt. The output is deterministic
// for identical inputs; history is rendered newest-window-only, oldest first.
func (b *Builder) Build(question string, descriptor *catalog.Descriptor, history []Exchange, correction *Correction) string {
	return b.BuildWithLimit(question, descriptor, history, correction, 0)
}

// BuildWithLimit is Build with a per-request row bound stated in the rules.
// Bounds of zero or above the configured maximum fall back to the configured
// maximum.
func (b *Builder) BuildWithLimit(question string, descriptor *catalog.Descriptor, history []Exchange, correction *Correction, maxResults int) string {
	if maxResults <= 0 || maxResults > b.maxResults {
		maxResults = b.maxResults
	}
	var sb strings.Builder

	sb.WriteString("You answer questions about a medical dataset by writing a single DuckDB SQL query. ")
	sb.WriteString("DuckDB uses PostgreSQL-like SQL syntax. ")
	sb.WriteString("Reply with one SQL statement inside a ```sql fenced block and nothing else.\n\n")

	sb.WriteString("Available tables:\n")
	for _, table := range descriptor.Tables {
		sb.WriteString(renderTable(table))
		sb.WriteString("\n")
	}

	if restricted := restrictedColumns(descriptor); len(restricted) > 0 {
		sb.WriteString("\nRestricted columns, never select or filter on them: ")
		sb.WriteString(strings.Join(restricted, ", "))
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nRules:\n- Use only the listed tables and columns.\n- Exactly one read-only SELECT statement, no data modification.\n- Include a LIMIT of at most %d rows.\n- Write identifiers unquoted and string values in single quotes.\n- Do not read files or call system functions.\n", maxResults)

	if window := b.window(history); len(window) > 0 {
		sb.WriteString("\nEarlier in this session:\n")
		for _, exchange := range window {
			fmt.Fprintf(&sb, "Q: %s\nSQL: %s\n", strings.TrimSpace(exchange.Question), strings.TrimSpace(exchange.SQL))
		}
	}

	if correction != nil {
		sb.WriteString("\n")
		sb.WriteString(renderCorrection(correction))
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nQuestion:\n%s\n", strings.TrimSpace(question))
	return sb.String()
}

func (b *Builder) window(history []Exchange) []Exchange {
	if b.fewShotWindow <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) <= b.fewShotWindow {
		return history
	}
	return history[len(history)-b.fewShotWindow:]
}

func renderTable(table catalog.Table) string {
	columns := make([]string, 0, len(table.Columns))
	for _, column := range table.Columns {
		columns = append(columns, column.Name+" "+column.Type)
	}
	return fmt.Sprintf("- %s(%s)", table.Name, strings.Join(columns, ", "))
}

func restrictedColumns(descriptor *catalog.Descriptor) []string {
	var restricted []string
	for _, table := range descriptor.Tables {
		for _, column := range table.Columns {
			if column.Sensitive {
				restricted = append(restricted, table.Name+"."+column.Name)
			}
		}
	}
	return restricted
}

func renderCorrection(correction *Correction) string {
	phrase, ok := correctionPhrases[correction.Kind]
	if !ok {
		phrase = "Your previous attempt was rejected."
	}
	detail := strings.TrimSpace(correction.Detail)
	if detail == "" {
		return phrase + " Produce a corrected query."
	}
	return fmt.Sprintf("%s %s. Produce a corrected query.", phrase, detail)
}
