package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/sqlward/sqlward/internal/catalog"
)

func testDescriptor() *catalog.Descriptor {
	return &catalog.Descriptor{Tables: []catalog.Table{
		{
			Name: "patients",
			Columns: []catalog.Column{
				{Name: "patient_id", Type: "BIGINT"},
				{Name: "name", Type: "VARCHAR"},
				{Name: "birth_year", Type: "INTEGER"},
				{Name: "national_id", Type: "VARCHAR", Sensitive: true},
			},
			PrimaryKey: []string{"patient_id"},
		},
		{
			Name: "visits",
			Columns: []catalog.Column{
				{Name: "visit_id", Type: "BIGINT"},
				{Name: "patient_id", Type: "BIGINT"},
				{Name: "visit_date", Type: "DATE"},
			},
			PrimaryKey: []string{"visit_id"},
		},
	}}
}

func TestValidateAcceptsAndInjectsLimit(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.Validate("SELECT name FROM patients")
	if !outcome.Accepted() {
		t.Fatalf("Validate() rejected: %v", outcome.Violation)
	}
	if !outcome.ImplicitLimitApplied {
		t.Fatalf("Validate() implicit limit not applied")
	}
	if !strings.Contains(outcome.NormalizedSQL, "limit 1000") {
		t.Fatalf("Validate() normalized = %q, want injected limit 1000", outcome.NormalizedSQL)
	}
	if outcome.Receipt == nil {
		t.Fatalf("Validate() accepted without a receipt")
	}
}

func TestValidateKeepsExplicitLimit(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.Validate("SELECT name FROM patients LIMIT 5")
	if !outcome.Accepted() {
		t.Fatalf("Validate() rejected: %v", outcome.Violation)
	}
	if outcome.ImplicitLimitApplied {
		t.Fatalf("Validate() implicit limit applied over an explicit bound")
	}
	if !strings.Contains(outcome.NormalizedSQL, "limit 5") {
		t.Fatalf("Validate() normalized = %q, want limit 5", outcome.NormalizedSQL)
	}
}

func TestValidateClampsOversizedLimit(t *testing.T) {
	validator := New(testDescriptor(), 100)

	outcome := validator.Validate("SELECT name FROM patients LIMIT 999999")
	if !outcome.Accepted() {
		t.Fatalf("Validate() rejected: %v", outcome.Violation)
	}
	if !strings.Contains(outcome.NormalizedSQL, "limit 100") {
		t.Fatalf("Validate() normalized = %q, want clamped limit 100", outcome.NormalizedSQL)
	}
}

func TestValidateRendersOffsetInEngineDialect(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.Validate("SELECT patient_id FROM patients LIMIT 10 OFFSET 3")
	if !outcome.Accepted() {
		t.Fatalf("Validate() rejected: %v", outcome.Violation)
	}
	if got, want := outcome.NormalizedSQL, "select patient_id from patients limit 10 offset 3"; got != want {
		t.Fatalf("Validate() normalized = %q, want %q", got, want)
	}
}

func TestValidateClampsOversizedLimitKeepingOffset(t *testing.T) {
	validator := New(testDescriptor(), 100)

	outcome := validator.Validate("SELECT patient_id FROM patients LIMIT 999999 OFFSET 5")
	if !outcome.Accepted() {
		t.Fatalf("Validate() rejected: %v", outcome.Violation)
	}
	if !strings.HasSuffix(outcome.NormalizedSQL, "limit 100 offset 5") {
		t.Fatalf("Validate() normalized = %q, want clamped limit with offset kept", outcome.NormalizedSQL)
	}
}

func TestValidateRejectsDoubleQuotedIdentifiers(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.Validate(`SELECT "name" FROM patients`)
	if outcome.Accepted() {
		t.Fatalf("Validate() accepted %q, normalized %q", `SELECT "name" FROM patients`, outcome.NormalizedSQL)
	}
	if outcome.Violation.Kind != ViolationSyntaxError {
		t.Fatalf("Validate() violation = %q, want %q", outcome.Violation.Kind, ViolationSyntaxError)
	}
	if !strings.Contains(outcome.Violation.Detail, "double quotes") {
		t.Fatalf("Validate() detail = %q", outcome.Violation.Detail)
	}
}

func TestValidateAllowsDoubleQuoteInsideStringLiteral(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.Validate(`SELECT name FROM patients WHERE name = 'the "quoted" one' LIMIT 5`)
	if !outcome.Accepted() {
		t.Fatalf("Validate() rejected: %v", outcome.Violation)
	}
}

func TestValidateWithLimitTightensBound(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.ValidateWithLimit("SELECT name FROM patients LIMIT 50", 10)
	if !outcome.Accepted() {
		t.Fatalf("ValidateWithLimit() rejected: %v", outcome.Violation)
	}
	if !strings.Contains(outcome.NormalizedSQL, "limit 10") {
		t.Fatalf("ValidateWithLimit() normalized = %q, want clamped limit 10", outcome.NormalizedSQL)
	}
}

func TestValidateWithLimitNeverRaisesBound(t *testing.T) {
	validator := New(testDescriptor(), 100)

	outcome := validator.ValidateWithLimit("SELECT name FROM patients", 5000)
	if !outcome.Accepted() {
		t.Fatalf("ValidateWithLimit() rejected: %v", outcome.Violation)
	}
	if !strings.Contains(outcome.NormalizedSQL, "limit 100") {
		t.Fatalf("ValidateWithLimit() normalized = %q, want configured limit 100", outcome.NormalizedSQL)
	}
}

func TestValidateInjectsUnionLimitAtOuterLevel(t *testing.T) {
	validator := New(testDescriptor(), 50)

	outcome := validator.Validate("SELECT name FROM patients UNION SELECT name FROM patients")
	if !outcome.Accepted() {
		t.Fatalf("Validate() rejected: %v", outcome.Violation)
	}
	if !strings.HasSuffix(strings.TrimSpace(outcome.NormalizedSQL), "limit 50") {
		t.Fatalf("Validate() normalized = %q, want trailing limit 50", outcome.NormalizedSQL)
	}
}

func TestValidateRejectsWriteStatements(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	for _, sql := range []string{
		"UPDATE patients SET name = 'x'",
		"DELETE FROM patients",
		"INSERT INTO patients (name) VALUES ('x')",
		"DROP TABLE patients",
	} {
		outcome := validator.Validate(sql)
		if outcome.Accepted() {
			t.Fatalf("Validate(%q) accepted, want forbidden statement type", sql)
		}
		if outcome.Violation.Kind != ViolationForbiddenStatementType {
			t.Fatalf("Validate(%q) violation = %q, want %q", sql, outcome.Violation.Kind, ViolationForbiddenStatementType)
		}
	}
}

func TestValidateRejectsMultipleStatements(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.Validate("SELECT name FROM patients; SELECT visit_id FROM visits")
	if outcome.Accepted() {
		t.Fatalf("Validate() accepted two statements")
	}
	if outcome.Violation.Kind != ViolationMultipleStatements {
		t.Fatalf("Validate() violation = %q, want %q", outcome.Violation.Kind, ViolationMultipleStatements)
	}
}

func TestValidateRejectsUnparsableInput(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.Validate("SELECT FROM WHERE !!")
	if outcome.Accepted() {
		t.Fatalf("Validate() accepted unparsable input")
	}
	if outcome.Violation.Kind != ViolationSyntaxError {
		t.Fatalf("Validate() violation = %q, want %q", outcome.Violation.Kind, ViolationSyntaxError)
	}
}

func TestValidateRejectsUnknownTable(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.Validate("SELECT name FROM doctors")
	if outcome.Accepted() {
		t.Fatalf("Validate() accepted unknown table")
	}
	if outcome.Violation.Kind != ViolationUnknownTable {
		t.Fatalf("Validate() violation = %q, want %q", outcome.Violation.Kind, ViolationUnknownTable)
	}
	if !strings.Contains(outcome.Violation.Detail, "patients") {
		t.Fatalf("Validate() detail = %q, want available table names", outcome.Violation.Detail)
	}
}

func TestValidateRejectsUnknownColumn(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.Validate("SELECT salary FROM patients")
	if outcome.Accepted() {
		t.Fatalf("Validate() accepted unknown column")
	}
	if outcome.Violation.Kind != ViolationUnknownColumn {
		t.Fatalf("Validate() violation = %q, want %q", outcome.Violation.Kind, ViolationUnknownColumn)
	}
}

func TestValidateResolvesAliasQualifiedColumns(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.Validate("SELECT p.name, v.visit_date FROM patients p JOIN visits v ON p.patient_id = v.patient_id LIMIT 10")
	if !outcome.Accepted() {
		t.Fatalf("Validate() rejected: %v", outcome.Violation)
	}
}

func TestValidateAcceptsSelectExpressionAlias(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.Validate("SELECT birth_year AS cohort FROM patients GROUP BY cohort ORDER BY cohort LIMIT 20")
	if !outcome.Accepted() {
		t.Fatalf("Validate() rejected: %v", outcome.Violation)
	}
}

func TestValidateRejectsSensitiveColumn(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	for _, sql := range []string{
		"SELECT national_id FROM patients",
		"SELECT name FROM patients WHERE national_id = '123'",
		"SELECT p.national_id FROM patients p",
	} {
		outcome := validator.Validate(sql)
		if outcome.Accepted() {
			t.Fatalf("Validate(%q) accepted sensitive column", sql)
		}
		if outcome.Violation.Kind != ViolationSensitiveColumn {
			t.Fatalf("Validate(%q) violation = %q, want %q", sql, outcome.Violation.Kind, ViolationSensitiveColumn)
		}
	}
}

func TestValidateRejectsDisallowedFunction(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.Validate("SELECT * FROM patients WHERE name = getenv('HOME')")
	if outcome.Accepted() {
		t.Fatalf("Validate() accepted disallowed function")
	}
	if outcome.Violation.Kind != ViolationDisallowedFunction {
		t.Fatalf("Validate() violation = %q, want %q", outcome.Violation.Kind, ViolationDisallowedFunction)
	}
}

func TestValidateAcceptsAggregates(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.Validate("SELECT count(*) FROM visits")
	if !outcome.Accepted() {
		t.Fatalf("Validate() rejected: %v", outcome.Violation)
	}
}

func TestReceiptRedeemsExactlyOnce(t *testing.T) {
	validator := New(testDescriptor(), 1000)

	outcome := validator.Validate("SELECT name FROM patients LIMIT 3")
	if !outcome.Accepted() {
		t.Fatalf("Validate() rejected: %v", outcome.Violation)
	}

	if err := outcome.Receipt.Redeem("SELECT name FROM patients"); !errors.Is(err, ErrReceiptMismatch) {
		t.Fatalf("Redeem(other sql) error = %v, want %v", err, ErrReceiptMismatch)
	}
	if err := outcome.Receipt.Redeem(outcome.NormalizedSQL); err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}
	if err := outcome.Receipt.Redeem(outcome.NormalizedSQL); !errors.Is(err, ErrReceiptSpent) {
		t.Fatalf("Redeem() second call error = %v, want %v", err, ErrReceiptSpent)
	}
}
