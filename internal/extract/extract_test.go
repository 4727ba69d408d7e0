package extract

import (
	"errors"
	"testing"
)

func TestExtractFencedBlock(t *testing.T) {
	raw := "Here is the query you asked for:\n```sql\nSELECT name FROM patients WHERE active = true;\n```\nLet me know if you need more."

	result, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Strategy != StrategyFencedBlock {
		t.Fatalf("Extract() strategy = %q, want %q", result.Strategy, StrategyFencedBlock)
	}
	if result.SQL != "SELECT name FROM patients WHERE active = true;" {
		t.Fatalf("Extract() sql = %q", result.SQL)
	}
}

func TestExtractGenericFenceWithSelect(t *testing.T) {
	raw := "```\nSELECT count(*) FROM visits\n```"

	result, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Strategy != StrategyFencedBlock {
		t.Fatalf("Extract() strategy = %q, want %q", result.Strategy, StrategyFencedBlock)
	}
	if result.SQL != "SELECT count(*) FROM visits" {
		t.Fatalf("Extract() sql = %q", result.SQL)
	}
}

func TestExtractTwoFencedBlocksIsAmbiguous(t *testing.T) {
	raw := "Either of these works:\n```sql\nSELECT 1;\n```\nor\n```sql\nSELECT 2;\n```"

	_, err := Extract(raw)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Extract() error = %v, want NotFoundError", err)
	}
	if !notFound.Ambiguous {
		t.Fatalf("Extract() ambiguous = false, want true")
	}
}

func TestExtractJSONField(t *testing.T) {
	raw := `{"sql": "SELECT id FROM lab_results LIMIT 10", "explanation": "most recent labs"}`

	result, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Strategy != StrategyJSONField {
		t.Fatalf("Extract() strategy = %q, want %q", result.Strategy, StrategyJSONField)
	}
	if result.SQL != "SELECT id FROM lab_results LIMIT 10" {
		t.Fatalf("Extract() sql = %q", result.SQL)
	}
}

func TestExtractJSONFieldSQLQueryAlias(t *testing.T) {
	raw := `The answer as JSON: {"sql_query": "SELECT drug FROM prescriptions"}`

	result, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Strategy != StrategyJSONField {
		t.Fatalf("Extract() strategy = %q, want %q", result.Strategy, StrategyJSONField)
	}
	if result.SQL != "SELECT drug FROM prescriptions" {
		t.Fatalf("Extract() sql = %q", result.SQL)
	}
}

func TestExtractHeuristicScan(t *testing.T) {
	raw := "You could run SELECT patient_id, visit_date FROM visits WHERE visit_date > '2024-01-01'; that should do it."

	result, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Strategy != StrategyHeuristicScan {
		t.Fatalf("Extract() strategy = %q, want %q", result.Strategy, StrategyHeuristicScan)
	}
	if result.SQL != "SELECT patient_id, visit_date FROM visits WHERE visit_date > '2024-01-01';" {
		t.Fatalf("Extract() sql = %q", result.SQL)
	}
}

func TestExtractNestedSelectIsOneRun(t *testing.T) {
	raw := "SELECT name FROM (SELECT name FROM patients) p"

	result, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.SQL != raw {
		t.Fatalf("Extract() sql = %q, want %q", result.SQL, raw)
	}
}

func TestExtractIsIdempotentOnCleanStatement(t *testing.T) {
	sql := "SELECT name FROM patients LIMIT 5"

	first, err := Extract(sql)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	second, err := Extract(first.SQL)
	if err != nil {
		t.Fatalf("Extract() second pass error = %v", err)
	}
	if second.SQL != first.SQL {
		t.Fatalf("Extract() second pass sql = %q, want %q", second.SQL, first.SQL)
	}
}

func TestExtractNoFragment(t *testing.T) {
	_, err := Extract("I cannot answer that question from the available tables.")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Extract() error = %v, want NotFoundError", err)
	}
	if notFound.Ambiguous {
		t.Fatalf("Extract() ambiguous = true, want false")
	}
}

func TestExtractEmptyResponse(t *testing.T) {
	_, err := Extract("   \n\t")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Extract() error = %v, want NotFoundError", err)
	}
}
