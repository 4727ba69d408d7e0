// Package seeder generates the deterministic demo clinic dataset: four
// related tables written as parquet objects and registered in the catalog.
// The same seed always produces the same bytes, so repeated runs are
// idempotent upserts.
package seeder

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlward/sqlward/internal/catalog"
	"github.com/sqlward/sqlward/internal/storage"
)

type CatalogWriter interface {
	CreateTable(ctx context.Context, table catalog.Table) error
	RegisterDataFile(ctx context.Context, file catalog.DataFile) error
}

type Config struct {
	Dataset  string
	Patients int
	Seed     int64
}

type Seeder struct {
	cfg   Config
	store storage.ObjectStore
	repo  CatalogWriter
}

func New(cfg Config, store storage.ObjectStore, repo CatalogWriter) *Seeder {
	if cfg.Dataset == "" {
		cfg.Dataset = "clinic"
	}
	if cfg.Patients <= 0 {
		cfg.Patients = 200
	}
	return &Seeder{cfg: cfg, store: store, repo: repo}
}

type patientRow struct {
	PatientID  int64  `parquet:"patient_id"`
	Name       string `parquet:"name"`
	Sex        string `parquet:"sex"`
	BirthYear  int32  `parquet:"birth_year"`
	City       string `parquet:"city"`
	NationalID string `parquet:"national_id"`
	Address    string `parquet:"address"`
}

type visitRow struct {
	VisitID    int64  `parquet:"visit_id"`
	PatientID  int64  `parquet:"patient_id"`
	VisitDate  string `parquet:"visit_date"`
	Department string `parquet:"department"`
	Diagnosis  string `parquet:"diagnosis"`
}

type prescriptionRow struct {
	PrescriptionID int64  `parquet:"prescription_id"`
	VisitID        int64  `parquet:"visit_id"`
	Drug           string `parquet:"drug"`
	DoseMg         int32  `parquet:"dose_mg"`
	Days           int32  `parquet:"days"`
}

type labResultRow struct {
	LabID    int64   `parquet:"lab_id"`
	VisitID  int64   `parquet:"visit_id"`
	TestName string  `parquet:"test_name"`
	Value    float64 `parquet:"value"`
	Unit     string  `parquet:"unit"`
	Abnormal bool    `parquet:"abnormal"`
}

// Schema is the catalog definition of the demo dataset. The identifying
// columns are flagged sensitive so the validator keeps them out of results.
func Schema() []catalog.Table {
	return []catalog.Table{
		{
			Name: "patients",
			Columns: []catalog.Column{
				{Name: "patient_id", Type: "BIGINT"},
				{Name: "name", Type: "VARCHAR"},
				{Name: "sex", Type: "VARCHAR"},
				{Name: "birth_year", Type: "INTEGER"},
				{Name: "city", Type: "VARCHAR"},
				{Name: "national_id", Type: "VARCHAR", Sensitive: true},
				{Name: "address", Type: "VARCHAR", Sensitive: true},
			},
			PrimaryKey: []string{"patient_id"},
		},
		{
			Name: "visits",
			Columns: []catalog.Column{
				{Name: "visit_id", Type: "BIGINT"},
				{Name: "patient_id", Type: "BIGINT"},
				{Name: "visit_date", Type: "DATE"},
				{Name: "department", Type: "VARCHAR"},
				{Name: "diagnosis", Type: "VARCHAR"},
			},
			PrimaryKey: []string{"visit_id"},
		},
		{
			Name: "prescriptions",
			Columns: []catalog.Column{
				{Name: "prescription_id", Type: "BIGINT"},
				{Name: "visit_id", Type: "BIGINT"},
				{Name: "drug", Type: "VARCHAR"},
				{Name: "dose_mg", Type: "INTEGER"},
				{Name: "days", Type: "INTEGER"},
			},
			PrimaryKey: []string{"prescription_id"},
		},
		{
			Name: "lab_results",
			Columns: []catalog.Column{
				{Name: "lab_id", Type: "BIGINT"},
				{Name: "visit_id", Type: "BIGINT"},
				{Name: "test_name", Type: "VARCHAR"},
				{Name: "value", Type: "DOUBLE"},
				{Name: "unit", Type: "VARCHAR"},
				{Name: "abnormal", Type: "BOOLEAN"},
			},
			PrimaryKey: []string{"lab_id"},
		},
	}
}

// Seed generates the dataset, uploads each table as one parquet object, and
// registers both schema and files in the catalog.
func (s *Seeder) Seed(ctx context.Context) error {
	rng := rand.New(rand.NewSource(s.cfg.Seed))
	patients := s.generatePatients(rng)
	visits := s.generateVisits(rng, patients)
	prescriptions := generatePrescriptions(rng, visits)
	labResults := generateLabResults(rng, visits)

	for _, table := range Schema() {
		if err := s.repo.CreateTable(ctx, table); err != nil {
			return fmt.Errorf("create table %q: %w", table.Name, err)
		}
	}

	if err := uploadTable(ctx, s, "patients", patients); err != nil {
		return err
	}
	if err := uploadTable(ctx, s, "visits", visits); err != nil {
		return err
	}
	if err := uploadTable(ctx, s, "prescriptions", prescriptions); err != nil {
		return err
	}
	return uploadTable(ctx, s, "lab_results", labResults)
}

// Reset removes the dataset's objects from the store so a fresh seed starts
// clean. Missing objects are not an error.
func (s *Seeder) Reset(ctx context.Context) error {
	for _, table := range Schema() {
		objectPath, err := storage.BuildDataFilePath(s.cfg.Dataset, table.Name, 0)
		if err != nil {
			return err
		}
		if err := s.store.Delete(ctx, objectPath); err != nil {
			return fmt.Errorf("delete %s: %w", objectPath, err)
		}
	}
	return nil
}

func uploadTable[T any](ctx context.Context, s *Seeder, tableName string, rows []T) error {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[T](buf)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("encode %s parquet: %w", tableName, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close %s parquet writer: %w", tableName, err)
	}

	objectPath, err := storage.BuildDataFilePath(s.cfg.Dataset, tableName, 0)
	if err != nil {
		return err
	}
	size := int64(buf.Len())
	if _, err := s.store.Put(ctx, objectPath, buf, size, storage.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		return fmt.Errorf("upload %s: %w", tableName, err)
	}
	info, err := s.store.Stat(ctx, objectPath)
	if err != nil {
		return fmt.Errorf("verify %s upload: %w", tableName, err)
	}
	if info.Size != size {
		return fmt.Errorf("verify %s upload: stored %d bytes, wrote %d", tableName, info.Size, size)
	}
	if err := s.repo.RegisterDataFile(ctx, catalog.DataFile{
		TableName:     tableName,
		ObjectPath:    objectPath,
		FileSizeBytes: size,
	}); err != nil {
		return fmt.Errorf("register %s: %w", tableName, err)
	}
	return nil
}

var (
	givenNames  = []string{"Alice", "Bruno", "Carla", "Davide", "Elena", "Franco", "Giulia", "Hana", "Ivan", "Jana", "Karim", "Lucia", "Marco", "Nadia", "Omar", "Paola"}
	familyNames = []string{"Rossi", "Kovac", "Meier", "Novak", "Bianchi", "Weber", "Horvat", "Keller", "Ferrari", "Gruber"}
	cities      = []string{"Trieste", "Udine", "Gorizia", "Monfalcone", "Pordenone"}
	departments = []string{"cardiology", "oncology", "general medicine", "orthopedics", "neurology"}
	diagnoses   = []string{"hypertension", "type 2 diabetes", "atrial fibrillation", "osteoarthritis", "migraine", "anemia"}
	drugs       = []string{"metformin", "ramipril", "atorvastatin", "warfarin", "ibuprofen", "omeprazole"}
	labTests    = []struct {
		name string
		unit string
		low  float64
		high float64
	}{
		{"hemoglobin", "g/dL", 11.0, 17.5},
		{"glucose", "mg/dL", 70, 180},
		{"creatinine", "mg/dL", 0.5, 1.6},
		{"cholesterol", "mg/dL", 120, 280},
	}
)

func (s *Seeder) generatePatients(rng *rand.Rand) []patientRow {
	patients := make([]patientRow, 0, s.cfg.Patients)
	for i := 0; i < s.cfg.Patients; i++ {
		sex := "F"
		if rng.Intn(2) == 0 {
			sex = "M"
		}
		patients = append(patients, patientRow{
			PatientID:  int64(i + 1),
			Name:       givenNames[rng.Intn(len(givenNames))] + " " + familyNames[rng.Intn(len(familyNames))],
			Sex:        sex,
			BirthYear:  int32(1930 + rng.Intn(80)),
			City:       cities[rng.Intn(len(cities))],
			NationalID: fmt.Sprintf("ID%09d", rng.Intn(1_000_000_000)),
			Address:    fmt.Sprintf("Via %s %d", familyNames[rng.Intn(len(familyNames))], rng.Intn(200)+1),
		})
	}
	return patients
}

func (s *Seeder) generateVisits(rng *rand.Rand, patients []patientRow) []visitRow {
	var visits []visitRow
	visitID := int64(1)
	for _, patient := range patients {
		for i := 0; i < 1+rng.Intn(4); i++ {
			visits = append(visits, visitRow{
				VisitID:    visitID,
				PatientID:  patient.PatientID,
				VisitDate:  fmt.Sprintf("%04d-%02d-%02d", 2023+rng.Intn(3), 1+rng.Intn(12), 1+rng.Intn(28)),
				Department: departments[rng.Intn(len(departments))],
				Diagnosis:  diagnoses[rng.Intn(len(diagnoses))],
			})
			visitID++
		}
	}
	return visits
}

func generatePrescriptions(rng *rand.Rand, visits []visitRow) []prescriptionRow {
	var prescriptions []prescriptionRow
	prescriptionID := int64(1)
	for _, visit := range visits {
		for i := 0; i < rng.Intn(3); i++ {
			prescriptions = append(prescriptions, prescriptionRow{
				PrescriptionID: prescriptionID,
				VisitID:        visit.VisitID,
				Drug:           drugs[rng.Intn(len(drugs))],
				DoseMg:         int32((rng.Intn(8) + 1) * 25),
				Days:           int32(rng.Intn(30) + 1),
			})
			prescriptionID++
		}
	}
	return prescriptions
}

func generateLabResults(rng *rand.Rand, visits []visitRow) []labResultRow {
	var results []labResultRow
	labID := int64(1)
	for _, visit := range visits {
		for i := 0; i < rng.Intn(3); i++ {
			test := labTests[rng.Intn(len(labTests))]
			value := test.low + rng.Float64()*(test.high-test.low)*1.2
			results = append(results, labResultRow{
				LabID:    labID,
				VisitID:  visit.VisitID,
				TestName: test.name,
				Value:    value,
				Unit:     test.unit,
				Abnormal: value > test.high || value < test.low,
			})
			labID++
		}
	}
	return results
}
