package storage

import "testing"

func TestBuildDataFilePath(t *testing.T) {
	got, err := BuildDataFilePath("clinic", "patients", 0)
	if err != nil {
		t.Fatalf("BuildDataFilePath() error = %v", err)
	}
	want := "clinic/patients/part-00000.parquet"
	if got != want {
		t.Fatalf("BuildDataFilePath() = %q, want %q", got, want)
	}
}

func TestBuildDataFilePathRejectsBadComponents(t *testing.T) {
	cases := []struct {
		dataset string
		table   string
		part    int
	}{
		{"", "patients", 0},
		{"clinic", "../etc", 0},
		{"clinic", "patients/../visits", 0},
		{"clinic", "patients", -1},
	}
	for _, tc := range cases {
		if _, err := BuildDataFilePath(tc.dataset, tc.table, tc.part); err == nil {
			t.Fatalf("BuildDataFilePath(%q, %q, %d) error = nil, want error", tc.dataset, tc.table, tc.part)
		}
	}
}
