package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lungqct/internal/models"
	"lungqct/pkg/histogram"
	"lungqct/pkg/qct"
	"lungqct/pkg/stats"
)

func sampleResult() *qct.SubjectResult {
	left := qct.RegionResult{
		AccessionNumber: "ACC1",
		Region:          models.Left,
		Summary: stats.Summary{
			VoxelCount: 1500, VolumeCC: 1.5,
			Mean: -812.34567, StdDev: 101.0004,
			Skewness: 0.12345, Kurtosis: -0.5,
			Perc25: -900, Perc50: -850, Perc75: -780, Perc90: -600,
		},
		Wave: 0.83333, WaveTh: 0.6, MeanIll: -250.6341, StdIll: 202.897,
		FitAccepted: true,
	}
	right := left
	right.Region = models.Right
	right.FitAccepted = false
	right.Wave = 0
	right.Ventilation = &histogram.Ventilation{OverInflated: 0.1, NormallyAerated: 0.7, NonAerated: 0.15, Consolidated: 0.05}

	return &qct.SubjectResult{
		SubjectID:       "subj1",
		AccessionNumber: "ACC1",
		Regions:         []qct.RegionResult{left, right},
		Failures: []*qct.RegionError{
			{Subject: "subj1", Region: models.Bilateral, Err: qct.ErrEmptyMask},
		},
	}
}

func readTSV(t *testing.T, data string) [][]string {
	t.Helper()
	r := csv.NewReader(strings.NewReader(data))
	r.Comma = '\t'
	records, err := r.ReadAll()
	require.NoError(t, err)
	return records
}

func TestFormatValue(t *testing.T) {
	cases := map[float64]string{
		1.0:        "1",
		-850:       "-850",
		0.83333:    "0.833",
		-812.34567: "-812.346",
		-0.0001:    "0",
		2.5e-4:     "0",
		0.0005:     "0.001",
	}
	for v, want := range cases {
		assert.Equal(t, want, FormatValue(v), v)
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	tbl, err := NewTable(&buf, true)
	require.NoError(t, err)
	require.NoError(t, tbl.Write(nil, sampleResult()))
	require.NoError(t, tbl.Close())

	want := [][]string{
		{"AccessionNumber", "Region", "volume", "mean", "stddev", "perc25", "perc50", "perc75", "perc90",
			"skewness", "kurtosis", "wave", "waveth", "mean_ill", "std_ill", "fit",
			"over_inflated", "normally_aerated", "non_aerated", "consolidated"},
		{"ACC1", "left", "1.5", "-812.346", "101", "-900", "-850", "-780", "-600",
			"0.123", "-0.5", "0.833", "0.6", "-250.634", "202.897", "accepted",
			"NA", "NA", "NA", "NA"},
		{"ACC1", "right", "1.5", "-812.346", "101", "-900", "-850", "-780", "-600",
			"0.123", "-0.5", "0", "0.6", "-250.634", "202.897", "rejected",
			"0.1", "0.7", "0.15", "0.05"},
	}
	if diff := cmp.Diff(want, readTSV(t, buf.String())); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestTable_WithoutVentilation(t *testing.T) {
	var buf bytes.Buffer
	tbl, err := NewTable(&buf, false)
	require.NoError(t, err)
	require.NoError(t, tbl.Write(nil, sampleResult()))
	require.NoError(t, tbl.Close())

	records := readTSV(t, buf.String())
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Len(t, rec, 2+len(qct.FeatureNames)+1)
	}
}

func TestWide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "clinical_features.csv")
	regions := []models.Region{models.Bilateral, models.Left}
	wide, err := CreateWide(path, regions, false)
	require.NoError(t, err)

	subj := &models.Subject{Study: models.Study{AcquisitionDate: "20200314", PatientAge: "067Y", PatientSex: "F"}}
	require.NoError(t, wide.Write(subj, sampleResult()))
	require.NoError(t, wide.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records := readTSV(t, string(data))
	require.Len(t, records, 2)

	header, row := records[0], records[1]
	require.Len(t, header, 5+2*len(qct.FeatureNames))
	require.Len(t, row, len(header))
	assert.Equal(t, []string{"ACC1", "subj1", "20200314", "067Y", "F"}, row[:5])

	col := map[string]string{}
	for i, name := range header {
		col[name] = row[i]
	}
	assert.Equal(t, "", col["volume_bilat"])
	assert.Equal(t, "1.5", col["volume_left"])
	assert.Equal(t, "0.833", col["wave_left"])
	assert.NotContains(t, col, "volume_right")
}
