package datasets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/synaptica-ai/riskscore/pkg/common/logger"
	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/ml/sampling"
)

var (
	ErrNotFound          = errors.New("dataset not found")
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrEmpty             = errors.New("dataset has no rows")
)

// Dataset is an externally sourced set of labelled examples.
type Dataset struct {
	Examples   []models.TrainingExample
	SourceRows int
	Provenance *models.DatasetProvenance
}

func (d Dataset) Positives() int {
	n := 0
	for _, ex := range d.Examples {
		n += ex.Label
	}
	return n
}

type LoadOptions struct {
	// MaxRows caps the number of encounters; zero or less keeps all of them.
	MaxRows int
	Seed    int64
}

// Load reads a UCI-layout .csv or .xlsx file and maps each encounter onto
// the feature schema. When the file has more than MaxRows encounters a
// seeded sample of MaxRows is kept.
func Load(path string, opts LoadOptions) (Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Dataset{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Dataset{}, err
	}

	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCSV(path)
	case ".xlsx":
		records, err = readXLSX(path)
	default:
		return Dataset{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return Dataset{}, err
	}
	if len(records) < 2 {
		return Dataset{}, ErrEmpty
	}

	header := records[0]
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return Dataset{}, fmt.Errorf("dataset %s missing columns: %s", filepath.Base(path), strings.Join(missing, ", "))
	}

	body := records[1:]
	keep := sampling.Sample(len(body), len(body), opts.Seed)
	if opts.MaxRows > 0 && len(body) > opts.MaxRows {
		keep = sampling.Sample(len(body), opts.MaxRows, opts.Seed)
	}

	ds := Dataset{SourceRows: len(body), Provenance: UCIProvenance()}
	ds.Examples = make([]models.TrainingExample, 0, len(keep))
	row := make(map[string]string, len(RequiredColumns))
	for _, i := range keep {
		for _, col := range RequiredColumns {
			row[col] = cell(body[i], index[col])
		}
		ds.Examples = append(ds.Examples, MapEncounter(row))
	}

	logger.Get().WithFields(map[string]interface{}{
		"path":        path,
		"source_rows": ds.SourceRows,
		"rows":        len(ds.Examples),
		"positives":   ds.Positives(),
	}).Info("Loaded external dataset")
	return ds, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = false
	var out [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		out = append(out, rec)
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, ErrEmpty
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	return rows, nil
}

func cell(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}
