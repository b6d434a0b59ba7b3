package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"legendary-classifier/internal/features"
)

const legendaryColumn = "legendary"

type csvTable struct {
	header map[string]int
	rows   [][]string
}

func readCSV(r io.Reader) (*csvTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	head, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("file has no header")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	table := &csvTable{header: make(map[string]int, len(head))}
	for i, col := range head {
		table.header[strings.TrimSpace(col)] = i
	}
	for _, name := range features.FeatureNames {
		if _, ok := table.header[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	table.rows, err = reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return table, nil
}

func (t *csvTable) featureValues(line int, row []string) ([]float64, error) {
	values := make([]float64, features.NumFeatures)
	for i, name := range features.FeatureNames {
		raw := strings.TrimSpace(row[t.header[name]])
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid %s %q: %w", line, name, raw, err)
		}
		values[i] = v
	}
	return values, nil
}

// ReadTrainingData parses the similarity dataset. Name columns and the
// legendary flag are optional.
func ReadTrainingData(r io.Reader) ([]SimilarityRecord, error) {
	table, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	records := make([]SimilarityRecord, 0, len(table.rows))
	for i, row := range table.rows {
		line := i + 2
		values, err := table.featureValues(line, row)
		if err != nil {
			return nil, err
		}

		rec := SimilarityRecord{Values: values, Names: make(map[string]string)}
		for _, col := range NameColumns {
			if idx, ok := table.header[col]; ok {
				rec.Names[col] = row[idx]
			}
		}
		if idx, ok := table.header[legendaryColumn]; ok {
			flag, err := parseFlag(row[idx])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", line, err)
			}
			rec.Legendary = flag
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadBackground parses background rows of raw stats.
func ReadBackground(r io.Reader) ([][]float64, error) {
	table, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	rows := make([][]float64, 0, len(table.rows))
	for i, row := range table.rows {
		values, err := table.featureValues(i+2, row)
		if err != nil {
			return nil, err
		}
		rows = append(rows, values)
	}
	return rows, nil
}

// LoadTrainingData reads the similarity dataset from a CSV file.
func LoadTrainingData(path string) ([]SimilarityRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := ReadTrainingData(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse training data %s: %w", path, err)
	}
	return records, nil
}

// LoadBackground reads background rows from a CSV file.
func LoadBackground(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := ReadBackground(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse background data %s: %w", path, err)
	}
	return rows, nil
}

func parseFlag(raw string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "0", "0.0", "false":
		return 0, nil
	case "1", "1.0", "true":
		return 1, nil
	}
	return 0, fmt.Errorf("invalid legendary flag %q", raw)
}
