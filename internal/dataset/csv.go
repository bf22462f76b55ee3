package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	apierrors "mertoncli/internal/errors"
)

// LoadPricesCSV reads the daily closes of one firm from a stock database CSV
func LoadPricesCSV(path, code string) ([]PriceRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apierrors.NewStorageError("failed to open prices file", err).WithContext("path", path)
	}
	defer f.Close()

	return ReadPrices(f, path, code)
}

// ReadPrices reads the daily closes of one firm from CSV data
func ReadPrices(r io.Reader, source, code string) ([]PriceRow, error) {
	t, err := readCSV(r, source)
	if err != nil {
		return nil, err
	}
	return parsePrices(t, code)
}

// LoadFundamentalsCSV reads the latest balance-sheet row of one firm
func LoadFundamentalsCSV(path, code string) (Fundamentals, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fundamentals{}, apierrors.NewStorageError("failed to open fundamentals file", err).WithContext("path", path)
	}
	defer f.Close()

	return ReadFundamentals(f, path, code)
}

// ReadFundamentals reads the latest balance-sheet row of one firm from CSV data
func ReadFundamentals(r io.Reader, source, code string) (Fundamentals, error) {
	t, err := readCSV(r, source)
	if err != nil {
		return Fundamentals{}, err
	}
	return parseFundamentals(t, code)
}

func readCSV(r io.Reader, source string) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apierrors.NewParsingError(fmt.Sprintf("failed to read CSV %s", source), err).WithContext("source", source)
	}
	return newTable(source, records)
}
