package dataset

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	apierrors "mertoncli/internal/errors"
)

// LoadWorkbook reads both tables of one firm from the prices and
// fundamentals sheets of an xlsx workbook
func LoadWorkbook(path, code string) ([]PriceRow, Fundamentals, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, Fundamentals{}, apierrors.NewStorageError("failed to open workbook", err).WithContext("path", path)
	}
	defer f.Close()

	pricesTable, err := sheetTable(f, path, PricesSheet)
	if err != nil {
		return nil, Fundamentals{}, err
	}
	prices, err := parsePrices(pricesTable, code)
	if err != nil {
		return nil, Fundamentals{}, err
	}

	fundamentalsTable, err := sheetTable(f, path, FundamentalsSheet)
	if err != nil {
		return nil, Fundamentals{}, err
	}
	fundamentals, err := parseFundamentals(fundamentalsTable, code)
	if err != nil {
		return nil, Fundamentals{}, err
	}

	return prices, fundamentals, nil
}

// sheetTable reads a sheet by name, ignoring case
func sheetTable(f *excelize.File, path, sheet string) (*table, error) {
	name := ""
	for _, candidate := range f.GetSheetList() {
		if strings.EqualFold(candidate, sheet) {
			name = candidate
			break
		}
	}
	if name == "" {
		return nil, apierrors.NewParsingError(fmt.Sprintf("sheet %q not found", sheet), nil).
			WithContext("source", path).
			WithContext("sheets", f.GetSheetList())
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, apierrors.NewParsingError(fmt.Sprintf("failed to read sheet %q", name), err).WithContext("source", path)
	}
	return newTable(path+"#"+name, rows)
}
