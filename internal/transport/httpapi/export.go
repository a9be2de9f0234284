package httpapi

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"CoinAggregator/internal/domain"
)

var exportHeader = []string{
	"ID", "Title", "Price", "Currency", "Year", "Mint", "Grade",
	"Certification", "Type", "Source", "Availability", "URL",
}

func exportFilename(now time.Time) string {
	return fmt.Sprintf("coins_export_%s.csv", now.Format("2006-01-02"))
}

// writeCSV writes the header and one row per item. With no items nothing is
// written, not even the header.
func writeCSV(w io.Writer, items []domain.CatalogItem) error {
	if len(items) == 0 {
		return nil
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, item := range items {
		year := ""
		if item.Year != nil {
			year = strconv.Itoa(*item.Year)
		}
		record := []string{
			item.ID,
			item.Title,
			strconv.FormatFloat(item.Price, 'f', 2, 64),
			item.Currency,
			year,
			item.Mint,
			item.Grade,
			item.Certification,
			item.Category,
			item.SourceName,
			string(item.Availability),
			item.SourceURL,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
