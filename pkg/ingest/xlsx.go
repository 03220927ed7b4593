package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// xlsxText prints each sheet under a heading with one line per row. Gaps
// between filled cells are kept as empty columns.
func xlsxText(att Attachment) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(att.Data))
	if err != nil {
		return "", errors.Wrap(err, "not an OOXML archive")
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", errors.Wrapf(err, "sheet %s", sheet)
		}
		fmt.Fprintf(&b, "\n--- %s ---\n", sheet)
		for _, row := range rows {
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
