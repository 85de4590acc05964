package pdf

import (
	"bytes"
	"fmt"
	"os"

	gofpdf "github.com/lvillar/gofpdf"
	"github.com/lvillar/gofpdf/contrib/gofpdi"
	"github.com/lvillar/gofpdf/reader"
)

// PageCount parses a PDF and reports its page count.
func PageCount(pdfBytes []byte) (int, error) {
	doc, err := reader.ReadFrom(bytes.NewReader(pdfBytes))
	if err != nil {
		return 0, fmt.Errorf("pdf: parsing existing document: %w", err)
	}
	return doc.NumPages(), nil
}

// importExisting imports every page of an existing PDF into the target
// document as full-page templates. The gofpdi importer works from files, so
// the bytes are staged in a temp file for the duration of the import.
func importExisting(pdf *gofpdf.Fpdf, existing []byte) (int, error) {
	pageCount, err := PageCount(existing)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp("", "fablepress-append-*.pdf")
	if err != nil {
		return 0, fmt.Errorf("pdf: staging existing document: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(existing); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("pdf: staging existing document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("pdf: staging existing document: %w", err)
	}

	imp := gofpdi.NewImporter()
	for i := 1; i <= pageCount; i++ {
		tplID := imp.ImportPage(pdf, tmp.Name(), i, "/MediaBox")

		w, h := 0.0, 0.0
		if dims, ok := imp.GetPageSizes()[i]; ok {
			if mb, ok := dims["/MediaBox"]; ok {
				w = mb["w"]
				h = mb["h"]
			}
		}
		if w == 0 || h == 0 {
			w = 595.28 // A4 default
			h = 841.89
		}

		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})
		imp.UseImportedTemplate(pdf, tplID, 0, 0, w, h)
	}

	if pdf.Err() {
		return 0, fmt.Errorf("pdf: importing existing pages: %w", pdf.Error())
	}
	return pageCount, nil
}
