package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Media types accepted for ingestion.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// ErrUnsupportedFormat is returned for any media type other than PDF or DOCX.
var ErrUnsupportedFormat = errors.New("unsupported file type")

// Extract converts a raw uploaded file into plain text based on its declared
// media type. PDF pages are concatenated with blank-line separators in page
// order; DOCX extraction returns the raw textual content with formatting
// discarded.
func Extract(data []byte, mediaType string) (string, error) {
	switch mediaType {
	case MediaTypePDF:
		return extractPDF(data)
	case MediaTypeDOCX:
		return extractDOCX(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mediaType)
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	totalPages := reader.NumPage()
	pages := make([]string, 0, totalPages)
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing the whole document.
			continue
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n\n"), nil
}

func extractDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var docFile *zip.File
	for _, file := range reader.File {
		if file.Name == "word/document.xml" {
			docFile = file
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("open docx: missing word/document.xml")
	}
	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}
	defer rc.Close()
	text, err := docxBodyText(rc)
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	return text, nil
}

// docxBodyText walks the WordprocessingML token stream collecting text runs.
// Paragraph ends become newlines, explicit breaks and tabs are preserved as
// whitespace.
func docxBodyText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	var inText bool
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch tok := token.(type) {
		case xml.StartElement:
			switch tok.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteString("\t")
			case "br", "cr":
				sb.WriteString("\n")
			}
		case xml.EndElement:
			switch tok.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(tok)
			}
		}
	}
	return sb.String(), nil
}
