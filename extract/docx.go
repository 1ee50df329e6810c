package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const documentPart = "word/document.xml"

var errNoDocumentPart = errors.New("missing " + documentPart)

func readDOCX(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()
	return paragraphsFromZip(&zr.Reader)
}

// ParseDOCX returns the paragraphs of a DOCX held in r.
func ParseDOCX(r io.ReaderAt, size int64) ([]string, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	return paragraphsFromZip(zr)
}

func paragraphsFromZip(zr *zip.Reader) ([]string, error) {
	for _, file := range zr.File {
		if file.Name != documentPart {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", documentPart, err)
		}
		defer rc.Close()
		return parseDocumentXML(rc)
	}
	return nil, errNoDocumentPart
}

// parseDocumentXML walks word/document.xml and returns one string per w:p.
// Line breaks inside a paragraph become "\n"; page breaks are dropped.
func parseDocumentXML(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inPara     int
		inText     bool
		inProps    bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", documentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if inPara == 0 {
					current.Reset()
				}
				inPara++
			case "t":
				inText = true
			case "pPr":
				inProps = true
			case "tab":
				if inPara > 0 && !inProps {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if inPara > 0 && !isPageBreak(t) {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				inPara--
				if inPara == 0 {
					paragraphs = append(paragraphs, current.String())
				}
			case "t":
				inText = false
			case "pPr":
				inProps = false
			}
		case xml.CharData:
			if inText && inPara > 0 {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}

func isPageBreak(el xml.StartElement) bool {
	for _, attr := range el.Attr {
		if attr.Name.Local == "type" && attr.Value == "page" {
			return true
		}
	}
	return false
}
