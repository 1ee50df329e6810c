package annotate

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"compliance-rag/types"
)

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

	packageRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

	documentHead = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	documentTail = `<w:sectPr/></w:body></w:document>`
)

// RenderDOCX writes doc as a minimal WordprocessingML package: the body
// paragraphs, a page break, the trailer title and one paragraph per
// trailer block.
func RenderDOCX(w io.Writer, doc *types.AnnotatedDocument) error {
	var body bytes.Buffer
	body.WriteString(documentHead)
	for _, unit := range doc.Units {
		writeParagraph(&body, run{text: unit})
	}
	body.WriteString(`<w:p><w:r><w:br w:type="page"/></w:r></w:p>`)
	writeParagraph(&body, run{text: TrailerTitle, bold: true})
	for _, block := range doc.Trailer {
		runs := []run{{text: block.Header, bold: true}}
		for _, line := range block.Lines {
			runs = append(runs, run{text: "\n" + line})
		}
		writeParagraph(&body, runs...)
	}
	body.WriteString(documentTail)

	zw := zip.NewWriter(w)
	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(packageRelsXML)},
		{"word/document.xml", body.Bytes()},
	}
	for _, p := range parts {
		fw, err := zw.Create(p.name)
		if err != nil {
			return fmt.Errorf("create %s: %w", p.name, err)
		}
		if _, err := fw.Write(p.data); err != nil {
			return fmt.Errorf("write %s: %w", p.name, err)
		}
	}
	return zw.Close()
}

type run struct {
	text string
	bold bool
}

func writeParagraph(b *bytes.Buffer, runs ...run) {
	b.WriteString("<w:p>")
	for _, r := range runs {
		b.WriteString("<w:r>")
		if r.bold {
			b.WriteString("<w:rPr><w:b/></w:rPr>")
		}
		writeRunText(b, r.text)
		b.WriteString("</w:r>")
	}
	b.WriteString("</w:p>")
}

// writeRunText splits text on newlines and tabs into w:t, w:br and w:tab.
func writeRunText(b *bytes.Buffer, text string) {
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		for j, seg := range strings.Split(line, "\t") {
			if j > 0 {
				b.WriteString("<w:tab/>")
			}
			if seg == "" {
				continue
			}
			b.WriteString(`<w:t xml:space="preserve">`)
			_ = xml.EscapeText(b, []byte(seg))
			b.WriteString("</w:t>")
		}
	}
}
