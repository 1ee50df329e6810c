package extract

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func readPDF(path string) (units []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			units, err = nil, fmt.Errorf("pdf parser: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate pdf: %w", err)
	}

	for page := 1; page <= ctx.PageCount; page++ {
		r, err := pdfcpu.ExtractPageContent(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		if r == nil {
			continue
		}
		stream, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		units = append(units, contentStreamText(stream)...)
	}
	return units, nil
}

// contentStreamText collects the strings shown by a page content stream,
// one entry per text line. Fonts with custom encodings come out as raw bytes.
func contentStreamText(stream []byte) []string {
	var (
		lines    []string
		line     strings.Builder
		operands []operand
		arrays   [][]operand
	)
	flush := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			lines = append(lines, s)
		}
		line.Reset()
	}
	push := func(o operand) {
		if n := len(arrays); n > 0 {
			arrays[n-1] = append(arrays[n-1], o)
			return
		}
		operands = append(operands, o)
	}
	lastString := func() (string, bool) {
		if n := len(operands); n > 0 && operands[n-1].kind == opString {
			return operands[n-1].text, true
		}
		return "", false
	}

	sc := &contentScanner{data: stream}
	for {
		tok, ok := sc.next()
		if !ok {
			break
		}
		switch tok.kind {
		case opString, opNumber, opOther:
			push(tok)
		case opArrayStart:
			arrays = append(arrays, nil)
		case opArrayEnd:
			if n := len(arrays); n > 0 {
				arr := arrays[n-1]
				arrays = arrays[:n-1]
				push(operand{kind: opArray, array: arr})
			}
		case opOperator:
			switch tok.text {
			case "Tj":
				if s, ok := lastString(); ok {
					line.WriteString(s)
				}
			case "'", "\"":
				flush()
				if s, ok := lastString(); ok {
					line.WriteString(s)
				}
			case "TJ":
				if n := len(operands); n > 0 && operands[n-1].kind == opArray {
					for _, el := range operands[n-1].array {
						switch {
						case el.kind == opString:
							line.WriteString(el.text)
						case el.kind == opNumber && el.num < -200:
							line.WriteByte(' ')
						}
					}
				}
			case "Td", "TD":
				if n := len(operands); n >= 2 && operands[n-1].kind == opNumber && operands[n-1].num != 0 {
					flush()
				} else if line.Len() > 0 && !strings.HasSuffix(line.String(), " ") {
					line.WriteByte(' ')
				}
			case "T*", "Tm", "ET":
				flush()
			case "ID":
				sc.skipInlineImage()
			}
			operands = operands[:0]
		}
	}
	flush()
	return lines
}

type operandKind int

const (
	opOther operandKind = iota
	opString
	opNumber
	opArray
	opArrayStart
	opArrayEnd
	opOperator
)

type operand struct {
	kind  operandKind
	text  string
	num   float64
	array []operand
}

type contentScanner struct {
	data []byte
	pos  int
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func (s *contentScanner) next() (operand, bool) {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case isPDFSpace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		case c == '(':
			s.pos++
			return operand{kind: opString, text: decodePDFString(s.literal())}, true
		case c == '<':
			if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
				s.pos += 2
				return operand{kind: opOther, text: "<<"}, true
			}
			s.pos++
			return operand{kind: opString, text: decodePDFString(s.hexString())}, true
		case c == '>':
			s.pos++
			if s.pos < len(s.data) && s.data[s.pos] == '>' {
				s.pos++
			}
			return operand{kind: opOther, text: ">>"}, true
		case c == '[':
			s.pos++
			return operand{kind: opArrayStart}, true
		case c == ']':
			s.pos++
			return operand{kind: opArrayEnd}, true
		case c == '/':
			start := s.pos
			s.pos++
			s.regular()
			return operand{kind: opOther, text: string(s.data[start:s.pos])}, true
		case c == '{' || c == '}':
			s.pos++
		default:
			start := s.pos
			s.regular()
			word := string(s.data[start:s.pos])
			if word == "" {
				s.pos++
				continue
			}
			if n, err := strconv.ParseFloat(word, 64); err == nil {
				return operand{kind: opNumber, num: n, text: word}, true
			}
			return operand{kind: opOperator, text: word}, true
		}
	}
	return operand{}, false
}

func (s *contentScanner) regular() {
	for s.pos < len(s.data) && !isPDFSpace(s.data[s.pos]) && !isPDFDelim(s.data[s.pos]) {
		s.pos++
	}
}

// literal reads a (...) string body; the opening paren is already consumed.
func (s *contentScanner) literal() []byte {
	var out []byte
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= len(s.data) {
				return out
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '7'; i++ {
						v = v*8 + int(s.data[s.pos]-'0')
						s.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

// hexString reads a <...> string body; the opening bracket is already consumed.
func (s *contentScanner) hexString() []byte {
	var digits []byte
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			break
		}
		if !isPDFSpace(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out, err := hex.DecodeString(string(digits))
	if err != nil {
		return nil
	}
	return out
}

// skipInlineImage jumps over binary inline image data up to the EI operator.
func (s *contentScanner) skipInlineImage() {
	idx := bytes.Index(s.data[s.pos:], []byte("EI"))
	for idx >= 0 {
		end := s.pos + idx + 2
		before := s.pos + idx - 1
		if (before < 0 || isPDFSpace(s.data[before])) && (end >= len(s.data) || isPDFSpace(s.data[end])) {
			s.pos = end
			return
		}
		next := bytes.Index(s.data[end:], []byte("EI"))
		if next < 0 {
			break
		}
		idx = end - s.pos + next
	}
	s.pos = len(s.data)
}

// decodePDFString handles UTF-16BE strings with a byte order mark and treats
// everything else as single-byte text.
func decodePDFString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		b = b[2:]
		u := make([]uint16, 0, len(b)/2)
		for i := 0; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	var sb strings.Builder
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}
