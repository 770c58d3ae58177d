// Package ingest turns lecture files into page-annotated text and
// overlapping chunks ready for embedding. PDFs are read with pdfcpu; plain
// text and markdown files are passed through as a single page.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// PageMarker is the annotation inserted before each page's text so that
// retrieved chunks can be traced back to a lecture page.
const PageMarker = "--- Lecture Page %d ---"

// ExtractText reads a lecture file and returns its full text with a page
// marker line preceding each page. Pages that contain no extractable text
// are skipped. Non-PDF files are returned as a single page.
func ExtractText(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("ingest: lecture file %s: %w", path, err)
	}

	if strings.ToLower(filepath.Ext(path)) != ".pdf" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("ingest: read %s: %w", path, err)
		}
		text := strings.TrimSpace(string(raw))
		if text == "" {
			return "", nil
		}
		return fmt.Sprintf(PageMarker, 1) + "\n" + text + "\n", nil
	}

	return extractPDF(ctx, path)
}

// extractPDF pulls the text operators out of every page's content stream.
func extractPDF(ctx context.Context, path string) (string, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return "", fmt.Errorf("ingest: open pdf %s: %w", path, err)
	}

	var b strings.Builder
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
		if err != nil {
			return "", fmt.Errorf("ingest: extract page %d of %s: %w", pageNr, path, err)
		}
		if r == nil {
			continue
		}

		stream, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("ingest: read page %d of %s: %w", pageNr, path, err)
		}

		text := strings.TrimSpace(contentText(stream))
		if text == "" {
			continue
		}

		fmt.Fprintf(&b, PageMarker, pageNr)
		b.WriteByte('\n')
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	return b.String(), nil
}

// contentText decodes the text-showing operators (Tj, TJ, ' and ") of a PDF
// content stream. Text positioning operators that start a new line (Td, TD,
// T*) become newlines so paragraphs survive extraction. Strings encoded with
// CID fonts are not decoded; for lecture slides produced by mainstream tools
// the simple encodings dominate.
func contentText(stream []byte) string {
	var (
		out     strings.Builder
		pending []string
		token   []byte
	)

	flushToken := func() {
		op := string(token)
		token = token[:0]
		switch op {
		case "Tj", "TJ":
			for _, s := range pending {
				out.WriteString(s)
			}
			pending = pending[:0]
		case "'", "\"":
			out.WriteByte('\n')
			for _, s := range pending {
				out.WriteString(s)
			}
			pending = pending[:0]
		case "Td", "TD", "T*":
			pending = pending[:0]
			out.WriteByte('\n')
		case "ET":
			pending = pending[:0]
			out.WriteByte('\n')
		default:
			if op != "" {
				pending = pending[:0]
			}
		}
	}

	for i := 0; i < len(stream); i++ {
		c := stream[i]
		switch {
		case c == '(':
			flushToken()
			s, next := literalString(stream, i)
			pending = append(pending, s)
			i = next
		case c == '<' && i+1 < len(stream) && stream[i+1] != '<':
			flushToken()
			i = skipHexString(stream, i)
		case c == '[' || c == ']':
			flushToken()
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			flushToken()
		case (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.':
			// numeric operand, not part of an operator token
			flushToken()
			for i+1 < len(stream) {
				n := stream[i+1]
				if (n >= '0' && n <= '9') || n == '-' || n == '+' || n == '.' {
					i++
					continue
				}
				break
			}
		default:
			token = append(token, c)
		}
	}
	flushToken()

	return out.String()
}

// literalString parses a parenthesized PDF string starting at stream[start]
// and returns the decoded text plus the index of the closing parenthesis.
func literalString(stream []byte, start int) (string, int) {
	var b strings.Builder
	depth := 1
	i := start + 1
	for ; i < len(stream); i++ {
		c := stream[i]
		switch c {
		case '\\':
			if i+1 >= len(stream) {
				return b.String(), i
			}
			i++
			switch e := stream[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '(', ')', '\\':
				b.WriteByte(e)
			case '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					// up to three octal digits
					v := int(e - '0')
					for n := 0; n < 2 && i+1 < len(stream) && stream[i+1] >= '0' && stream[i+1] <= '7'; n++ {
						i++
						v = v*8 + int(stream[i]-'0')
					}
					b.WriteByte(byte(v))
				} else {
					b.WriteByte(e)
				}
			}
		case '(':
			depth++
			b.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return b.String(), i
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), i
}

// skipHexString advances past a <...> hex string starting at stream[start].
func skipHexString(stream []byte, start int) int {
	for i := start + 1; i < len(stream); i++ {
		if stream[i] == '>' {
			return i
		}
	}
	return len(stream) - 1
}
