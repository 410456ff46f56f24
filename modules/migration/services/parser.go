package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding/charmap"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type ParseOptions struct {
	// Comma overrides delimiter detection when non-zero.
	Comma rune
}

// ParseTable turns delimited text into a RawTable. Rows whose field count
// differs from the header, or that cannot be unquoted, are rejected and kept
// aside in RawTable.Rejected.
func ParseTable(fileName string, content []byte, opts ParseOptions) (domain.RawTable, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if len(bytes.TrimSpace(content)) == 0 {
		return domain.RawTable{}, &domain.MalformedInputError{File: fileName, Reason: "file is empty"}
	}
	if !isText(content) {
		return domain.RawTable{}, &domain.MalformedInputError{
			File:   fileName,
			Reason: fmt.Sprintf("expected delimited text, got %s", mimetype.Detect(content).String()),
		}
	}

	encoding := "utf-8"
	if !utf8.Valid(content) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(content)
		if err != nil {
			return domain.RawTable{}, &domain.MalformedInputError{File: fileName, Reason: "unsupported text encoding"}
		}
		content = decoded
		encoding = "windows-1252"
	}

	comma := opts.Comma
	if comma == 0 {
		comma = sniffDelimiter(content)
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = comma
	r.FieldsPerRecord = -1

	headerRecord, err := r.Read()
	if err != nil {
		return domain.RawTable{}, &domain.MalformedInputError{File: fileName, Line: 1, Reason: "cannot read header: " + err.Error()}
	}
	headers, err := normalizeHeaders(headerRecord)
	if err != nil {
		line, _ := r.FieldPos(0)
		return domain.RawTable{}, &domain.MalformedInputError{File: fileName, Line: line, Reason: err.Error()}
	}

	var (
		rows     []domain.Row
		rejected []domain.RejectedRow
	)
	for index := 0; ; index++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			rejected = append(rejected, domain.RejectedRow{
				Index:  index,
				Line:   pe.StartLine,
				Reason: pe.Err.Error(),
			})
			continue
		}
		if err != nil {
			return domain.RawTable{}, &domain.MalformedInputError{File: fileName, Reason: err.Error()}
		}

		line, _ := r.FieldPos(0)
		if len(record) != len(headers) {
			rejected = append(rejected, domain.RejectedRow{
				Index:  index,
				Line:   line,
				Reason: fmt.Sprintf("expected %d fields, got %d", len(headers), len(record)),
				Fields: record,
			})
			continue
		}

		values := make(map[string]string, len(headers))
		for i, h := range headers {
			values[h] = strings.TrimSpace(record[i])
		}
		rows = append(rows, domain.NewRow(index, line, values))
	}

	return domain.NewRawTable(fileName, headers, rows,
		domain.WithEncoding(encoding),
		domain.WithRejected(rejected),
	), nil
}

func isText(content []byte) bool {
	for m := mimetype.Detect(content); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func normalizeHeaders(record []string) ([]string, error) {
	headers := make([]string, len(record))
	seen := make(map[string]int, len(record))
	for i, h := range record {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("header %d is empty", i+1)
		}
		if prev, ok := seen[h]; ok {
			return nil, fmt.Errorf("header %q appears in columns %d and %d", h, prev+1, i+1)
		}
		seen[h] = i
		headers[i] = h
	}
	return headers, nil
}

// sniffDelimiter picks ';' only when the header line has semicolons and no commas.
func sniffDelimiter(content []byte) rune {
	first := content
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		first = content[:i]
	}
	if bytes.IndexByte(first, ',') < 0 && bytes.IndexByte(first, ';') >= 0 {
		return ';'
	}
	return ','
}
