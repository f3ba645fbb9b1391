package csvledger

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"etat-statement-service/pkg/errors"
	"etat-statement-service/pkg/logger"
)

// ReadConfig holds CSV dialect options shared by every ledger file
type ReadConfig struct {
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	ValidateEncoding bool
}

// DefaultReadConfig returns a configuration with sensible defaults
func DefaultReadConfig() *ReadConfig {
	return &ReadConfig{
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		ValidateEncoding: true,
	}
}

// column is a logical field and the header names it may appear under
type column struct {
	name    string
	aliases []string
}

// table is one opened ledger file with its header resolved to logical columns
type table struct {
	path    string
	file    *os.File
	reader  *csv.Reader
	line    int
	indexes map[string]int
	headers []string
	ctx     context.Context
}

// openTable opens path, validates its encoding and resolves its header row.
// Columns listed in required must be present under one of their aliases.
func openTable(ctx context.Context, path string, config *ReadConfig, columns []column, required []string, log logger.Logger) (*table, error) {
	log.WithField("file_path", path).Debug("Opening ledger file")

	file, err := os.Open(path)
	if err != nil {
		log.WithError(err).WithField("file_path", path).Error("Failed to open ledger file")
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeFileNotFound, path, err)
	}

	if config.ValidateEncoding {
		if err := validateEncoding(file, path); err != nil {
			file.Close()
			return nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
	}

	reader := csv.NewReader(file)
	reader.Comma = config.Delimiter
	reader.Comment = config.Comment
	reader.TrimLeadingSpace = config.TrimLeadingSpace
	reader.FieldsPerRecord = -1

	t := &table{path: path, file: file, reader: reader, ctx: ctx}
	if err := t.readHeader(columns, required); err != nil {
		file.Close()
		log.WithError(err).WithField("file_path", path).Error("Failed to resolve ledger header")
		return nil, err
	}

	log.WithFields(logger.Fields{
		"file_path": path,
		"headers":   t.headers,
	}).Debug("Resolved ledger header")

	return t, nil
}

func (t *table) Close() error {
	return t.file.Close()
}

func (t *table) readHeader(columns []column, required []string) error {
	headers, err := t.reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ParseError(errors.CodeInvalidFormat, t.path, 1, "headers", fmt.Errorf("file is empty")).
				WithSuggestion("Ensure the file contains a header row")
		}
		return errors.ParseError(errors.CodeInvalidFormat, t.path, 1, "headers", err)
	}
	t.line++

	t.headers = make([]string, len(headers))
	byName := make(map[string]int, len(headers))
	for i, header := range headers {
		cleaned := normalizeHeader(header)
		t.headers[i] = cleaned
		if _, exists := byName[cleaned]; !exists {
			byName[cleaned] = i
		}
	}

	t.indexes = make(map[string]int, len(columns))
	for _, col := range columns {
		for _, alias := range col.aliases {
			if idx, ok := byName[normalizeHeader(alias)]; ok {
				t.indexes[col.name] = idx
				break
			}
		}
	}

	var missing []string
	for _, name := range required {
		if _, ok := t.indexes[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.ParseError(errors.CodeMissingColumn, t.path, t.line, strings.Join(missing, ", "), nil).
			WithSuggestion(fmt.Sprintf("Available headers: %s", strings.Join(t.headers, ", ")))
	}

	return nil
}

// next returns the next non-empty row, or io.EOF
func (t *table) next(skipEmpty bool) ([]string, error) {
	for {
		if err := t.ctx.Err(); err != nil {
			return nil, err
		}

		record, err := t.reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			t.line++
			return nil, errors.ParseError(errors.CodeInvalidFormat, t.path, t.line, "record", err)
		}
		t.line++

		if skipEmpty && isEmptyRecord(record) {
			continue
		}
		return record, nil
	}
}

// has reports whether the logical column was found in the header
func (t *table) has(name string) bool {
	_, ok := t.indexes[name]
	return ok
}

// field returns the trimmed value of a logical column, or "" when the column
// is absent or the row is short
func (t *table) field(record []string, name string) string {
	idx, ok := t.indexes[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func validateEncoding(file *os.File, path string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(errors.CodeInvalidFormat, path, lineNum, "encoding",
				fmt.Errorf("invalid UTF-8 encoding detected")).
				WithSuggestion("Save the file in UTF-8 encoding and try again")
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileNotFound, path, err)
	}
	return nil
}

// normalizeHeader lowercases a header and folds separators so that
// "Montant Client", "montant_client" and "MONTANT-CLIENT" compare equal
func normalizeHeader(header string) string {
	h := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header, "\ufeff")))
	h = strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(h)
	return h
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
