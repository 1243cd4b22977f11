// Package tabular decodes catalogue exports into header-normalized tables.
//
// Exports arrive as UTF-8 (with or without BOM), UTF-16 with BOM, or
// Windows-1251, optionally gzip-compressed, delimited by semicolons, commas
// or tabs.  The loader tries each delimiter and keeps the one producing the
// widest header.
package tabular

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/turtacn/rid-registry/internal/application/ingest"
	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/pkg/errors"
)

var defaultDelimiters = []rune{';', ',', '\t'}

// Option configures a Loader.
type Option func(*Loader)

// WithDelimiters replaces the candidate delimiters, tried in order.
func WithDelimiters(d ...rune) Option {
	return func(l *Loader) {
		if len(d) > 0 {
			l.delimiters = d
		}
	}
}

func WithLogger(log logging.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.logger = log
		}
	}
}

// Loader implements ingest.TableLoader.
type Loader struct {
	delimiters []rune
	logger     logging.Logger
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{delimiters: defaultDelimiters, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ ingest.TableLoader = (*Loader)(nil)

func (l *Loader) Load(r io.Reader) (*registry.Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSnapshotUnreadable, "failed to read snapshot")
	}
	raw, err = gunzip(raw)
	if err != nil {
		return nil, err
	}
	text, enc, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	var (
		best      [][]string
		bestDelim rune
	)
	for _, d := range l.delimiters {
		records, err := parse(text, d)
		if err != nil || len(records) == 0 {
			continue
		}
		if best == nil || len(records[0]) > len(best[0]) {
			best, bestDelim = records, d
		}
	}
	if best == nil || len(best[0]) < 2 {
		return nil, errors.New(errors.CodeSnapshotUnreadable, "no delimiter produced a usable header")
	}

	table := buildTable(best)
	l.logger.Debug("snapshot decoded",
		logging.String("encoding", enc),
		logging.String("delimiter", string(bestDelim)),
		logging.Int("columns", len(table.Columns)),
		logging.Int("rows", len(table.Rows)))
	return table, nil
}

func gunzip(raw []byte) ([]byte, error) {
	if len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
		return raw, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSnapshotUnreadable, "corrupt gzip snapshot")
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSnapshotUnreadable, "corrupt gzip snapshot")
	}
	return out, nil
}

// decodeText returns the snapshot as UTF-8 without a BOM and the name of the
// encoding it was read as.
func decodeText(raw []byte) ([]byte, string, error) {
	var (
		dec  *encoding.Decoder
		name string
	)
	switch {
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}), bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		dec, name = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder(), "utf-16"
	case utf8.Valid(raw):
		return bytes.TrimPrefix(raw, []byte("\xEF\xBB\xBF")), "utf-8", nil
	default:
		dec, name = charmap.Windows1251.NewDecoder(), "windows-1251"
	}
	out, err := dec.Bytes(raw)
	if err != nil {
		return nil, "", errors.Wrapf(err, errors.CodeSnapshotUnreadable, "failed to decode %s snapshot", name)
	}
	return bytes.TrimPrefix(out, []byte("\xEF\xBB\xBF")), name, nil
}

func parse(text []byte, delim rune) ([][]string, error) {
	cr := csv.NewReader(bytes.NewReader(text))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr.ReadAll()
}

// buildTable normalizes the header and maps every non-blank record onto it.
// A repeated or empty header cell is ignored; short records are padded.
func buildTable(records [][]string) *registry.Table {
	header := records[0]
	index := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	table := &registry.Table{}
	for i, h := range header {
		name := registry.NormalizeHeader(h)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		index[i] = name
		table.Columns = append(table.Columns, name)
	}

	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := make(registry.Row, len(table.Columns))
		for i, name := range index {
			if name == "" {
				continue
			}
			if i < len(rec) {
				row[name] = rec[i]
			} else {
				row[name] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
