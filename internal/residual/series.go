package residual

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// maxTimestamp keeps millisecond timestamps inside int64 range.
const maxTimestamp = 9e18

// DefaultMaxRowWarnings caps the per-row warnings retained by LoadSeries.
const DefaultMaxRowWarnings = 50

// Header names the four required columns of a sample file.
type Header struct {
	Time string `json:"t"`
	X    string `json:"x"`
	Y    string `json:"y"`
	Z    string `json:"z"`
}

// DefaultHeader is the column layout written by the capture and correction tools.
var DefaultHeader = Header{Time: "t_ms", X: "ax", Y: "ay", Z: "az"}

func (h Header) names() [4]string { return [4]string{h.Time, h.X, h.Y, h.Z} }

// Series is one time-ordered sample stream stored as parallel columns.
// T holds integer milliseconds.
type Series struct {
	Name string
	T    []int64
	X    []float64
	Y    []float64
	Z    []float64
}

// Len returns the number of samples.
func (s *Series) Len() int { return len(s.T) }

// Channel returns the column for the given axis.
func (s *Series) Channel(c Channel) []float64 {
	switch c {
	case ChannelX:
		return s.X
	case ChannelY:
		return s.Y
	default:
		return s.Z
	}
}

// Truncate returns a view of the first n samples sharing s's storage.
func (s *Series) Truncate(n int) *Series {
	if n >= s.Len() {
		return s
	}
	if n < 0 {
		n = 0
	}
	return &Series{Name: s.Name, T: s.T[:n], X: s.X[:n], Y: s.Y[:n], Z: s.Z[:n]}
}

// LoadOptions controls LoadSeries.
type LoadOptions struct {
	Header         Header
	MaxRowWarnings int // <= 0 selects DefaultMaxRowWarnings
}

// RowWarning describes one skipped data row. Column is 1-based and zero when
// the whole row was rejected.
type RowWarning struct {
	Line    int    `json:"line"`
	Column  int    `json:"column,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// LoadStats counts what LoadSeries saw while reading a stream.
type LoadStats struct {
	Source          string       `json:"source"`
	TotalLines      int          `json:"total_lines"`
	SkippedLines    int          `json:"skipped_lines"`
	HeaderLine      int          `json:"header_line"`
	ParsedRows      int          `json:"parsed_rows"`
	BadRows         int          `json:"bad_rows"`
	Warnings        []RowWarning `json:"warnings,omitempty"`
	WarningsDropped int          `json:"warnings_dropped,omitempty"`
}

func (st *LoadStats) warn(limit int, w RowWarning) {
	st.BadRows++
	if len(st.Warnings) < limit {
		st.Warnings = append(st.Warnings, w)
		return
	}
	st.WarningsDropped++
}

// LoadSeriesFile opens path and calls LoadSeries.
func LoadSeriesFile(path string, opts LoadOptions) (*Series, LoadStats, Diagnostics, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, LoadStats{}, nil, fmt.Errorf("open series: %w", err)
	}
	defer f.Close()
	return LoadSeries(f, filepath.Base(path), opts)
}

// LoadSeries parses comma-separated samples with a header naming the time and
// three channel columns. Fields may be quoted. Blank lines and lines starting
// with '#' are ignored. Each data row is parsed on its own; a row that fails
// numeric conversion, has the wrong number of fields or is malformed CSV is
// skipped and counted, never aborting the load. A missing header, a header
// without a required column, or a stream with no parseable rows is a
// FormatError.
func LoadSeries(r io.Reader, name string, opts LoadOptions) (*Series, LoadStats, Diagnostics, error) {
	header := opts.Header
	if header == (Header{}) {
		header = DefaultHeader
	}
	limit := opts.MaxRowWarnings
	if limit <= 0 {
		limit = DefaultMaxRowWarnings
	}

	stats := LoadStats{Source: name}
	s := &Series{Name: name}

	br := bufio.NewReader(r)
	if bom, _ := br.Peek(len(utf8BOM)); bytes.Equal(bom, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	lc := &lineCounter{r: br}
	cr := csv.NewReader(lc)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var cols [4]int
	width := 0
	haveHeader := false
	lastLine := 0

	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, stats, nil, fmt.Errorf("read series %s: %w", name, err)
			}
			if !haveHeader {
				return nil, stats, nil, &FormatError{Source: name, Reason: fmt.Sprintf("malformed header: %v", pe.Err)}
			}
			stats.SkippedLines += pe.StartLine - lastLine - 1
			lastLine = pe.Line
			stats.warn(limit, RowWarning{Line: pe.StartLine, Message: pe.Err.Error()})
			continue
		}

		line, _ := cr.FieldPos(0)
		stats.SkippedLines += line - lastLine - 1
		lastLine, _ = cr.FieldPos(len(fields) - 1)

		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if len(fields) == 1 && fields[0] == "" {
			stats.SkippedLines++
			continue
		}

		if !haveHeader {
			idx, err := locateColumns(fields, header, name)
			if err != nil {
				return nil, stats, nil, err
			}
			cols, width, haveHeader = idx, len(fields), true
			stats.HeaderLine = line
			continue
		}

		if len(fields) != width {
			stats.warn(limit, RowWarning{
				Line:    line,
				Message: fmt.Sprintf("incorrect number of columns (expected %d, got %d)", width, len(fields)),
			})
			continue
		}

		t, vals, bad := parseRow(fields, cols)
		if bad >= 0 {
			stats.warn(limit, RowWarning{
				Line:    line,
				Column:  bad + 1,
				Value:   clipValue(fields[bad]),
				Message: "invalid value",
			})
			continue
		}
		s.T = append(s.T, t)
		s.X = append(s.X, vals[0])
		s.Y = append(s.Y, vals[1])
		s.Z = append(s.Z, vals[2])
		stats.ParsedRows++
	}
	stats.TotalLines = lc.total()
	stats.SkippedLines += stats.TotalLines - lastLine

	if !haveHeader {
		return nil, stats, nil, &FormatError{Source: name, Reason: "missing header row"}
	}
	if stats.ParsedRows == 0 {
		return nil, stats, nil, &FormatError{Source: name, Reason: "no valid data rows"}
	}

	var diags Diagnostics
	if stats.BadRows > 0 {
		diags.Addf(DiagSkippedRows, name, float64(stats.BadRows),
			"skipped %d malformed rows (%d parsed)", stats.BadRows, stats.ParsedRows)
	}
	return s, stats, diags, nil
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// maxWarningValue bounds the field text kept in a RowWarning.
const maxWarningValue = 64

func clipValue(v string) string {
	if len(v) <= maxWarningValue {
		return v
	}
	return v[:maxWarningValue] + "..."
}

// lineCounter counts the lines passing through to the CSV reader so the
// stats can report blank and comment lines, which csv.Reader drops.
type lineCounter struct {
	r       io.Reader
	lines   int
	partial bool
}

func (lc *lineCounter) Read(p []byte) (int, error) {
	n, err := lc.r.Read(p)
	if n > 0 {
		lc.lines += bytes.Count(p[:n], []byte{'\n'})
		lc.partial = p[n-1] != '\n'
	}
	return n, err
}

func (lc *lineCounter) total() int {
	if lc.partial {
		return lc.lines + 1
	}
	return lc.lines
}

// locateColumns maps the required header names to field positions.
func locateColumns(fields []string, h Header, source string) ([4]int, error) {
	var idx [4]int
	for i, want := range h.names() {
		idx[i] = -1
		for j, f := range fields {
			if f == want {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return idx, &FormatError{
				Source: source,
				Field:  want,
				Reason: fmt.Sprintf("header %q lacks required column", strings.Join(fields, ",")),
			}
		}
	}
	return idx, nil
}

// parseRow converts the time and channel fields. It returns the index of the
// first field that failed conversion, or -1.
func parseRow(fields []string, cols [4]int) (int64, [3]float64, int) {
	var vals [3]float64

	tf, err := strconv.ParseFloat(fields[cols[0]], 64)
	if err != nil || math.IsNaN(tf) || math.Abs(tf) > maxTimestamp {
		return 0, vals, cols[0]
	}
	for i := 0; i < 3; i++ {
		c := cols[i+1]
		v, err := strconv.ParseFloat(fields[c], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, vals, c
		}
		vals[i] = v
	}
	return int64(math.Trunc(tf)), vals, -1
}
