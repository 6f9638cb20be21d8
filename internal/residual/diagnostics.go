package residual

import "fmt"

// DiagnosticKind classifies a non-fatal data quality finding.
type DiagnosticKind string

const (
	DiagSkippedRows       DiagnosticKind = "skipped_rows"
	DiagLengthMismatch    DiagnosticKind = "length_mismatch"
	DiagTimestampOffset   DiagnosticKind = "timestamp_offset"
	DiagPositionReduced   DiagnosticKind = "position_reduced"
	DiagMeanDiscrepancy   DiagnosticKind = "mean_discrepancy"
	DiagTimeAxisAnomalies DiagnosticKind = "time_axis"
)

// Diagnostic is one structured warning produced while analysing a run.
// Value carries the headline number of the finding (rows skipped, samples
// dropped, milliseconds of offset, largest discrepancy).
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Source  string         `json:"source,omitempty"`
	Block   *int           `json:"block,omitempty"`
	Value   float64        `json:"value"`
	Message string         `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Source != "" {
		return fmt.Sprintf("[%s] %s: %s", d.Kind, d.Source, d.Message)
	}
	return fmt.Sprintf("[%s] %s", d.Kind, d.Message)
}

// Diagnostics is an ordered collection of findings.
type Diagnostics []Diagnostic

// Addf appends a finding with a formatted message.
func (ds *Diagnostics) Addf(kind DiagnosticKind, source string, value float64, format string, args ...interface{}) {
	*ds = append(*ds, Diagnostic{
		Kind:    kind,
		Source:  source,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	})
}

// addBlockf appends a finding tied to a block index.
func (ds *Diagnostics) addBlockf(kind DiagnosticKind, block int, value float64, format string, args ...interface{}) {
	b := block
	*ds = append(*ds, Diagnostic{
		Kind:    kind,
		Block:   &b,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	})
}

// Of returns the findings of the given kind, in order.
func (ds Diagnostics) Of(kind DiagnosticKind) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Has reports whether any finding of the given kind was recorded.
func (ds Diagnostics) Has(kind DiagnosticKind) bool {
	for _, d := range ds {
		if d.Kind == kind {
			return true
		}
	}
	return false
}
