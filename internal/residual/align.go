package residual

// Pair holds the raw and corrected streams after reconciliation. Both have
// the same length and are treated as sample-aligned: index i in one is the
// same physical instant as index i in the other.
type Pair struct {
	Raw       *Series
	Corrected *Series
}

// Len returns the common length.
func (p *Pair) Len() int { return p.Raw.Len() }

// Alignment records how the two streams were reconciled.
type Alignment struct {
	RawLength       int   `json:"raw_length"`
	CorrectedLength int   `json:"corrected_length"`
	Length          int   `json:"length"`
	MaxOffsetMS     int64 `json:"max_offset_ms"`
	MaxOffsetIndex  int   `json:"max_offset_index"`
}

// Truncated reports whether either stream lost samples.
func (a Alignment) Truncated() bool {
	return a.RawLength != a.Length || a.CorrectedLength != a.Length
}

// Reconcile truncates both streams to the shorter length and measures the
// timestamp disagreement at equal indices. A length mismatch or an offset
// above toleranceMS is reported as a diagnostic; the streams are still used
// as if aligned.
//
// Only equal-index timestamps are compared. Streams that drift out of
// lockstep (for example frames dropped on one side only) but still carry
// matching timestamps at the compared indices are not detected.
func Reconcile(raw, corrected *Series, toleranceMS int64) (*Pair, Alignment, Diagnostics) {
	var diags Diagnostics

	a := Alignment{
		RawLength:       raw.Len(),
		CorrectedLength: corrected.Len(),
		MaxOffsetIndex:  -1,
	}
	n := a.RawLength
	if a.CorrectedLength < n {
		n = a.CorrectedLength
	}
	a.Length = n

	if a.RawLength != a.CorrectedLength {
		diff := a.RawLength - a.CorrectedLength
		if diff < 0 {
			diff = -diff
		}
		diags.Addf(DiagLengthMismatch, "", float64(diff),
			"series length differs raw=%d corr=%d (%d rows) -> using n=%d", a.RawLength, a.CorrectedLength, diff, n)
	}

	p := &Pair{Raw: raw.Truncate(n), Corrected: corrected.Truncate(n)}

	for i := 0; i < n; i++ {
		d := p.Raw.T[i] - p.Corrected.T[i]
		if d < 0 {
			d = -d
		}
		if d > a.MaxOffsetMS {
			a.MaxOffsetMS = d
			a.MaxOffsetIndex = i
		}
	}
	if toleranceMS < 0 {
		toleranceMS = 0
	}
	if a.MaxOffsetMS > toleranceMS {
		diags.Addf(DiagTimestampOffset, "", float64(a.MaxOffsetMS),
			"t_ms mismatch between raw/corr, max |dt| = %d ms (first at index %d)", a.MaxOffsetMS, a.MaxOffsetIndex)
	}
	return p, a, diags
}
