package residual

// PointResiduals builds one residual per orientation from the report alone,
// for the first count points. Stored res_raw/res_corr values are used when
// present; otherwise the residual is the recorded mean minus the reference.
func PointResiduals(rep *Report, count int) (raw, corrected ResidualSet) {
	if count > len(rep.Points) || count <= 0 {
		count = len(rep.Points)
	}
	raw = newResidualSet(RegimeRaw, count)
	corrected = newResidualSet(RegimeCorrected, count)

	for i, p := range rep.Points[:count] {
		r := p.RawMean.Sub(p.Reference)
		if p.ResidualRaw != nil {
			r = *p.ResidualRaw
		}
		c := p.CorrectedMean.Sub(p.Reference)
		if p.ResidualCorrected != nil {
			c = *p.ResidualCorrected
		}
		for _, ch := range Channels {
			raw.Channel(ch)[i] = r.Component(ch)
			corrected.Channel(ch)[i] = c.Component(ch)
		}
	}
	return raw, corrected
}
