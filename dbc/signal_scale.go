package dbc

// RawToPhysical applies the signal's linear scaling: raw*factor + offset.
func (s *Signal) RawToPhysical(raw float64) float64 {
	return raw*s.factor + s.offset
}

// PhysicalToRaw inverts RawToPhysical. A zero factor is not rejected at
// construction; the result is then ±Inf or NaN.
func (s *Signal) PhysicalToRaw(physical float64) float64 {
	return (physical - s.offset) / s.factor
}
