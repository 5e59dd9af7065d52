package value

// Candidate is a sampled value that has not been repaired yet. It keeps the
// branch markers the generator left in it and the seed the hoister derives
// its own fresh samples from.
type Candidate struct {
	raw  any
	seed int64
}

func NewCandidate(raw any, seed int64) Candidate {
	return Candidate{raw: raw, seed: seed}
}

// Plain wraps an arbitrary JSON value, e.g. one decoded from a file, so it
// can be hoisted. It carries no branch hints.
func Plain(v any) Candidate {
	return Candidate{raw: v}
}

// Raw returns the value including branch markers.
func (c Candidate) Raw() any {
	return c.raw
}

// Value returns a marker-free copy of the candidate.
func (c Candidate) Value() any {
	return Strip(c.raw)
}

func (c Candidate) Seed() int64 {
	return c.seed
}
