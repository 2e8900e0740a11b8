package storage

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Page selects a window of a list result
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the limit into [1, maxPageLimit] and the offset to >= 0
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
