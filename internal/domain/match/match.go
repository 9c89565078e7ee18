package match

// Match is a single nearest-neighbor hit from a collection query.
type Match struct {
	id       string
	distance float64
	metadata map[string]string
}

// New creates a match.
func New(id string, distance float64, metadata map[string]string) Match {
	return Match{id: id, distance: distance, metadata: metadata}
}

// ID returns the document identifier.
func (m *Match) ID() string { return m.id }

// Distance returns the store-reported distance; smaller is nearer.
func (m *Match) Distance() float64 { return m.distance }

// Metadata returns the document metadata.
func (m *Match) Metadata() map[string]string { return m.metadata }

// Field returns one metadata value, empty when absent.
func (m *Match) Field(key string) string { return m.metadata[key] }
