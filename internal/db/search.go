package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string // defaults to "__vector"
	Vector       []float32
	K            int
	ReturnFields []string
}

// TagQuery is an exact-match lookup on one TAG field.
type TagQuery struct {
	IndexName    string
	Field        string
	Value        string
	Limit        int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
// Score is the raw __vector_score for KNN queries (a distance, smaller is nearer)
// and zero for tag lookups.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
