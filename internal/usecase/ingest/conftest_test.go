package ingest

import (
	"context"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dishrec/internal/domain"
	domcol "github.com/kailas-cloud/dishrec/internal/domain/collection"
	domdoc "github.com/kailas-cloud/dishrec/internal/domain/document"
)

// --- Mocks ---

type mockStore struct {
	mu        sync.Mutex
	ensured   []domcol.Collection
	inserted  []domdoc.Document
	ensureErr error
	insertFn  func(doc domdoc.Document) error
}

func (m *mockStore) Ensure(_ context.Context, c domcol.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensured = append(m.ensured, c)
	return m.ensureErr
}

func (m *mockStore) Insert(_ context.Context, _ string, docs []domdoc.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		if m.insertFn != nil {
			if err := m.insertFn(d); err != nil {
				return err
			}
		}
	}
	m.inserted = append(m.inserted, docs...)
	return nil
}

func (m *mockStore) ids() []string {
	out := make([]string, len(m.inserted))
	for i := range m.inserted {
		out[i] = m.inserted[i].ID()
	}
	return out
}

// mockEmbedder returns a fixed-length vector derived from the text length.
type mockEmbedder struct {
	dim    int
	tokens int
	calls  int
	errFn  func(text string) error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.errFn != nil {
		if err := m.errFn(text); err != nil {
			return domain.EmbeddingResult{}, err
		}
	}
	v := make([]float32, m.dim)
	v[0] = float32(len(text))
	return domain.EmbeddingResult{Embedding: v, TotalTokens: m.tokens}, nil
}

// mockSynth renders "name|desc".
type mockSynth struct {
	err error
}

func (m *mockSynth) Synthesize(_ context.Context, attrs domain.Attributes) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return strings.Join([]string{attrs["dish_name"], attrs["dish_desc"]}, "|"), nil
}

func newTestService(t *testing.T, store Store, synth domain.Synthesizer, emb domain.Embedder, cfg Config) *Service {
	t.Helper()
	if cfg.Dim == 0 {
		cfg.Dim = 2
	}
	s, err := New(store, synth, emb, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return s
}

func dishRow(name, desc string) Row {
	return Row{
		"dish_name":        name,
		"dish_description": desc,
		"cuisine_type":     "Thai",
		"dietary_tags":     "vegan",
	}
}
