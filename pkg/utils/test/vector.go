package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/cogniweave/pkg/vector"
)

// ErrMockVector is returned by MockVectorDriver when a failure is enabled.
var ErrMockVector = errors.New("mock vector driver failure")

// MockVectorDriver is an in-memory vector driver that scores documents with
// cosine similarity and can be told to fail.
type MockVectorDriver struct {
	mu        sync.Mutex
	documents []vector.Document

	// FailAdd causes Add to return ErrMockVector.
	FailAdd bool

	// FailQuery causes Query to return ErrMockVector.
	FailQuery bool

	// AddCalls counts calls to Add, successful or not.
	AddCalls int

	Closed bool
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		documents: make([]vector.Document, 0),
	}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AddCalls++
	if m.FailAdd {
		return ErrMockVector
	}

	for _, doc := range docs {
		if m.indexOf(doc.ID) >= 0 {
			continue
		}
		m.documents = append(m.documents, doc)
	}
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, embedding []float32, scope string, topK int) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailQuery {
		return nil, ErrMockVector
	}

	results := make([]vector.QueryResult, 0)
	for _, doc := range m.documents {
		if doc.Scope != scope {
			continue
		}
		results = append(results, vector.QueryResult{
			Document: doc,
			Score:    vector.Cosine(embedding, doc.Embedding),
		})
	}
	return vector.Top(results, topK), nil
}

func (m *MockVectorDriver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var docs []vector.Document
	for _, id := range ids {
		if i := m.indexOf(id); i >= 0 {
			docs = append(docs, m.documents[i])
		}
	}
	return docs, nil
}

// Documents returns a copy of everything stored so far.
func (m *MockVectorDriver) Documents() []vector.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]vector.Document(nil), m.documents...)
}

func (m *MockVectorDriver) SetFailAdd(fail bool) {
	m.mu.Lock()
	m.FailAdd = fail
	m.mu.Unlock()
}

func (m *MockVectorDriver) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

func (m *MockVectorDriver) indexOf(id string) int {
	for i, doc := range m.documents {
		if doc.ID == id {
			return i
		}
	}
	return -1
}
