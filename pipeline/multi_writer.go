package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-stores/models"
)

type namedWriter struct {
	name string
	w    OutputWriter
}

// MultiWriter fans every write out to several outputs, in order. A failing
// output stops the write; Close and Validate visit all of them.
type MultiWriter struct {
	mu      sync.Mutex
	outputs []namedWriter
}

// NewMultiWriter opens one CSV and one JSON Lines output.
func NewMultiWriter(csvFilename, jsonFilename string) (*MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("open csv output: %w", err)
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		_ = csvWriter.Close()
		return nil, fmt.Errorf("open json output: %w", err)
	}
	return &MultiWriter{outputs: []namedWriter{
		{name: "csv", w: csvWriter},
		{name: "json", w: jsonWriter},
	}}, nil
}

func (m *MultiWriter) each(op string, fn func(OutputWriter) error, keepGoing bool) error {
	var errs []error
	for _, out := range m.outputs {
		if err := fn(out.w); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", out.name, op, err))
			if !keepGoing {
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (m *MultiWriter) WriteProducts(products []models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.each("write", func(w OutputWriter) error { return w.WriteProducts(products) }, false)
}

func (m *MultiWriter) WriteCollections(collections []models.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.each("write", func(w OutputWriter) error { return w.WriteCollections(collections) }, false)
}

func (m *MultiWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.each("close", OutputWriter.Close, true)
}

func (m *MultiWriter) Validate() error {
	return m.each("validate", OutputWriter.Validate, true)
}
