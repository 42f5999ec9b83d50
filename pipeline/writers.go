package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-stores/models"
)

// Stdout is the output name that selects standard output.
const Stdout = "-"

var (
	productHeader    = []string{"id", "title", "handle", "vendor", "product_type", "sku", "price", "compare_at_price", "currency", "available", "variants", "tags", "image", "url"}
	collectionHeader = []string{"id", "title", "handle", "product_count", "image", "url"}
)

// CSVWriter writes one row per product or collection. The header is chosen
// by the first write.
type CSVWriter struct {
	file    *os.File
	writer  *csv.Writer
	mu      sync.Mutex
	written int64
	header  bool
}

// NewCSVWriter opens filename (or stdout for "-") for CSV output.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	f, err := openOutput(filename, "csv")
	if err != nil {
		return nil, err
	}
	return &CSVWriter{
		file:   f,
		writer: csv.NewWriter(f),
	}, nil
}

// WriteProducts appends product rows.
func (cw *CSVWriter) WriteProducts(products []models.Product) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.writeHeader(productHeader); err != nil {
		return err
	}
	for _, p := range products {
		image := ""
		if len(p.Images) > 0 {
			image = p.Images[0].Src
		}
		record := []string{
			p.ID,
			p.Title,
			p.Handle,
			p.Vendor,
			p.ProductType,
			p.SKU,
			p.Price,
			p.CompareAtPrice,
			p.Currency,
			strconv.FormatBool(p.Available),
			strconv.Itoa(len(p.Variants)),
			strings.Join(p.Tags, ", "),
			image,
			p.URL,
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		cw.written++
	}
	return cw.flush()
}

// WriteCollections appends collection rows.
func (cw *CSVWriter) WriteCollections(collections []models.Collection) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.writeHeader(collectionHeader); err != nil {
		return err
	}
	for _, c := range collections {
		image := ""
		if c.Image != nil {
			image = c.Image.Src
		}
		record := []string{c.ID, c.Title, c.Handle, strconv.Itoa(c.ProductCount), image, c.URL}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		cw.written++
	}
	return cw.flush()
}

func (cw *CSVWriter) writeHeader(header []string) error {
	if cw.header {
		return nil
	}
	if err := cw.writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	cw.header = true
	return nil
}

func (cw *CSVWriter) flush() error {
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return closeOutput(cw.file)
}

// Validate ensures at least one record was written.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.written == 0 {
		return fmt.Errorf("csv output is empty")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
	written int64
}

// NewJSONWriter opens filename (or stdout for "-") for JSONL output.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	f, err := openOutput(filename, "json")
	if err != nil {
		return nil, err
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// WriteProducts appends one JSON line per product.
func (jw *JSONWriter) WriteProducts(products []models.Product) error {
	return writeLines(jw, products)
}

// WriteCollections appends one JSON line per collection.
func (jw *JSONWriter) WriteCollections(collections []models.Collection) error {
	return writeLines(jw, collections)
}

func writeLines[T any](jw *JSONWriter, items []T) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, item := range items {
		if err := jw.encoder.Encode(item); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.written++
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return closeOutput(jw.file)
}

// Validate ensures at least one record was written.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.written == 0 {
		return fmt.Errorf("json output is empty")
	}
	return nil
}

func openOutput(filename, kind string) (*os.File, error) {
	if filename == "" || filename == Stdout {
		return os.Stdout, nil
	}
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", kind, err)
	}
	return f, nil
}

func closeOutput(f *os.File) error {
	if f == os.Stdout {
		return nil
	}
	return f.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

// NewWriter builds the writer for format: "csv", "json" or "dual". Dual
// output derives "<base>.csv" and "<base>.jsonl" from filename.
func NewWriter(format, filename string) (OutputWriter, error) {
	switch format {
	case "csv":
		w, err := NewCSVWriter(filename)
		if err != nil {
			return nil, err
		}
		return w, nil
	case "json", "":
		w, err := NewJSONWriter(filename)
		if err != nil {
			return nil, err
		}
		return w, nil
	case "dual":
		if filename == "" || filename == Stdout {
			return nil, fmt.Errorf("dual output needs a file name")
		}
		base := strings.TrimSuffix(filename, filepath.Ext(filename))
		w, err := NewMultiWriter(base+".csv", base+".jsonl")
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
