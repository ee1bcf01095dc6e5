package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-laptops/models"
)

// OutputWriter defines the interface for the interchange artifact.
type OutputWriter interface {
	Write(records models.RecordSet) error
	Close() error
	Validate() error
}

var csvHeader = []string{"Name", "Price", "Rating"}

// NewWriter builds the artifact writer for format. It returns nil for "none".
func NewWriter(format, filename string) (OutputWriter, error) {
	switch format {
	case "none":
		return nil, nil
	case "json":
		return NewJSONWriter(filename)
	case "csv":
		return NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".jsonl"
		return NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends records to the CSV output.
func (cw *CSVWriter) Write(records models.RecordSet) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, laptop := range records {
		row := []string{
			laptop.Name,
			strconv.FormatInt(laptop.Price, 10),
			strconv.FormatFloat(laptop.Rating, 'f', -1, 64),
		}
		if err := cw.writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
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
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// ReadCSV loads a record set previously written by CSVWriter.
func ReadCSV(filename string) (models.RecordSet, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(csvHeader)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, col := range csvHeader {
		if strings.TrimPrefix(header[i], "\ufeff") != col {
			return nil, fmt.Errorf("unexpected csv header %v, want %v", header, csvHeader)
		}
	}

	records := models.RecordSet{}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		price, err := strconv.ParseInt(row[1], 10, 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("csv line %d: invalid price %q", line, row[1])
		}
		rating, err := strconv.ParseFloat(row[2], 64)
		if err != nil || rating < 0 || rating > 5 {
			return nil, fmt.Errorf("csv line %d: invalid rating %q", line, row[2])
		}
		if strings.TrimSpace(row[0]) == "" {
			return nil, fmt.Errorf("csv line %d: empty name", line)
		}
		records = append(records, models.Laptop{Name: row[0], Price: price, Rating: rating})
	}
	return records, nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends records in JSONL format.
func (jw *JSONWriter) Write(records models.RecordSet) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, laptop := range records {
		if err := jw.encoder.Encode(laptop); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
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
	return jw.file.Close()
}

// Validate ensures the JSON file can be inspected. An empty run leaves an
// empty file, which is valid.
func (jw *JSONWriter) Validate() error {
	if _, err := jw.file.Stat(); err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	return nil
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
