package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"time"
)

// TimestampLayout is used for default artifact file names.
const TimestampLayout = "20060102_150405"

// DefaultFilename returns element_discovery_<YYYYMMDD_HHMMSS>.json for t.
func DefaultFilename(t time.Time) string {
	return fmt.Sprintf("element_discovery_%s.json", t.Format(TimestampLayout))
}

// Write encodes result as indented UTF-8 JSON. Non-ASCII text is written
// as-is and HTML characters are not escaped.
func Write(w io.Writer, result *Result) error {
	if result == nil {
		return fmt.Errorf("nil result")
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(result)
}

// Marshal returns the artifact bytes for result.
func Marshal(result *Result) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes result to dir/name, creating dir when absent, and returns the file path.
func Save(dir, name string, result *Result) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	data, err := Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// Load reads a report artifact.
func Load(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return Unmarshal(data)
}

// Unmarshal decodes artifact bytes. Missing category lists decode as empty lists.
func Unmarshal(data []byte) (*Result, error) {
	result := &Result{Elements: NewElements()}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	normalize(&result.Elements)
	return result, nil
}

// SameElements reports whether two results discovered identical elements.
// Timestamps and statistics are ignored.
func SameElements(a, b *Result) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(a.Elements, b.Elements)
}

func normalize(e *Elements) {
	if e.Inputs == nil {
		e.Inputs = make([]InputRecord, 0)
	}
	if e.Buttons == nil {
		e.Buttons = make([]ButtonRecord, 0)
	}
	if e.Links == nil {
		e.Links = make([]LinkRecord, 0)
	}
	if e.Forms == nil {
		e.Forms = make([]FormRecord, 0)
	}
	if e.Headings == nil {
		e.Headings = make([]HeadingRecord, 0)
	}
	if e.Images == nil {
		e.Images = make([]ImageRecord, 0)
	}
	if e.Interactive == nil {
		e.Interactive = make([]InteractiveRecord, 0)
	}
	for i := range e.Interactive {
		if e.Interactive[i].Options == nil {
			e.Interactive[i].Options = make([]string, 0)
		}
	}
}
