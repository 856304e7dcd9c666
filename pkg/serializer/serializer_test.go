package serializer

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type testReport struct {
	ControlID string `json:"control_id" yaml:"control_id"`
	Valid     bool   `json:"valid" yaml:"valid"`
}

func TestFormatIsUnknown(t *testing.T) {
	tests := []struct {
		format Format
		want   bool
	}{
		{FormatYAML, false},
		{FormatJSON, false},
		{Format("table"), true},
		{Format(""), true},
	}
	for _, tt := range tests {
		if got := tt.format.IsUnknown(); got != tt.want {
			t.Errorf("IsUnknown(%q) = %v, want %v", tt.format, got, tt.want)
		}
	}
}

func TestSerializeJSON(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(FormatJSON, &buf)
	if err := w.Serialize(testReport{ControlID: "ac-3", Valid: true}); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	var got testReport
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	if got.ControlID != "ac-3" || !got.Valid {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("json output should end with a newline")
	}
}

func TestSerializeYAML(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(FormatYAML, &buf)
	if err := w.Serialize(testReport{ControlID: "au-2"}); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	var got testReport
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid yaml: %v", err)
	}
	if got.ControlID != "au-2" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestSerializeUnknownFormat(t *testing.T) {
	w := NewWriter(Format("table"), &bytes.Buffer{})
	if err := w.Serialize(testReport{}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	w, err := NewFileWriterOrStdout(FormatJSON, path)
	if err != nil {
		t.Fatalf("NewFileWriterOrStdout() error = %v", err)
	}
	if err := w.Serialize(testReport{ControlID: "cm-6"}); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "cm-6") {
		t.Errorf("unexpected file contents: %s", data)
	}
}
