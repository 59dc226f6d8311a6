package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type hostProbe struct {
	Host string `validate:"host"`
}

type clockProbe struct {
	At string `validate:"clock"`
}

type fileProbe struct {
	Path string `validate:"omitempty,file"`
}

func TestIsHost(t *testing.T) {
	tests := []struct {
		host string
		ok   bool
	}{
		{"", true},
		{"localhost", true},
		{"api.dayloop.internal", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"0.0.0.0", true},
		{"bad host", false},
		{"-leading.example", false},
		{"trailing-.example", false},
		{"double..dot", false},
		{"under_score", false},
		{strings.Repeat("a", 64) + ".example", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			err := ValidateStruct(hostProbe{Host: tt.host})
			if (err == nil) != tt.ok {
				t.Errorf("host %q: err = %v, want ok=%v", tt.host, err, tt.ok)
			}
		})
	}
}

func TestIsClock(t *testing.T) {
	tests := []struct {
		at string
		ok bool
	}{
		{"00:00", true},
		{"06:30", true},
		{"23:59", true},
		{"24:00", false},
		{"7:00", false},
		{"noon", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.at, func(t *testing.T) {
			err := ValidateStruct(clockProbe{At: tt.at})
			if (err == nil) != tt.ok {
				t.Errorf("clock %q: err = %v, want ok=%v", tt.at, err, tt.ok)
			}
		})
	}
}

func TestFileTag(t *testing.T) {
	dir := t.TempDir()
	routine := filepath.Join(dir, "routine.yaml")
	if err := os.WriteFile(routine, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"empty", "", true},
		{"existing file", routine, true},
		{"missing file", filepath.Join(dir, "nope.yaml"), false},
		{"directory", dir, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(fileProbe{Path: tt.path})
			if (err == nil) != tt.ok {
				t.Fatalf("err = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !strings.Contains(err.Error(), "file does not exist") {
				t.Errorf("message = %q", err)
			}
		})
	}
}

func TestValidateStruct_Messages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	cfg.Simulation.DayStart = "noon"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	var details ValidationErrors
	if !errors.As(err, &details) {
		t.Fatalf("Validate() = %v, want ValidationErrors", err)
	}
	if len(details) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(details), details)
	}

	want := map[string]string{
		"Config.Server.Port":         "is required",
		"Config.Simulation.DayStart": "must be a time of day (HH:MM)",
		"Config.Log.Format":          "must be one of: json, text",
	}
	for _, d := range details {
		if msg, ok := want[d.Field]; !ok || msg != d.Message {
			t.Errorf("unexpected error %s: %s", d.Field, d.Message)
		}
	}
}

func TestValidateStruct_CrossFieldMessages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Simulation.DayEnd = "05:00"
	cfg.Metrics.Port = cfg.Server.Port

	var details ValidationErrors
	if !errors.As(cfg.Validate(), &details) || len(details) != 2 {
		t.Fatalf("details = %v", details)
	}
	msgs := details.Error()
	for _, want := range []string{
		"Config.Simulation.DayEnd: must be later than Simulation.DayStart (got 05:00)",
		"Config.Metrics.Port: must differ from Server.Port (got 8080)",
	} {
		if !strings.Contains(msgs, want) {
			t.Errorf("%q missing from\n%s", want, msgs)
		}
	}
}

func TestValidationErrors_Error(t *testing.T) {
	if got := (ValidationErrors{}).Error(); got != "no validation errors" {
		t.Errorf("empty Error() = %q", got)
	}

	errs := ValidationErrors{
		{Field: "Config.Server.Port", Message: "must be a port between 1 and 65535", Value: 70000},
		{Field: "Config.Log.Level", Message: "must be one of: debug, info, warn, error", Value: "loud"},
	}
	want := "configuration validation failed:\n" +
		"  - Config.Server.Port: must be a port between 1 and 65535 (got 70000)\n" +
		"  - Config.Log.Level: must be one of: debug, info, warn, error (got loud)"
	if got := errs.Error(); got != want {
		t.Errorf("Error() =\n%s\nwant\n%s", got, want)
	}
}
