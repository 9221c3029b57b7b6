package commands

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestSelectOne(t *testing.T) {
	options := []string{"Raspberry Pi OS (64-bit)", "Ubuntu Server", "Custom OS (local file)"}

	tests := []struct {
		name    string
		input   string
		want    int
		wantErr error
	}{
		{"first", "1\n", 0, nil},
		{"last without newline", "3", 2, nil},
		{"retries out of range", "0\n9\n2\n", 1, nil},
		{"retries garbage", "ubuntu\n2\n", 1, nil},
		{"empty line", "\n", 0, errNoAnswer},
		{"end of input", "", 0, errNoAnswer},
		{"garbage then end of input", "x\n", 0, errNoAnswer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := selectOne(bufio.NewReader(strings.NewReader(tt.input)), &out, "Operating system", options)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if err == nil && got != tt.want {
				t.Errorf("expected index %d, got %d", tt.want, got)
			}
			if !strings.Contains(out.String(), " 3) Custom OS (local file)") {
				t.Errorf("options not listed: %q", out.String())
			}
		})
	}
}

func TestSelectOneNoOptions(t *testing.T) {
	_, err := selectOne(bufio.NewReader(strings.NewReader("1\n")), &bytes.Buffer{}, "Device", nil)
	if err == nil {
		t.Fatal("expected an error with no options")
	}
}

func TestPromptText(t *testing.T) {
	var out bytes.Buffer
	got, err := promptText(bufio.NewReader(strings.NewReader("  /tmp/os.img \n")), &out, "Image path")
	if err != nil {
		t.Fatalf("promptText failed: %v", err)
	}
	if got != "/tmp/os.img" {
		t.Errorf("expected trimmed path, got %q", got)
	}
	if out.String() != "Image path: " {
		t.Errorf("unexpected prompt %q", out.String())
	}
}
