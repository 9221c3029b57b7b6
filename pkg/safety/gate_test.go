package safety

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/device"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/image"
)

var (
	testImage  = image.Remote("Raspberry Pi OS Lite (64-bit)", "https://downloads.example.com/raspios-lite.img")
	testDevice = device.Descriptor{Identifier: "/dev/sdb", Label: "SanDisk Ultra (usb)", SizeBytes: 32 << 30, Removable: true}
)

func TestConfirmApprovesOnlyExplicitYes(t *testing.T) {
	tests := []struct {
		name string
		ask  ConfirmFn
		want bool
	}{
		{"affirmative", AssumeYes, true},
		{"negative", Decline, false},
		{"prompt error", func(string) (bool, error) { return true, errors.New("tty closed") }, false},
		{"nil prompt", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Confirm(testImage, testDevice, tt.ask)
			if rec.Approved != tt.want {
				t.Errorf("expected approved=%v, got %v", tt.want, rec.Approved)
			}
			if rec.ImageName != testImage.DisplayName || rec.DeviceIdentifier != testDevice.Identifier {
				t.Errorf("record does not name the selection: %+v", rec)
			}
		})
	}
}

func TestConfirmMessageNamesImageAndDevice(t *testing.T) {
	var asked string
	Confirm(testImage, testDevice, func(q string) (bool, error) {
		asked = q
		return false, nil
	})

	for _, want := range []string{testImage.DisplayName, testDevice.Identifier, testDevice.Label, "IRRECOVERABLY OVERWRITTEN"} {
		if !strings.Contains(asked, want) {
			t.Errorf("message missing %q:\n%s", want, asked)
		}
	}
}

func TestMessageWarnsWhenImageTooLarge(t *testing.T) {
	small := testDevice
	small.SizeBytes = 1 << 20

	if msg := Message(testImage, small, 2<<20); !strings.Contains(msg, "WARNING") {
		t.Errorf("expected oversize warning:\n%s", msg)
	}
	if msg := Message(testImage, small, 1<<20); strings.Contains(msg, "WARNING") {
		t.Errorf("unexpected warning for an image that fits:\n%s", msg)
	}
	if msg := Message(testImage, small, image.SizeUnknown); strings.Contains(msg, "WARNING") {
		t.Errorf("unexpected warning for unknown size:\n%s", msg)
	}
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y", true},
		{"Y\n", true},
		{" yes ", true},
		{"YES", true},
		{"", false},
		{"\n", false},
		{"n", false},
		{"no", false},
		{"yep", false},
		{"oui", false},
		{"1", false},
	}

	for _, tt := range tests {
		if got := ParseAnswer(tt.in); got != tt.want {
			t.Errorf("ParseAnswer(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTerminalPrompt(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"yes without newline", "yes", true},
		{"enter takes default", "\n", false},
		{"no", "n\n", false},
		{"eof", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			ask := TerminalPrompt(bufio.NewReader(strings.NewReader(tt.input)), &out)

			rec := Confirm(testImage, testDevice, ask)
			if rec.Approved != tt.want {
				t.Errorf("expected approved=%v, got %v", tt.want, rec.Approved)
			}
			if !strings.Contains(out.String(), "[y/N]") {
				t.Errorf("prompt not shown: %q", out.String())
			}
		})
	}
}
