package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Runner executes a host command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// lsblkArgs asks for whole disks only (-d), sizes in bytes (-b), JSON output (-J).
// The device path is built from NAME because the PATH column needs util-linux 2.33.
var lsblkArgs = []string{"-J", "-b", "-d", "-o", "NAME,SIZE,RM,TYPE,MODEL,VENDOR,TRAN"}

// LsblkEnumerator lists devices by running util-linux lsblk.
type LsblkEnumerator struct {
	run Runner
}

// NewLsblkEnumerator creates an lsblk backend. A nil runner executes the real binary.
func NewLsblkEnumerator(run Runner) *LsblkEnumerator {
	if run == nil {
		run = execRunner
	}
	return &LsblkEnumerator{run: run}
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// ListRemovable implements Enumerator.
func (l *LsblkEnumerator) ListRemovable(ctx context.Context) ([]Descriptor, error) {
	slog.Debug("lsblk_exec", "args", lsblkArgs)

	out, err := l.run(ctx, "lsblk", lsblkArgs...)
	if err != nil {
		slog.Error("lsblk_exec_failed", "error", err)
		return nil, unavailable(BackendLsblk, err)
	}

	devices, err := parseLsblk(out)
	if err != nil {
		slog.Error("lsblk_parse_failed", "error", err)
		return nil, parseFailure(BackendLsblk, err)
	}

	return removableOnly(BackendLsblk, devices), nil
}

type lsblkOutput struct {
	BlockDevices []lsblkDevice `json:"blockdevices"`
}

type lsblkDevice struct {
	Name   string   `json:"name"`
	Size   flexUint `json:"size"`
	RM     flexBool `json:"rm"`
	Type   string   `json:"type"`
	Model  string   `json:"model"`
	Vendor string   `json:"vendor"`
	Tran   string   `json:"tran"`
}

// parseLsblk decodes lsblk -J output. Only entries of type "disk" are returned;
// removability filtering happens in removableOnly.
func parseLsblk(data []byte) ([]Descriptor, error) {
	var out lsblkOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out.BlockDevices == nil {
		return nil, fmt.Errorf("missing blockdevices in lsblk output")
	}

	devices := make([]Descriptor, 0, len(out.BlockDevices))
	for _, d := range out.BlockDevices {
		if d.Type != "disk" {
			continue
		}
		if d.Name == "" {
			return nil, fmt.Errorf("lsblk entry without name")
		}
		devices = append(devices, Descriptor{
			Identifier: filepath.Join("/dev", d.Name),
			Label:      buildLabel(d.Name, d.Vendor, d.Model, d.Tran),
			SizeBytes:  uint64(d.Size),
			Removable:  bool(d.RM),
		})
	}
	return devices, nil
}

// flexBool accepts the boolean forms emitted by different lsblk versions:
// true/false, "1"/"0" and 1/0.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch s {
	case "true", "1":
		*b = true
	case "false", "0", "null", "":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// flexUint accepts sizes as JSON numbers or quoted decimal strings.
type flexUint uint64

func (u *flexUint) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %s: %w", data, err)
	}
	*u = flexUint(v)
	return nil
}
