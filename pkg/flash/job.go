// Package flash copies an image byte-for-byte onto a raw block device.
package flash

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/device"
)

// ChunkSize is the fixed number of bytes moved per read/write cycle. Memory use of a
// flash is bounded by one chunk regardless of image size.
const ChunkSize = 1 << 20

// State is a position in the flash state machine.
type State int32

const (
	StateIdle State = iota
	StateOpening
	StateStreaming
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// Source is the readable side of a flash. Size returns -1 when the length is unknown.
type Source interface {
	io.Reader
	io.Closer
	Size() int64
}

// Job is one flash of Source onto Device. The engine owns the job, and the source,
// from the moment Flash is called. A Job is single use.
type Job struct {
	Source Source
	Device device.Descriptor

	state   atomic.Int32
	written atomic.Int64
}

// NewJob creates an idle job.
func NewJob(src Source, dev device.Descriptor) *Job {
	return &Job{Source: src, Device: dev}
}

// State returns the current state. Safe to call while a flash is running.
func (j *Job) State() State {
	return State(j.state.Load())
}

// BytesWritten returns the bytes committed to the device so far. It never decreases.
func (j *Job) BytesWritten() int64 {
	return j.written.Load()
}

// BytesTotal returns the source length, or -1 if unknown.
func (j *Job) BytesTotal() int64 {
	if j.Source == nil {
		return -1
	}
	return j.Source.Size()
}

func (j *Job) setState(s State) {
	j.state.Store(int32(s))
}

// ProgressFunc receives the running byte count after every chunk. total is -1 when the
// source length is unknown.
type ProgressFunc func(written, total int64)

// Outcome describes a successful flash.
type Outcome struct {
	TotalBytesWritten int64
	Duration          time.Duration
}
