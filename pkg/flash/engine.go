package flash

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/errors"
)

// Engine streams jobs onto devices. It holds no per-flash state and never retries.
type Engine struct {
	opener Opener
}

// NewEngine creates an engine that acquires targets through opener. A nil opener uses
// ExclusiveOpener.
func NewEngine(opener Opener) *Engine {
	if opener == nil {
		opener = ExclusiveOpener{}
	}
	return &Engine{opener: opener}
}

// Flash copies job.Source onto job.Device in ChunkSize chunks, calling onProgress after
// every chunk that reaches the device. The source is closed and the target released on
// every return path. Cancellation is observed between chunks.
//
// Failures are returned as *Error wrapping ErrReadFailure, ErrWriteFailure,
// ErrSizeMismatch or ErrCanceled. Nothing is rolled back.
func (e *Engine) Flash(ctx context.Context, job *Job, onProgress ProgressFunc) (*Outcome, error) {
	if job == nil || job.Source == nil {
		return nil, stderrors.New("flash: job has no source")
	}
	if !job.state.CompareAndSwap(int32(StateIdle), int32(StateOpening)) {
		return nil, fmt.Errorf("flash: job for %s already %s", job.Device.Identifier, job.State())
	}

	src := job.Source
	defer src.Close()

	start := time.Now()
	total := job.BytesTotal()
	slog.Info("flash_started", "device", job.Device.Identifier, "bytes_total", total, "chunk_size", ChunkSize)

	target, err := e.opener.Open(job.Device.Identifier)
	if err != nil {
		return nil, e.fail(job, ErrWriteFailure, errors.Wrap(err, "failed to open device"))
	}
	defer func() {
		if cerr := target.Close(); cerr != nil {
			slog.Warn("flash_target_close_failed", "device", job.Device.Identifier, "error", cerr)
		}
	}()

	job.setState(StateStreaming)

	buf := make([]byte, ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(job, ErrCanceled, err)
		}

		n, rerr := io.ReadFull(src, buf)
		eof := stderrors.Is(rerr, io.EOF) || stderrors.Is(rerr, io.ErrUnexpectedEOF)
		if rerr != nil && !eof {
			return nil, e.fail(job, ErrReadFailure, rerr)
		}

		if n > 0 {
			w, werr := target.Write(buf[:n])
			if werr == nil && w < n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return nil, e.fail(job, ErrWriteFailure, werr)
			}

			written := job.written.Add(int64(n))
			slog.Debug("flash_chunk_written", "device", job.Device.Identifier, "chunk", n, "written", written)
			if onProgress != nil {
				onProgress(written, total)
			}
		}

		if eof {
			break
		}
	}

	if err := target.Sync(); err != nil {
		return nil, e.fail(job, ErrWriteFailure, errors.Wrap(err, "failed to sync device"))
	}

	written := job.BytesWritten()
	if total >= 0 && written != total {
		return nil, e.fail(job, ErrSizeMismatch, fmt.Errorf("read %d bytes, source reported %d", written, total))
	}

	job.setState(StateSuccess)
	outcome := &Outcome{TotalBytesWritten: written, Duration: time.Since(start)}
	slog.Info("flash_completed", "device", job.Device.Identifier, "bytes_written", written, "duration", outcome.Duration)
	return outcome, nil
}

func (e *Engine) fail(job *Job, kind, err error) error {
	job.setState(StateFailed)
	written := job.BytesWritten()
	slog.Error("flash_failed", "device", job.Device.Identifier, "kind", kind, "bytes_written", written, "error", err)
	return &Error{
		Kind:         kind,
		Device:       job.Device.Identifier,
		BytesWritten: written,
		Err:          err,
	}
}
