//go:build unix

package taskio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wwqgtxx/fdsplice/monitor"
	"github.com/wwqgtxx/fdsplice/task"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

const DefaultBufferSize = 64 * 1024

// Backend selects how a pump stages bytes.
type Backend string

const (
	// BackendAuto uses splice where the kernel supports it and the buffer
	// otherwise.
	BackendAuto   Backend = "auto"
	BackendSplice Backend = "splice"
	BackendBuffer Backend = "buffer"
)

// ParseBackend validates a backend name. The empty string means BackendAuto.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(s)); b {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendSplice, BackendBuffer:
		return b, nil
	default:
		return "", fmt.Errorf("unknown splice backend %q", s)
	}
}

// SpliceError reports why each direction of a session stopped. A nil field
// means that direction was still healthy when the session ended.
type SpliceError struct {
	Forward  error
	Backward error
}

func (e *SpliceError) Error() string {
	return fmt.Sprintf("splice ended: forward: %v, backward: %v", e.Forward, e.Backward)
}

func (e *SpliceError) Unwrap() []error {
	var errs []error
	for _, err := range [...]error{e.Forward, e.Backward} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

type pumpFactory func(t *task.Task, size int, role monitor.Role) (pump, error)

// Splicer holds the settings shared by all sessions. The zero value uses
// BackendAuto, records no throughput and does not log.
type Splicer struct {
	Backend Backend
	// Monitor receives the bytes written by each pump. May be nil.
	Monitor *monitor.Monitor
	// StopOnEOF makes the buffer backend end a direction on a zero-byte read
	// instead of treating it as idle.
	StopOnEOF bool
	Logger    *zap.Logger

	newPump pumpFactory
}

// Splice runs a session with a zero Splicer.
func Splice(t *task.Task, aIn, aOut, bIn, bOut int, bufSize int, yielder task.Yielder) error {
	var s Splicer
	return s.Splice(t, aIn, aOut, bIn, bOut, bufSize, yielder)
}

// Splice copies aIn to bOut and bIn to aOut until a direction fails while the
// other has nothing to do, or until yielder asks to stop. Between turns it
// yields to t (or to yielder when not nil). Both pumps are released before
// Splice returns.
//
// The returned error is ErrCanceled after cancellation, a *SpliceError after
// the transfer ended, or the cause of a failed session setup.
func (s *Splicer) Splice(t *task.Task, aIn, aOut, bIn, bOut int, bufSize int, yielder task.Yielder) error {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	newPump, backend, err := s.factory()
	if err != nil {
		return err
	}

	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fields := []zap.Field{
		zap.String("backend", string(backend)),
		zap.Int("buffer-size", bufSize),
	}
	if session, err := uuid.NewV4(); err == nil {
		fields = append(fields, zap.Stringer("session", session))
	}
	logger.Info("splice init", fields...)

	forward, err := newPump(t, bufSize, monitor.RoleTarget)
	if err != nil {
		return err
	}
	defer forward.Close()
	backward, err := newPump(t, bufSize, monitor.RoleClient)
	if err != nil {
		return err
	}
	defer backward.Close()

	resF, resB := StatusIdle, StatusIdle
	var errF, errB error
	for {
		if resF != StatusFailed {
			resF, errF = forward.Pump(aIn, bOut)
		}
		if resB != StatusFailed {
			resB, errB = backward.Pump(bIn, aOut)
		}

		var yt task.YieldType
		switch {
		case resF == StatusProgressed || resB == StatusProgressed:
			yt = task.Yield
		case resF == StatusIdle && resB == StatusIdle:
			yt = task.WaitIO
		default:
			return &SpliceError{Forward: errF, Backward: errB}
		}

		if yielder != nil {
			if yielder(yt) {
				return ErrCanceled
			}
		} else {
			t.Yield(yt)
		}
	}
}

func (s *Splicer) factory() (pumpFactory, Backend, error) {
	if s.newPump != nil {
		return s.newPump, s.Backend, nil
	}
	backend, err := ParseBackend(string(s.Backend))
	if err != nil {
		return nil, "", err
	}
	if backend == BackendAuto {
		backend = BackendBuffer
		if spliceSupported {
			backend = BackendSplice
		}
	}
	switch backend {
	case BackendSplice:
		if !spliceSupported {
			return nil, "", fmt.Errorf("splice backend: %w", errors.ErrUnsupported)
		}
		return func(t *task.Task, size int, role monitor.Role) (pump, error) {
			p, err := newSplicePump(t, size, role, s.Monitor)
			if err != nil {
				return nil, err
			}
			return p, nil
		}, backend, nil
	default:
		return func(t *task.Task, size int, role monitor.Role) (pump, error) {
			p, err := newBufferPump(size, role, s.Monitor, s.StopOnEOF)
			if err != nil {
				return nil, err
			}
			return p, nil
		}, backend, nil
	}
}
