package domain

import (
	"errors"
	"fmt"
	"strings"
)

type Stage string

const (
	StageConfig    Stage = "config"
	StageHealth    Stage = "health"
	StageExport    Stage = "export"
	StageUpload    Stage = "upload"
	StageLocate    Stage = "locate"
	StageDownload  Stage = "download"
	StageIntegrity Stage = "integrity"
	StageRestore   Stage = "restore"
	StageVerify    Stage = "verify"
)

// Kind classifies a failure. Each fatal kind maps to its own exit code.
type Kind string

const (
	KindConfig       Kind = "ConfigError"
	KindHealth       Kind = "HealthCheckFailure"
	KindExport       Kind = "ExportError"
	KindTransfer     Kind = "TransferError"
	KindNotFound     Kind = "NotFoundError"
	KindIntegrity    Kind = "IntegrityError"
	KindRestoreApply Kind = "RestoreApplyError"
	KindMismatch     Kind = "MismatchWarning"
)

const (
	ExitOK           = 0
	ExitUnknown      = 1
	ExitConfig       = 2
	ExitHealth       = 3
	ExitExport       = 4
	ExitTransfer     = 5
	ExitNotFound     = 6
	ExitIntegrity    = 7
	ExitRestoreApply = 8
)

var exitCodes = map[Kind]int{
	KindConfig:       ExitConfig,
	KindHealth:       ExitHealth,
	KindExport:       ExitExport,
	KindTransfer:     ExitTransfer,
	KindNotFound:     ExitNotFound,
	KindIntegrity:    ExitIntegrity,
	KindRestoreApply: ExitRestoreApply,
	KindMismatch:     ExitOK,
}

// Sentinels for errors.Is against a StageError of the matching kind.
var (
	ErrConfig       = errors.New("configuration error")
	ErrHealth       = errors.New("health check failure")
	ErrExport       = errors.New("export error")
	ErrTransfer     = errors.New("transfer error")
	ErrNotFound     = errors.New("not found")
	ErrIntegrity    = errors.New("integrity error")
	ErrRestoreApply = errors.New("restore apply error")

	ErrChecksumMismatch = errors.New("checksum mismatch")
)

var kindSentinels = map[Kind]error{
	KindConfig:       ErrConfig,
	KindHealth:       ErrHealth,
	KindExport:       ErrExport,
	KindTransfer:     ErrTransfer,
	KindNotFound:     ErrNotFound,
	KindIntegrity:    ErrIntegrity,
	KindRestoreApply: ErrRestoreApply,
}

// StageError is the failure outcome of a pipeline stage. Command holds a
// secret-free rendition of the external command that failed, if any.
type StageError struct {
	Stage   Stage
	Kind    Kind
	Cause   error
	Command string
}

func NewError(kind Kind, cause error) *StageError {
	return &StageError{Kind: kind, Cause: cause}
}

func (e *StageError) Error() string {
	var b strings.Builder
	if e.Stage != "" {
		fmt.Fprintf(&b, "%s: ", e.Stage)
	}
	b.WriteString(string(e.Kind))
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if e.Command != "" {
		fmt.Fprintf(&b, " (command: %s)", e.Command)
	}
	return b.String()
}

func (e *StageError) Unwrap() error { return e.Cause }

func (e *StageError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

func (e *StageError) ExitCode() int {
	if code, ok := exitCodes[e.Kind]; ok {
		return code
	}
	return ExitUnknown
}

// ExitCode maps any error returned by a pipeline to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.ExitCode()
	}
	return ExitUnknown
}

// CommandError is returned by adapters that run external tools.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, out)
}

func (e *CommandError) Unwrap() error { return e.Err }

// CommandOf extracts the command rendition carried by err, if any.
func CommandOf(err error) string {
	var se *StageError
	if errors.As(err, &se) && se.Command != "" {
		return se.Command
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Command
	}
	return ""
}

// MismatchWarning reports a restored table inventory that differs from the
// one captured at backup time. It never fails a run.
type MismatchWarning struct {
	Missing    []string
	Unexpected []string
}

func (w *MismatchWarning) Error() string {
	return fmt.Sprintf("table inventory mismatch: missing [%s], unexpected [%s]",
		strings.Join(w.Missing, ", "), strings.Join(w.Unexpected, ", "))
}
