package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/semmidev/dumpcycle/internal/domain"
)

const tracerName = "github.com/semmidev/dumpcycle/internal/usecase"

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// Recorder receives run measurements. The metrics package satisfies it.
type Recorder interface {
	ObserveStage(mode, stage string, d time.Duration, err error)
	ObserveArtifact(mode, kind string, size int64)
	ObserveRun(mode, status string, finished time.Time)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, string, time.Duration, error) {}
func (nopRecorder) ObserveArtifact(string, string, int64)             {}
func (nopRecorder) ObserveRun(string, string, time.Time)              {}

// Observers are the side channels every workflow reports through.
type Observers struct {
	Logger   Logger
	Notifier domain.Notifier
	Recorder Recorder
}

// run carries the state of one pipeline invocation.
type run struct {
	mode     domain.Mode
	logger   Logger
	notifier domain.Notifier
	recorder Recorder
	tracer   trace.Tracer
	report   *domain.Report
}

func newRun(mode domain.Mode, schema, bucket string, obs Observers) *run {
	r := &run{
		mode:     mode,
		logger:   obs.Logger,
		notifier: obs.Notifier,
		recorder: obs.Recorder,
		tracer:   otel.Tracer(tracerName),
		report:   domain.NewReport(mode, schema, bucket),
	}
	if r.recorder == nil {
		r.recorder = nopRecorder{}
	}
	return r
}

func (r *run) start(ctx context.Context) (context.Context, trace.Span) {
	r.logger.Infof("[%s] run %s started for schema %s", r.mode, r.report.RunID, r.report.Schema)
	return r.tracer.Start(ctx, "dumpcycle."+string(r.mode), trace.WithAttributes(
		attribute.String("dumpcycle.run_id", r.report.RunID),
		attribute.String("dumpcycle.schema", r.report.Schema),
		attribute.String("dumpcycle.bucket", r.report.Bucket),
	))
}

// stage runs fn as one named pipeline step. Errors that are not already
// classified become a StageError of kind.
func (r *run) stage(ctx context.Context, stage domain.Stage, kind domain.Kind, fn func(context.Context) error) error {
	ctx, span := r.tracer.Start(ctx, string(stage))
	defer span.End()

	r.logger.Infof("[%s] stage %s started", r.mode, stage)
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		err = classify(stage, kind, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
	}
	r.recorder.ObserveStage(string(r.mode), string(stage), elapsed, err)
	r.report.AddStage(stage, elapsed, err)

	if err != nil {
		r.logger.Errorf("[%s] stage %s failed after %s", r.mode, stage, elapsed.Round(time.Millisecond))
		return err
	}
	r.logger.Infof("[%s] stage %s finished in %s", r.mode, stage, elapsed.Round(time.Millisecond))
	return nil
}

func classify(stage domain.Stage, kind domain.Kind, err error) error {
	var se *domain.StageError
	if errors.As(err, &se) {
		if se.Stage == "" {
			se.Stage = stage
		}
		if se.Command == "" {
			se.Command = domain.CommandOf(se.Cause)
		}
		return se
	}
	return &domain.StageError{
		Stage:   stage,
		Kind:    kind,
		Cause:   err,
		Command: domain.CommandOf(err),
	}
}

// fail logs, notifies and records a fatal error, then hands it back.
func (r *run) fail(ctx context.Context, err error) error {
	var se *domain.StageError
	if errors.As(err, &se) {
		r.logger.Errorf("[%s] %s failed (%s): %v", r.mode, se.Stage, se.Kind, se.Cause)
		if se.Command != "" {
			r.logger.Errorf("[%s] failing command: %s", r.mode, se.Command)
		}
	} else {
		r.logger.Errorf("[%s] run failed: %v", r.mode, err)
	}

	r.report.Fail(err)
	r.recorder.ObserveRun(string(r.mode), string(r.report.Status), r.report.FinishedAt)
	r.notify(ctx, r.failureBody())
	return err
}

func (r *run) succeed(ctx context.Context) {
	r.report.Succeed()
	r.recorder.ObserveRun(string(r.mode), string(r.report.Status), r.report.FinishedAt)
	r.logger.Infof("[%s] %s Operation finished in %s", r.mode, modeTitle(r.mode),
		r.report.FinishedAt.Sub(r.report.StartedAt).Round(time.Second))
	r.notify(ctx, r.successBody())
}

// notify never fails the run. Delivery is attempted even after cancellation.
func (r *run) notify(ctx context.Context, body string) {
	if r.notifier == nil {
		return
	}
	subject := modeTitle(r.mode) + " Notification"
	if err := r.notifier.Notify(context.WithoutCancel(ctx), subject, body); err != nil {
		r.logger.Warnf("[%s] notification failed: %v", r.mode, err)
	}
}

func (r *run) successBody() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Operation finished\n\n", modeTitle(r.mode))
	r.writeSummary(&b)
	for _, a := range r.report.Artifacts {
		fmt.Fprintf(&b, "artifact: %s\n", a.RemoteKey)
	}
	if len(r.report.Warnings) > 0 {
		b.WriteString("\nWARNINGS:\n")
		for _, w := range r.report.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

func (r *run) failureBody() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Operation failed at stage %s\n\n", modeTitle(r.mode), r.report.Stage)
	r.writeSummary(&b)
	fmt.Fprintf(&b, "kind: %s\n", r.report.Kind)
	fmt.Fprintf(&b, "cause: %s\n", r.report.Error)
	if r.report.Command != "" {
		fmt.Fprintf(&b, "command: %s\n", r.report.Command)
	}
	fmt.Fprintf(&b, "exit code: %d\n", r.report.ExitCode)
	return b.String()
}

func (r *run) writeSummary(b *strings.Builder) {
	fmt.Fprintf(b, "run: %s\n", r.report.RunID)
	fmt.Fprintf(b, "schema: %s\n", r.report.Schema)
	fmt.Fprintf(b, "bucket: %s\n", r.report.Bucket)
}

func modeTitle(m domain.Mode) string {
	switch m {
	case domain.ModeBackup:
		return "Backup"
	case domain.ModeRestore:
		return "Restore"
	}
	return string(m)
}
