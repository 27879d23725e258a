package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
)

// ExportStatus is the status Loops reports for an export job.
type ExportStatus string

// ExportStatusComplete is the only status that ends polling.
const ExportStatusComplete ExportStatus = "Complete"

// ExportPhase is a state of the export protocol. Phases only move forward.
type ExportPhase int

const (
	ExportRequesting ExportPhase = iota
	ExportPolling
	ExportReady
	ExportSigned
)

func (p ExportPhase) String() string {
	switch p {
	case ExportRequesting:
		return "requesting"
	case ExportPolling:
		return "polling"
	case ExportReady:
		return "ready"
	case ExportSigned:
		return "signed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ExportJob is one export request, discarded once its download url is known.
type ExportJob struct {
	ID          string
	Status      ExportStatus
	DownloadURL string
	Checks      int
}

// ExportAPI is the part of the Loops API the export protocol needs.
type ExportAPI interface {
	CreateExport(ctx context.Context) (string, error)
	FetchExportStatus(id string, ctx context.Context) (ExportStatus, error)
	SignExport(id string, ctx context.Context) (string, error)
}

// ExportOrchestrator drives one export from request to signed download url.
type ExportOrchestrator struct {
	API    ExportAPI
	Policy ExportSettings
	// OnPhase, when set, is called on entering each phase. Polling is entered once per status check.
	OnPhase func(phase ExportPhase, job ExportJob)
	Logger log.FieldLogger
}

var errExportPending = errors.New("export is not complete")

// Run requests an export, waits for it to complete and signs it.
func (o ExportOrchestrator) Run(ctx context.Context) (ExportJob, error) {
	var job ExportJob
	logger := o.logger()

	o.enter(ExportRequesting, job)
	logger.Info("Requesting Loops export creation")
	id, err := o.API.CreateExport(ctx)
	if err != nil {
		return job, err
	}
	job.ID = id
	logger = logger.WithField("export_id", id)
	logger.Info("Loops export job created, polling until ready")

	if err := o.await(&job, logger, ctx); err != nil {
		return job, err
	}

	o.enter(ExportReady, job)
	logger.Info("Export is complete, retrieving the presigned download url")
	url, err := o.API.SignExport(job.ID, ctx)
	if err != nil {
		return job, err
	}
	job.DownloadURL = url
	o.enter(ExportSigned, job)
	return job, nil
}

// await polls until the export is complete. A wait always precedes a status check.
func (o ExportOrchestrator) await(job *ExportJob, logger log.FieldLogger, ctx context.Context) error {
	if err := sleepContext(ctx, o.Policy.PollInterval); err != nil {
		return err
	}
	_, err := backoff.Retry(ctx, func() (ExportStatus, error) {
		job.Checks++
		o.enter(ExportPolling, *job)
		status, err := o.API.FetchExportStatus(job.ID, ctx)
		if err != nil {
			return status, backoff.Permanent(err)
		}
		job.Status = status
		logger.WithFields(log.Fields{"status": status, "attempt": job.Checks}).Info("Checked Loops export status")
		if status != ExportStatusComplete {
			return status, errExportPending
		}
		return status, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(o.Policy.PollInterval)),
		backoff.WithMaxTries(uint(o.Policy.MaxPollAttempts)),
		backoff.WithMaxElapsedTime(o.Policy.PollTimeout),
	)
	if errors.Is(err, errExportPending) {
		logger.WithField("attempt", job.Checks).Error("Loops export did not complete in time")
		return fmt.Errorf("%w: export %s still %q after %d status checks", ErrExportTimeout, job.ID, job.Status, job.Checks)
	}
	return err
}

func (o ExportOrchestrator) enter(phase ExportPhase, job ExportJob) {
	if o.OnPhase != nil {
		o.OnPhase(phase, job)
	}
}

func (o ExportOrchestrator) logger() log.FieldLogger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.StandardLogger()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
