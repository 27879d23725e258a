package sync

import (
	"context"
	"fmt"
	"io"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CustomFieldFetcher discovers the account's custom fields.
type CustomFieldFetcher interface {
	FetchCustomFields(ctx context.Context) ([]FieldDescriptor, error)
}

// AudienceDownloader streams a signed export to handle.
type AudienceDownloader interface {
	FetchAudience(url string, handle func(body io.Reader) error, ctx context.Context) error
}

// Connector adapts the sync components to the host calling convention, a schema call followed by update calls.
// The custom field lookup is made once per Connector and shared by Schema and Update.
type Connector struct {
	*SyncContext

	fields     CustomFieldFetcher
	exports    ExportAPI
	downloader AudienceDownloader
	now        func() time.Time
	onPhase    func(phase ExportPhase, job ExportJob)
	logger     *log.Entry

	mu       gosync.Mutex
	resolved *FieldSet
}

// connectorOptions holds optional configuration for NewConnector.
type connectorOptions struct {
	configOptions  []ConfigOption
	recordRequests bool
	fields         CustomFieldFetcher
	exports        ExportAPI
	downloader     AudienceDownloader
	now            func() time.Time
	onPhase        func(phase ExportPhase, job ExportJob)
}

// ConnectorOption is a functional option for configuring NewConnector.
type ConnectorOption func(*connectorOptions)

// ConnectorWithConfigOptions passes options through to LoadConfig.
func ConnectorWithConfigOptions(opts ...ConfigOption) ConnectorOption {
	return func(o *connectorOptions) {
		o.configOptions = append(o.configOptions, opts...)
	}
}

// ConnectorWithRecordRequests records all API traffic under testdata/.requests.
func ConnectorWithRecordRequests(record bool) ConnectorOption {
	return func(o *connectorOptions) {
		o.recordRequests = record
	}
}

// ConnectorWithFieldFetcher replaces the Loops custom fields lookup.
func ConnectorWithFieldFetcher(f CustomFieldFetcher) ConnectorOption {
	return func(o *connectorOptions) {
		o.fields = f
	}
}

// ConnectorWithExportAPI replaces the Loops export endpoints.
func ConnectorWithExportAPI(api ExportAPI) ConnectorOption {
	return func(o *connectorOptions) {
		o.exports = api
	}
}

// ConnectorWithDownloader replaces the export download.
func ConnectorWithDownloader(d AudienceDownloader) ConnectorOption {
	return func(o *connectorOptions) {
		o.downloader = d
	}
}

// ConnectorWithClock sets the clock used to stamp checkpoints.
func ConnectorWithClock(now func() time.Time) ConnectorOption {
	return func(o *connectorOptions) {
		o.now = now
	}
}

// ConnectorWithPhaseObserver is notified as the export moves through its phases.
func ConnectorWithPhaseObserver(fn func(phase ExportPhase, job ExportJob)) ConnectorOption {
	return func(o *connectorOptions) {
		o.onPhase = fn
	}
}

// NewConnector validates the host configuration and wires the sync components.
// A configuration error is returned before any network call is made.
func NewConnector(configuration Configuration, opts ...ConnectorOption) (*Connector, error) {
	var options connectorOptions
	for _, opt := range opts {
		opt(&options)
	}

	config, err := LoadConfig(configuration, options.configOptions...)
	if err != nil {
		return nil, err
	}

	runID, err := uuid.NewV7()
	if err != nil {
		runID = uuid.New()
	}
	syncContext := &SyncContext{
		Config:         config,
		RunID:          runID.String(),
		RecordRequests: options.recordRequests,
	}
	fetcher := LoopsFetcher{SyncContext: syncContext}

	result := &Connector{
		SyncContext: syncContext,
		fields:      options.fields,
		exports:     options.exports,
		downloader:  options.downloader,
		now:         options.now,
		onPhase:     options.onPhase,
		logger:      log.WithField("run_id", syncContext.RunID),
	}
	if result.fields == nil {
		result.fields = fetcher
	}
	if result.exports == nil {
		result.exports = fetcher
	}
	if result.downloader == nil {
		result.downloader = fetcher
	}
	if result.now == nil {
		result.now = time.Now
	}
	return result, nil
}

// ResolveFields returns the standard and custom fields for this run, fetching custom fields on first use.
func (c *Connector) ResolveFields(ctx context.Context) (FieldSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved != nil {
		return *c.resolved, nil
	}

	custom, err := c.fields.FetchCustomFields(ctx)
	if err != nil {
		return FieldSet{}, err
	}
	result, dropped := NewFieldSet(custom)
	for _, f := range dropped {
		c.logger.WithFields(log.Fields{"field": f.External, "canonical": f.Canonical}).
			Warn("Skipping custom field whose name collides with another field")
	}
	c.logger.WithField("custom_fields", len(result.ByCanonical)).Info("Resolved Loops custom fields")
	c.resolved = &result
	return result, nil
}

// Schema declares the audience table.
func (c *Connector) Schema(ctx context.Context) ([]TableSchema, error) {
	fields, err := c.ResolveFields(ctx)
	if err != nil {
		return nil, err
	}
	return []TableSchema{AudienceSchema(c.Config.Sync.Table, fields)}, nil
}

// Update runs one full sync into ops and returns the final checkpoint.
// The prior state is only logged, every run re-exports the whole audience.
func (c *Connector) Update(state State, ops Operations, ctx context.Context) (State, error) {
	logger := c.logger
	if !state.IsZero() {
		logger.WithFields(log.Fields{"last_sync": state.LastSync, "records_processed": state.RecordsProcessed}).
			Info("Starting Loops data sync, previous run checkpoint found")
	} else {
		logger.Info("Starting Loops data sync")
	}

	fields, err := c.ResolveFields(ctx)
	if err != nil {
		return state, err
	}

	job, err := ExportOrchestrator{
		API:     c.exports,
		Policy:  c.Config.Export,
		OnPhase: c.onPhase,
		Logger:  logger,
	}.Run(ctx)
	if err != nil {
		return state, err
	}

	result := state
	logger.Info("Downloading Loops audience csv")
	err = c.downloader.FetchAudience(job.DownloadURL, func(body io.Reader) error {
		decoder, err := NewRecordDecoder(body, fields)
		if err != nil {
			return err
		}
		driver := BatchedDriver{
			Table:     c.Config.Sync.Table,
			BatchSize: c.Config.Sync.BatchSize,
			RunID:     c.RunID,
			Now:       c.now,
			Logger:    logger,
		}
		result, err = driver.Run(decoder, ops, ctx)
		return err
	}, ctx)
	if err != nil {
		return result, fmt.Errorf("loops sync failed %w", err)
	}
	return result, nil
}
