package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExportAPI struct {
	id        string
	createErr error
	statuses  []ExportStatus
	statusErr error
	url       string
	signErr   error

	checks   int
	signedID string
}

func (f *fakeExportAPI) CreateExport(ctx context.Context) (string, error) {
	return f.id, f.createErr
}

func (f *fakeExportAPI) FetchExportStatus(id string, ctx context.Context) (ExportStatus, error) {
	if f.statusErr != nil {
		f.checks++
		return "", f.statusErr
	}
	i := f.checks
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.checks++
	return f.statuses[i], nil
}

func (f *fakeExportAPI) SignExport(id string, ctx context.Context) (string, error) {
	f.signedID = id
	return f.url, f.signErr
}

var testExportPolicy = ExportSettings{
	PollInterval:    time.Millisecond,
	MaxPollAttempts: 5,
	PollTimeout:     5 * time.Second,
}

func runExport(api ExportAPI, policy ExportSettings, ctx context.Context) (ExportJob, []ExportPhase, error) {
	logger, _ := test.NewNullLogger()
	var phases []ExportPhase
	job, err := ExportOrchestrator{
		API:     api,
		Policy:  policy,
		OnPhase: func(phase ExportPhase, job ExportJob) { phases = append(phases, phase) },
		Logger:  logger,
	}.Run(ctx)
	return job, phases, err
}

func TestExportOrchestrator_Complete(t *testing.T) {
	api := &fakeExportAPI{
		id:       "exp_123",
		statuses: []ExportStatus{"Pending", "Processing", ExportStatusComplete},
		url:      "https://s3.example.com/audience.csv?sig=abc",
	}
	job, phases, err := runExport(api, testExportPolicy, context.Background())
	require.NoError(t, err)

	assert.Equal(t, []ExportPhase{ExportRequesting, ExportPolling, ExportPolling, ExportPolling, ExportReady, ExportSigned}, phases)
	assert.Equal(t, ExportJob{
		ID:          "exp_123",
		Status:      ExportStatusComplete,
		DownloadURL: "https://s3.example.com/audience.csv?sig=abc",
		Checks:      3,
	}, job)
	assert.Equal(t, "exp_123", api.signedID)
}

func TestExportOrchestrator_CompleteOnFirstCheck(t *testing.T) {
	api := &fakeExportAPI{id: "exp_1", statuses: []ExportStatus{ExportStatusComplete}, url: "https://s3.example.com/a.csv"}
	job, phases, err := runExport(api, testExportPolicy, context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, job.Checks)
	assert.Equal(t, []ExportPhase{ExportRequesting, ExportPolling, ExportReady, ExportSigned}, phases)
}

func TestExportOrchestrator_StatusIsCaseSensitive(t *testing.T) {
	api := &fakeExportAPI{id: "exp_1", statuses: []ExportStatus{"complete"}}
	policy := testExportPolicy
	policy.MaxPollAttempts = 2
	_, _, err := runExport(api, policy, context.Background())
	assert.ErrorIs(t, err, ErrExportTimeout)
}

func TestExportOrchestrator_MaxAttempts(t *testing.T) {
	api := &fakeExportAPI{id: "exp_slow", statuses: []ExportStatus{"Pending"}}
	policy := testExportPolicy
	policy.MaxPollAttempts = 3

	job, phases, err := runExport(api, policy, context.Background())
	assert.ErrorIs(t, err, ErrExportTimeout)
	assert.Contains(t, err.Error(), "exp_slow")
	assert.Equal(t, 3, api.checks)
	assert.Equal(t, 3, job.Checks)
	assert.NotContains(t, phases, ExportReady)
	assert.Empty(t, api.signedID)
}

func TestExportOrchestrator_InitiationError(t *testing.T) {
	api := &fakeExportAPI{createErr: ErrExportInitiation}
	_, phases, err := runExport(api, testExportPolicy, context.Background())
	assert.ErrorIs(t, err, ErrExportInitiation)
	assert.Equal(t, []ExportPhase{ExportRequesting}, phases)
	assert.Zero(t, api.checks)
}

func TestExportOrchestrator_StatusErrorIsNotRetried(t *testing.T) {
	api := &fakeExportAPI{id: "exp_1", statusErr: &LoopsError{StatusCode: 401}}
	_, _, err := runExport(api, testExportPolicy, context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, 1, api.checks)
}

func TestExportOrchestrator_SigningError(t *testing.T) {
	api := &fakeExportAPI{id: "exp_1", statuses: []ExportStatus{ExportStatusComplete}, signErr: ErrExportSigning}
	_, phases, err := runExport(api, testExportPolicy, context.Background())
	assert.ErrorIs(t, err, ErrExportSigning)
	assert.Equal(t, ExportReady, phases[len(phases)-1])
}

func TestExportOrchestrator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	api := &fakeExportAPI{id: "exp_1", statuses: []ExportStatus{ExportStatusComplete}}
	policy := testExportPolicy
	policy.PollInterval = time.Hour

	_, _, err := runExport(api, policy, ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, api.checks)
}

func TestExportPhase_String(t *testing.T) {
	assert.Equal(t, "requesting", ExportRequesting.String())
	assert.Equal(t, "polling", ExportPolling.String())
	assert.Equal(t, "ready", ExportReady.String())
	assert.Equal(t, "signed", ExportSigned.String())
	assert.Equal(t, "phase(9)", ExportPhase(9).String())
}
