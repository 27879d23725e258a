package sync

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnector(t *testing.T, f *fakeLoops, opts ...ConnectorOption) *Connector {
	t.Helper()
	opts = append([]ConnectorOption{ConnectorWithConfigOptions(ConfigWithOverrides(f.settings()))}, opts...)
	connector, err := NewConnector(testConfiguration, opts...)
	require.NoError(t, err)
	return connector
}

func TestConnector_SchemaAndUpdate(t *testing.T) {
	f := newFakeLoops(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var phases []ExportPhase
	connector := newTestConnector(t, f,
		ConnectorWithClock(func() time.Time { return now }),
		ConnectorWithPhaseObserver(func(phase ExportPhase, job ExportJob) { phases = append(phases, phase) }),
	)
	ctx := context.Background()

	schemas, err := connector.Schema(ctx)
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "audience", schemas[0].Table)
	assert.Equal(t, []string{"email"}, schemas[0].PrimaryKey)
	assert.Equal(t, "NUMBER", schemas[0].ColumnTypes()["plan"])

	ops := &recordingOperations{}
	state, err := connector.Update(State{}, ops, ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, f.customFieldCalls, "custom fields are fetched once per connector")
	assert.Equal(t, 1, f.exportCalls)
	assert.Equal(t, 2, f.statusCalls)
	assert.Equal(t, 1, f.signCalls)
	assert.Equal(t, 1, f.downloadCalls)
	assert.Equal(t, []ExportPhase{ExportRequesting, ExportPolling, ExportPolling, ExportReady, ExportSigned}, phases)

	require.Len(t, ops.upserts, 3)
	emails := make([]string, len(ops.upserts))
	for i, r := range ops.upserts {
		emails[i] = r.Email()
	}
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, emails)
	assert.Equal(t, "2024-02-01T00:00:00.000+00:00", ops.upserts[0]["updated_at"])
	assert.Equal(t, true, ops.upserts[1]["unsubscribed"])
	assert.Equal(t, "", ops.upserts[1]["favorite_color"])
	assert.Nil(t, ops.upserts[1]["plan"])
	assert.Equal(t, "", ops.upserts[2]["first_name"])
	assert.Equal(t, float64(3), ops.upserts[2]["plan"])

	assert.Equal(t, []int64{2, 3}, counts(ops.checkpoints))
	assert.Equal(t, State{LastSync: now, RecordsProcessed: 3, RunID: connector.RunID}, state)
}

func TestConnector_UpdateEmptyAudience(t *testing.T) {
	f := newFakeLoops(t)
	f.csv = ""
	connector := newTestConnector(t, f)

	ops := &recordingOperations{}
	state, err := connector.Update(State{}, ops, context.Background())
	require.NoError(t, err)
	assert.Empty(t, ops.upserts)
	assert.Equal(t, []int64{0}, counts(ops.checkpoints))
	assert.Equal(t, int64(0), state.RecordsProcessed)
}

func TestConnector_ExportTimeout(t *testing.T) {
	f := newFakeLoops(t)
	f.statuses = []string{"Pending"}
	connector := newTestConnector(t, f)

	ops := &recordingOperations{}
	prior := State{RecordsProcessed: 10, RunID: "previous"}
	state, err := connector.Update(prior, ops, context.Background())
	assert.ErrorIs(t, err, ErrExportTimeout)
	assert.Equal(t, prior, state)
	assert.Equal(t, 5, f.statusCalls)
	assert.Zero(t, f.signCalls)
	assert.Empty(t, ops.calls)
}

func TestConnector_InvalidConfiguration(t *testing.T) {
	f := newFakeLoops(t)
	_, err := NewConnector(Configuration{LoopsAPIKeyKey: "key"}, ConnectorWithConfigOptions(ConfigWithOverrides(f.settings())))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), SessionCookieKey)
	assert.Zero(t, f.customFieldCalls)
}

type staticFields []FieldDescriptor

func (s staticFields) FetchCustomFields(ctx context.Context) ([]FieldDescriptor, error) {
	return s, nil
}

type stringDownloader string

func (s stringDownloader) FetchAudience(url string, handle func(body io.Reader) error, ctx context.Context) error {
	return handle(strings.NewReader(string(s)))
}

func TestConnector_CollidingCustomFieldsAreSkipped(t *testing.T) {
	connector, err := NewConnector(testConfiguration,
		ConnectorWithFieldFetcher(staticFields{
			{Canonical: "first_name", External: "first_name", Type: Number},
			{Canonical: "tier", External: "tier", Type: String},
			{Canonical: "tier", External: "Tier", Type: Boolean},
		}),
		ConnectorWithExportAPI(&fakeExportAPI{id: "exp_1", statuses: []ExportStatus{ExportStatusComplete}, url: "memory"}),
		ConnectorWithDownloader(stringDownloader("email,first_name,tier,Tier\na@example.com,7,gold,true\n")),
		ConnectorWithConfigOptions(ConfigWithOverrides(StringSettingsFile("test.yaml", "export:\n  pollInterval: 1ms\n"))),
	)
	require.NoError(t, err)

	schemas, err := connector.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"email":        "STRING",
		"first_name":   "STRING",
		"last_name":    "STRING",
		"created_at":   "UTC_DATETIME",
		"updated_at":   "UTC_DATETIME",
		"unsubscribed": "BOOLEAN",
		"tier":         "STRING",
	}, schemas[0].ColumnTypes())

	ops := &recordingOperations{}
	_, err = connector.Update(State{}, ops, context.Background())
	require.NoError(t, err)
	require.Len(t, ops.upserts, 1)
	assert.Equal(t, "gold", ops.upserts[0]["tier"])
	assert.Equal(t, "", ops.upserts[0]["first_name"])
}

type failingFields struct{}

func (failingFields) FetchCustomFields(ctx context.Context) ([]FieldDescriptor, error) {
	return nil, &LoopsError{StatusCode: 403, Message: "Forbidden"}
}

func TestConnector_CustomFieldsRejected(t *testing.T) {
	connector, err := NewConnector(testConfiguration, ConnectorWithFieldFetcher(failingFields{}))
	require.NoError(t, err)

	_, err = connector.Schema(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)

	_, err = connector.Update(State{}, &recordingOperations{}, context.Background())
	assert.True(t, errors.Is(err, ErrAuthentication))
}
