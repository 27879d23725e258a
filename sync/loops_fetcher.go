package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/carlmjohnson/requests"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// trpcDataPath is where the tRPC endpoints put the procedure result.
const trpcDataPath = "result.data.json"

// LoopsFetcher handles all Loops API operations.
// It embeds *SyncContext for shared sync configuration.
type LoopsFetcher struct {
	*SyncContext
}

func (l LoopsFetcher) builder(url string, api string, client *http.Client) *requests.Builder {
	result := requests.
		URL(url).
		Client(client).
		AddValidator(checkLoopsStatus)
	if l.RecordRequests {
		result = result.Transport(requests.Record(nil, fmt.Sprintf("testdata/.requests/%s/%s", l.RunID, api)))
	}
	return result
}

// AppAPIBuilder returns a new requests.Builder for a tRPC procedure of the Loops web app.
// These endpoints authenticate with the session cookie.
func (l LoopsFetcher) AppAPIBuilder(procedure string) *requests.Builder {
	return l.builder(joinEndpoint(l.Config.API.Endpoints.App, procedure), "app", &http.Client{Timeout: HTTPRequestTimeout}).
		Header("cookie", l.Config.API.Keys.Session)
}

// PublicAPIBuilder returns a new requests.Builder for the public Loops REST API.
func (l LoopsFetcher) PublicAPIBuilder(path string) *requests.Builder {
	return l.builder(joinEndpoint(l.Config.API.Endpoints.Public, path), "public", &http.Client{Timeout: HTTPRequestTimeout}).
		Bearer(l.Config.API.Keys.Loops)
}

// FetchCustomFields lists the account's custom contact fields.
func (l LoopsFetcher) FetchCustomFields(ctx context.Context) ([]FieldDescriptor, error) {
	var json string
	err := l.PublicAPIBuilder("contacts/customFields").
		ToString(&json).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch loops custom fields %w", err)
	}
	return ParseCustomFields(json)
}

// ParseCustomFields reads a custom fields response, a json array of {key, label, type}.
func ParseCustomFields(json string) ([]FieldDescriptor, error) {
	if !gjson.Valid(json) {
		log.Errorf("Invalid Loops custom fields response:\n%s", json)
		return nil, fmt.Errorf("%w: custom fields response is not valid json", ErrUpstreamProtocol)
	}
	parsed := gjson.Parse(json)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: custom fields response is not a list", ErrUpstreamProtocol)
	}
	var result []FieldDescriptor
	for i, v := range parsed.Array() {
		key := v.Get("key")
		if key.Type != gjson.String || key.String() == "" {
			return nil, fmt.Errorf("%w: custom field %d is missing its key", ErrUpstreamProtocol, i)
		}
		tag := v.Get("type")
		if !tag.Exists() {
			return nil, fmt.Errorf("%w: custom field %q is missing its type", ErrUpstreamProtocol, key.String())
		}
		canonical, err := NormalizeName(key.String())
		if err != nil {
			return nil, fmt.Errorf("%w: custom field %d %w", ErrUpstreamProtocol, i, err)
		}
		result = append(result, FieldDescriptor{
			Canonical: canonical,
			External:  key.String(),
			Type:      ParseLoopsFieldType(tag.String()),
		})
	}
	return result, nil
}

// CreateExport asks Loops to start a full audience export and returns the export id.
func (l LoopsFetcher) CreateExport(ctx context.Context) (string, error) {
	body, err := sjson.SetRaw("", "json.filter", "null")
	if err == nil {
		body, err = sjson.Set(body, "json.mailingListId", "")
	}
	if err != nil {
		return "", err
	}

	var json string
	err = l.AppAPIBuilder("lists.exportContacts").
		Post().
		BodyBytes([]byte(body)).
		ContentType("application/json").
		ToString(&json).
		Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to request loops export %w", err)
	}

	id := gjson.Get(json, trpcDataPath+".id")
	if !id.Exists() || id.String() == "" {
		log.Errorf("Loops export response is missing an export id:\n%s", json)
		return "", fmt.Errorf("%w: missing export id", ErrExportInitiation)
	}
	return id.String(), nil
}

// FetchExportStatus reads the status of an export. A missing status is returned as empty.
func (l LoopsFetcher) FetchExportStatus(id string, ctx context.Context) (ExportStatus, error) {
	input, err := sjson.Set("", "json.id", id)
	if err != nil {
		return "", err
	}

	var json string
	err = l.AppAPIBuilder("audienceDownload.getAudienceDownload").
		Param("input", input).
		ContentType("application/json").
		ToString(&json).
		Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to check loops export status %w", err)
	}
	if !gjson.Valid(json) {
		log.Errorf("Invalid Loops export status response:\n%s", json)
		return "", fmt.Errorf("%w: export status response is not valid json", ErrUpstreamProtocol)
	}
	return ExportStatus(gjson.Get(json, trpcDataPath+".status").String()), nil
}

// SignExport exchanges a completed export id for a time limited download url.
func (l LoopsFetcher) SignExport(id string, ctx context.Context) (string, error) {
	body, err := sjson.Set("", "json.id", id)
	if err != nil {
		return "", err
	}

	var json string
	err = l.AppAPIBuilder("audienceDownload.signs3Url").
		Post().
		BodyBytes([]byte(body)).
		ContentType("application/json").
		ToString(&json).
		Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to sign loops export %w", err)
	}

	url := gjson.Get(json, trpcDataPath+".presignedUrl")
	if !url.Exists() || url.String() == "" {
		log.Errorf("Loops sign response is missing a presigned url:\n%s", json)
		return "", ErrExportSigning
	}
	return url.String(), nil
}

// FetchAudience downloads the export csv and hands the body to handle while the connection is open.
// The presigned url carries its own credentials so no Loops credential is sent.
func (l LoopsFetcher) FetchAudience(url string, handle func(body io.Reader) error, ctx context.Context) error {
	err := l.builder(url, "download", downloadClient()).
		Handle(func(res *http.Response) error {
			return handle(res.Body)
		}).
		Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to download loops audience %w", err)
	}
	return nil
}
