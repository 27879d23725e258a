package sync

import (
	"fmt"
	"time"

	"go.uber.org/config"
)

type Config struct {
	API    APISettings
	Export ExportSettings
	Sync   SyncSettings
}

type APISettings struct {
	// Keys are never read from yaml, they come from the host configuration.
	Keys struct {
		Session string `yaml:"-"`
		Loops   string `yaml:"-"`
	} `yaml:"-"`
	Endpoints struct {
		App    string // tRPC endpoints used by the Loops web app (export, poll, sign)
		Public string // public REST API (custom fields)
	}
}

// ExportSettings bound the export status poll.
type ExportSettings struct {
	PollInterval    time.Duration `yaml:"pollInterval"`
	MaxPollAttempts int           `yaml:"maxPollAttempts"`
	PollTimeout     time.Duration `yaml:"pollTimeout"`
}

type SyncSettings struct {
	BatchSize int    `yaml:"batchSize"`
	Table     string `yaml:"table"`
}

func (c Config) Validate() error {
	var problems []string
	if c.API.Endpoints.App == "" {
		problems = append(problems, "api.endpoints.app is empty")
	}
	if c.API.Endpoints.Public == "" {
		problems = append(problems, "api.endpoints.public is empty")
	}
	if c.Export.PollInterval <= 0 {
		problems = append(problems, fmt.Sprintf("export.pollInterval must be positive, have %s", c.Export.PollInterval))
	}
	if c.Export.MaxPollAttempts <= 0 {
		problems = append(problems, fmt.Sprintf("export.maxPollAttempts must be positive, have %d", c.Export.MaxPollAttempts))
	}
	if c.Export.PollTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("export.pollTimeout must be positive, have %s", c.Export.PollTimeout))
	}
	if c.Sync.BatchSize <= 0 {
		problems = append(problems, fmt.Sprintf("sync.batchSize must be positive, have %d", c.Sync.BatchSize))
	}
	if c.Sync.Table == "" {
		problems = append(problems, "sync.table is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrConfiguration, problems)
	}
	return nil
}

// CompositeEnvVar resolves ${KEY:default} references in settings files.
type CompositeEnvVar interface {
	LookupEnv(child string) (string, bool)
}

type YAMLConfigUnmarshaler struct{}

func (u YAMLConfigUnmarshaler) Unmarshal(compev CompositeEnvVar, sources ...SettingsFile) (Config, error) {
	var result Config
	var options []config.YAMLOption
	for _, s := range sources {
		if s.Length > 0 {
			options = append(options, config.Source(s.Reader))
		}
	}
	options = append(options, config.Expand(compev.LookupEnv))
	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml config %w", err)
	}
	readError := func(key string, cause error) error {
		return fmt.Errorf("failed to read '%s' from yaml config %w", key, cause)
	}
	key := "api.endpoints"
	err = yaml.Get(key).Populate(&result.API.Endpoints)
	if err != nil {
		return result, readError(key, err)
	}
	key = "export"
	err = yaml.Get(key).Populate(&result.Export)
	if err != nil {
		return result, readError(key, err)
	}
	key = "sync"
	if yaml.Get(key).HasValue() {
		err = yaml.Get(key).Populate(&result.Sync)
		if err != nil {
			return result, readError(key, err)
		}
	}
	return result, nil
}
