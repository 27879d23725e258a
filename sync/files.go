package sync

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
)

//go:embed settings/*.yaml
var embeddedSettingsFS embed.FS

// DefaultSettings are the settings compiled into the binary.
var DefaultSettings = EmbeddedSettings{Root: "settings", Files: embeddedSettingsFS}

type SettingsFile struct {
	Name   string
	Reader io.Reader
	Length int
}

type EmbeddedSettings struct {
	Root  string
	Files EmbeddedFS
}

type EmbeddedFS interface {
	Open(name string) (fs.File, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	ReadFile(name string) ([]byte, error)
}

func (es EmbeddedSettings) MustFindRootSettingsFile(filename string) (SettingsFile, error) {
	var result SettingsFile
	name := path.Join(es.Root, filename)
	settings, err := es.Files.ReadFile(name)
	if err == nil {
		result.Name = name
		result.Reader = bytes.NewReader(settings)
		result.Length = len(settings)
	}
	return result, err
}

func (es EmbeddedSettings) MustFindDefaultsSettingsFile() (SettingsFile, error) {
	return es.MustFindRootSettingsFile("defaults.yaml")
}

// ReadSettingsFile reads an override settings file from disk.
// An empty file is returned with Length 0 and is skipped by the unmarshaler.
func ReadSettingsFile(filename string) (SettingsFile, error) {
	var result SettingsFile
	settings, err := os.ReadFile(filename)
	if err != nil {
		return result, fmt.Errorf("failed to read settings file %s %w", filename, err)
	}
	result.Name = filename
	result.Reader = bytes.NewReader(settings)
	result.Length = len(settings)
	return result, nil
}

// StringSettingsFile wraps inline yaml, mostly useful in tests.
func StringSettingsFile(name string, yaml string) SettingsFile {
	return SettingsFile{
		Name:   name,
		Reader: bytes.NewReader([]byte(yaml)),
		Length: len(yaml),
	}
}
