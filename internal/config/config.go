// Package config implements the Settings provider (spec.md §6): a small
// JSON-persisted settings file, created with defaults if absent, backed by
// github.com/spf13/afero so the loader is testable against an in-memory
// filesystem instead of the real one.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
)

// Default values for every recognized option (spec.md §6).
const (
	DefaultUDPPort   uint16 = 514
	DefaultTCPPort   uint16 = 6514
	DefaultUseTCP           = false
	DefaultIPAddress        = ""
)

// Settings is the subset of configuration the collector's lifecycle
// orchestrator depends on.
type Settings interface {
	UDPPort() uint16
	IPAddress() string
}

// Document is the JSON shape persisted to the settings file. Field names
// match spec.md §6's recognized option names exactly.
type Document struct {
	UDPPort   uint16 `json:"udp_port"`
	TCPPort   uint16 `json:"tcp_port"`
	UseTCP    bool   `json:"use_tcp"`
	IPAddress string `json:"ip_address"`
}

// defaultDocument returns a Document populated with spec.md §6's defaults.
func defaultDocument() Document {
	return Document{
		UDPPort:   DefaultUDPPort,
		TCPPort:   DefaultTCPPort,
		UseTCP:    DefaultUseTCP,
		IPAddress: DefaultIPAddress,
	}
}

// FileProvider is a JSON-file-backed Settings implementation. The zero value
// is not usable; construct with Load.
type FileProvider struct {
	doc Document
}

// UDPPort implements Settings.
func (f *FileProvider) UDPPort() uint16 { return f.doc.UDPPort }

// IPAddress implements Settings.
func (f *FileProvider) IPAddress() string { return f.doc.IPAddress }

// TCPPort returns the configured TLS listen port (out of core scope, spec.md
// §6, kept here since it's a recognized persisted option).
func (f *FileProvider) TCPPort() uint16 { return f.doc.TCPPort }

// UseTCP reports whether TCP/TLS mode was selected (out of core scope).
func (f *FileProvider) UseTCP() bool { return f.doc.UseTCP }

// Load reads the JSON settings file at path from fs. If the file is absent,
// it is created with defaults and the defaults are returned (spec.md §6
// "Persisted state"). A malformed existing file is a fatal startup error.
func Load(fs afero.Fs, path string) (*FileProvider, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	if !exists {
		doc := defaultDocument()
		if err := write(fs, path, doc); err != nil {
			return nil, fmt.Errorf("config: create default settings at %s: %w", path, err)
		}
		return &FileProvider{doc: doc}, nil
	}

	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if doc.UDPPort == 0 {
		doc.UDPPort = DefaultUDPPort
	}
	if doc.TCPPort == 0 {
		doc.TCPPort = DefaultTCPPort
	}

	return &FileProvider{doc: doc}, nil
}

func write(fs afero.Fs, path string, doc Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, raw, 0o644)
}
