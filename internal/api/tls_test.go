package api

import (
	"testing"
)

func TestTLSEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TLSConfig
		want bool
	}{
		{"nil", nil, false},
		{"empty", &TLSConfig{}, false},
		{"only cert", &TLSConfig{CertFile: "/path/to/cert.pem"}, false},
		{"only key", &TLSConfig{KeyFile: "/path/to/key.pem"}, false},
		{"both", &TLSConfig{CertFile: "/path/to/cert.pem", KeyFile: "/path/to/key.pem"}, true},
	}
	for _, tt := range tests {
		if got := tt.cfg.Enabled(); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestTLSLoadNotEnabled(t *testing.T) {
	var c *TLSConfig
	cfg, err := c.Load()
	if err != nil || cfg != nil {
		t.Errorf("expected nil config without error, got %v, %v", cfg, err)
	}
}

func TestTLSLoadInvalidFiles(t *testing.T) {
	c := &TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}
	cfg, err := c.Load()
	if err == nil {
		t.Error("expected error for missing certificate files")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}
