package config

import (
	"errors"
	"strings"
	"testing"
)

const validYAML = `
http:
  listen: ":9000"
  base-url: "https://sign.example.com"
storage:
  documents-dir: /var/lib/signflow/docs
  backend: file
  state-dir: /var/lib/signflow/state
smtp:
  host: mail.example.com
  port: 587
  username: signflow
  password: hunter2
  from: noreply@example.com
links:
  secret: "0123456789abcdef0123"
  ttl-hours: 48
`

func TestParseValid(t *testing.T) {
	conf, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if conf.HTTP.Listen != ":9000" {
		t.Errorf("Listen = %q", conf.HTTP.Listen)
	}
	if conf.HTTP.BaseURL != "https://sign.example.com" {
		t.Errorf("BaseURL = %q", conf.HTTP.BaseURL)
	}
	if conf.Storage.Backend != "file" {
		t.Errorf("Backend = %q", conf.Storage.Backend)
	}
	if conf.SMTP.Port != 587 {
		t.Errorf("SMTP.Port = %d", conf.SMTP.Port)
	}
	if conf.Links.TTL().Hours() != 48 {
		t.Errorf("TTL = %v", conf.Links.TTL())
	}
	if conf.Redis.Enabled() {
		t.Error("redis should be disabled when unconfigured")
	}
}

func TestParseDefaults(t *testing.T) {
	yaml := strings.Replace(validYAML, `  listen: ":9000"`+"\n", "", 1)
	conf, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if conf.HTTP.Listen != ":8080" {
		t.Errorf("default Listen = %q, want :8080", conf.HTTP.Listen)
	}
}

func TestParseMissingRequired(t *testing.T) {
	cases := []struct {
		name  string
		strip string
		field string
	}{
		{"missing base-url", `  base-url: "https://sign.example.com"`, "http.base-url"},
		{"missing documents-dir", "  documents-dir: /var/lib/signflow/docs", "storage.documents-dir"},
		{"missing smtp host", "  host: mail.example.com", "smtp.host"},
		{"missing link secret", `  secret: "0123456789abcdef0123"`, "links.secret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			yaml := strings.Replace(validYAML, tc.strip+"\n", "", 1)
			_, err := Parse([]byte(yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
			if ce.Field != tc.field {
				t.Errorf("Field = %q, want %q", ce.Field, tc.field)
			}
			if !errors.Is(err, ErrConfigurationError) {
				t.Error("ConfigError does not unwrap to ErrConfigurationError")
			}
		})
	}
}

func TestParseUnknownBackend(t *testing.T) {
	yaml := strings.Replace(validYAML, "backend: file", "backend: s3", 1)
	_, err := Parse([]byte(yaml))
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Field != "storage.backend" {
		t.Errorf("expected storage.backend error, got %v", err)
	}
}

func TestParsePostgresBackendNeedsDSN(t *testing.T) {
	yaml := strings.Replace(validYAML,
		"backend: file\n  state-dir: /var/lib/signflow/state",
		"backend: postgres", 1)
	_, err := Parse([]byte(yaml))
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Field != "storage.dsn" {
		t.Errorf("expected storage.dsn error, got %v", err)
	}
}

func TestParseShortSecret(t *testing.T) {
	yaml := strings.Replace(validYAML, `secret: "0123456789abcdef0123"`, `secret: "short"`, 1)
	_, err := Parse([]byte(yaml))
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Field != "links.secret" {
		t.Errorf("expected links.secret error, got %v", err)
	}
}

func TestParseBadYAML(t *testing.T) {
	_, err := Parse([]byte("http: [not a mapping"))
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("expected *ConfigError, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SIGNFLOW_LISTEN", ":7000")
	t.Setenv("SIGNFLOW_SMTP_PASSWORD", "env-secret")
	t.Setenv("SIGNFLOW_SMTP_PORT", "2525")
	t.Setenv("SIGNFLOW_LINK_SECRET", "env-0123456789abcdef")

	conf, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if conf.HTTP.Listen != ":7000" {
		t.Errorf("Listen = %q, want :7000", conf.HTTP.Listen)
	}
	if conf.SMTP.Password != "env-secret" {
		t.Errorf("SMTP.Password = %q", conf.SMTP.Password)
	}
	if conf.SMTP.Port != 2525 {
		t.Errorf("SMTP.Port = %d, want 2525", conf.SMTP.Port)
	}
	if conf.Links.Secret != "env-0123456789abcdef" {
		t.Errorf("Links.Secret = %q", conf.Links.Secret)
	}
}

func TestRedisEnabled(t *testing.T) {
	yaml := validYAML + `
redis:
  host: localhost
  port: 6379
`
	conf, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !conf.Redis.Enabled() {
		t.Error("redis should be enabled")
	}

	bad := validYAML + `
redis:
  host: localhost
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Error("expected redis.port error")
	}
}
