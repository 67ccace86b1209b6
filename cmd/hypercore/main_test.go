package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/loykin/hypercore/internal/common"
	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/hypercoretest"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SC_HOST", "SC_USERNAME", "SC_PASSWORD", "SC_TIMEOUT", "SC_INSECURE", "SC_OUTPUT", "SC_CHECK", "SC_S3_SECRET_KEY"} {
		t.Setenv(k, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(viper.New())
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func clusterArgs(srv *hypercoretest.Server, args ...string) []string {
	return append(args,
		"--host", srv.URL,
		"--username", hypercoretest.Username,
		"--password", hypercoretest.Password,
		"--poll-interval", "10ms",
		"--log-level", "error",
	)
}

func seedDNS(srv *hypercoretest.Server) {
	srv.Seed("DNSConfig", map[string]any{
		"uuid":          "dnsconfig_guid",
		"searchDomains": []string{"a.com"},
		"serverIPs":     []string{"1.1.1.1"},
	})
}

func TestDNSConfigCommand_JSON(t *testing.T) {
	clearEnv(t)
	srv := hypercoretest.New(t)
	seedDNS(srv)

	out, err := execute(t, clusterArgs(srv, "dns-config", "--search-domains", "b.com", "--state", "before")...)
	if err != nil {
		t.Fatalf("dns-config failed: %v", err)
	}
	var res struct {
		Changed bool `json:"changed"`
		Diff    struct {
			After struct {
				SearchDomains []string `json:"search_domains"`
			} `json:"after"`
		} `json:"diff"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if !res.Changed {
		t.Fatalf("expected changed=true: %s", out)
	}
	if want := []string{"b.com", "a.com"}; !reflect.DeepEqual(res.Diff.After.SearchDomains, want) {
		t.Fatalf("search domains = %v, want %v", res.Diff.After.SearchDomains, want)
	}
	if len(srv.Mutations()) != 1 {
		t.Fatalf("expected one mutation, got %v", srv.Mutations())
	}
}

func TestDNSConfigCommand_CheckModeYAML(t *testing.T) {
	clearEnv(t)
	srv := hypercoretest.New(t)
	seedDNS(srv)

	out, err := execute(t, clusterArgs(srv, "dns-config", "--dns-servers", "8.8.8.8", "--check", "-o", "yaml")...)
	if err != nil {
		t.Fatalf("dns-config failed: %v", err)
	}
	var res map[string]any
	if err := yaml.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out)
	}
	if res["changed"] != true {
		t.Fatalf("expected changed=true: %s", out)
	}
	if len(srv.Mutations()) != 0 {
		t.Fatalf("check mode sent %v", srv.Mutations())
	}
}

func TestTaskWaitCommand_MetricsFile(t *testing.T) {
	clearEnv(t)
	srv := hypercoretest.New(t)
	srv.AddTask("42", "RUNNING", "COMPLETE")
	metrics := filepath.Join(t.TempDir(), "hypercore.prom")

	out, err := execute(t, clusterArgs(srv, "task-wait", "42", "--metrics-file", metrics)...)
	if err != nil {
		t.Fatalf("task-wait failed: %v", err)
	}
	if !strings.Contains(out, `"task_tag": "42"`) {
		t.Fatalf("unexpected output %s", out)
	}
	data, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), "hypercore_task_polls_total") {
		t.Fatalf("metrics file lacks task polls:\n%s", data)
	}
}

func TestVirtualDiskInfoCommand_ConfigFileAndEnv(t *testing.T) {
	clearEnv(t)
	srv := hypercoretest.New(t)
	srv.Seed("VirtualDisk", map[string]any{"uuid": "d1", "name": "disk.qcow2", "blockSize": 1048576, "capacityBytes": 10, "replicationFactor": 2})

	cfgPath := filepath.Join(t.TempDir(), "hypercore.yaml")
	doc := "cluster_instance:\n  username: " + hypercoretest.Username + "\n  password: " + hypercoretest.Password + "\n  timeout: 30\nlogging:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SC_HOST", srv.URL)

	out, err := execute(t, "virtual-disk-info", "--config", cfgPath)
	if err != nil {
		t.Fatalf("virtual-disk-info failed: %v", err)
	}
	if !strings.Contains(out, `"name": "disk.qcow2"`) {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestCommand_InvalidHost(t *testing.T) {
	clearEnv(t)
	_, err := execute(t, "virtual-disk-info", "--host", "cluster.local", "--log-level", "error")
	var cerr *errs.ConfigurationError
	if !errors.As(err, &cerr) || cerr.Field != "host" {
		t.Fatalf("expected host ConfigurationError, got %v", err)
	}
}

func TestCommand_InvalidOutput(t *testing.T) {
	clearEnv(t)
	_, err := execute(t, "virtual-disk-info", "--host", "https://h", "-o", "xml")
	if errs.KindOf(err) != errs.KindConfiguration {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestLoadConfig_EnvAndDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SC_HOST", "https://10.0.0.5")
	t.Setenv("SC_USERNAME", "admin")
	t.Setenv("SC_TIMEOUT", "12.5")

	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.ClusterInstance.Host != "https://10.0.0.5" || cfg.ClusterInstance.Username != "admin" {
		t.Fatalf("env not applied: %+v", cfg.ClusterInstance)
	}
	if cfg.ClusterInstance.Timeout != 12500*time.Millisecond {
		t.Fatalf("timeout = %s", cfg.ClusterInstance.Timeout)
	}
	if cfg.Polling.Interval != time.Second || cfg.Polling.Timeout != 10*time.Minute {
		t.Fatalf("poll defaults = %+v", cfg.Polling)
	}
	if cfg.Output != "json" {
		t.Fatalf("output default = %q", cfg.Output)
	}
}

func TestLoadConfig_KeepsSecretsVerbatim(t *testing.T) {
	clearEnv(t)
	t.Setenv("SC_HOST", " https://10.0.0.5 ")
	t.Setenv("SC_USERNAME", " admin ")
	t.Setenv("SC_PASSWORD", " secret ")
	t.Setenv("SC_S3_SECRET_KEY", " s3cr3t ")

	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.ClusterInstance.Host != "https://10.0.0.5" || cfg.ClusterInstance.Username != "admin" {
		t.Fatalf("non-secret fields must be trimmed: %+v", cfg.ClusterInstance)
	}
	if cfg.ClusterInstance.Password != " secret " {
		t.Fatalf("password = %q, want it unchanged", cfg.ClusterInstance.Password)
	}
	if cfg.S3.SecretKey != " s3cr3t " {
		t.Fatalf("s3 secret key = %q, want it unchanged", cfg.S3.SecretKey)
	}
}

func TestLoadConfig_NotRegularFile(t *testing.T) {
	v := viper.New()
	v.Set("config", t.TempDir())
	if _, err := loadConfig(v); err == nil {
		t.Fatal("expected error for directory path (not a regular file)")
	}
}

func TestSecondsDurationHook(t *testing.T) {
	tests := []struct {
		in   any
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"2", 2 * time.Second},
		{"0.5", 500 * time.Millisecond},
		{"", 0},
		{45, 45 * time.Second},
		{1.5, 1500 * time.Millisecond},
	}
	for _, tt := range tests {
		got, err := secondsDurationHook(reflect.TypeOf(tt.in), durationType, tt.in)
		if err != nil {
			t.Fatalf("%v: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("%v: got %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := secondsDurationHook(reflect.TypeOf(""), durationType, "soon"); err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if got, _ := secondsDurationHook(reflect.TypeOf(""), reflect.TypeOf(""), "x"); got != "x" {
		t.Fatal("non-duration targets must pass through")
	}
}

func TestSetupLogging_InvalidValues(t *testing.T) {
	c := &ConfigDoc{Logging: LoggingConfig{Level: "loud"}}
	if _, err := c.SetupLogging(); err == nil {
		t.Fatal("expected invalid level error")
	}
	c = &ConfigDoc{Logging: LoggingConfig{Level: "info", Format: "xml"}}
	if _, err := c.SetupLogging(); err == nil {
		t.Fatal("expected invalid format error")
	}
}

func TestExitHandler_LogFatalError(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	h := &DefaultExitHandler{
		logger: common.NewLoggerTo(&buf, common.LogLevelInfo, "json"),
		exit:   func(c int) { code = c },
	}
	h.LogFatalError(&errs.ConnectivityError{Method: "GET", URL: "https://h/rest/v1/Node", Err: errors.New("refused")}, "command execution failed")
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	for _, want := range []string{`"kind":"connectivity"`, `"retryable":true`, "command execution failed"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("log %q lacks %s", buf.String(), want)
		}
	}
}
