package main

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/hypercore/internal/common"
	"github.com/loykin/hypercore/internal/constants"
	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/httpc"
	"github.com/loykin/hypercore/internal/module"
	"github.com/loykin/hypercore/internal/rest"
	"github.com/loykin/hypercore/internal/source"
	"github.com/loykin/hypercore/internal/task"
	"github.com/loykin/hypercore/internal/util"
	"github.com/spf13/viper"
)

type ClusterConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password" trim:"-"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`
	// Timeout is the per-request timeout; bare numbers are seconds.
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MinTLSVersion string        `mapstructure:"min_tls_version" yaml:"min_tls_version"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level" yaml:"level"`                   // error, warn, info, debug
	Format        string `mapstructure:"format" yaml:"format"`                 // text, json, color
	MaskSensitive *bool  `mapstructure:"mask_sensitive" yaml:"mask_sensitive"` // enable/disable sensitive data masking
	Color         *bool  `mapstructure:"color" yaml:"color"`                   // enable/disable colorized output
}

type ConfigDoc struct {
	ClusterInstance ClusterConfig   `mapstructure:"cluster_instance" yaml:"cluster_instance"`
	Polling         task.PollConfig `mapstructure:"polling" yaml:"polling"`
	Logging         LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	S3              source.S3Config `mapstructure:"s3" yaml:"s3"`
	Output          string          `mapstructure:"output" yaml:"output"`
	MetricsFile     string          `mapstructure:"metrics_file" yaml:"metrics_file"`
	Check           bool            `mapstructure:"check" yaml:"check"`
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsDurationHook decodes durations from Go duration strings ("30s") or
// from bare numbers of seconds, which is how SC_TIMEOUT is usually given.
func secondsDurationHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Duration(0), nil
		}
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q", v)
		}
		return time.Duration(f * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}

func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(secondsDurationHook),
		mapstructure.StringToSliceHookFunc(","),
	))
}

// bindEnv maps the SC_* variables onto config keys. Keys without an explicit
// name fall back to SC_<KEY> with dots replaced by underscores.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("cluster_instance.host", "SC_HOST")
	_ = v.BindEnv("cluster_instance.username", "SC_USERNAME")
	_ = v.BindEnv("cluster_instance.password", "SC_PASSWORD")
	_ = v.BindEnv("cluster_instance.timeout", "SC_TIMEOUT")
	_ = v.BindEnv("cluster_instance.insecure", "SC_INSECURE")
	for _, key := range []string{"s3.endpoint", "s3.region", "s3.access_key", "s3.secret_key", "s3.use_path_style"} {
		_ = v.BindEnv(key)
	}
}

func setDefaults(v *viper.Viper) {
	def := task.DefaultPollConfig()
	v.SetDefault("polling.interval", def.Interval.String())
	v.SetDefault("polling.timeout", def.Timeout.String())
	v.SetDefault("polling.max_attempts", 0)
	v.SetDefault("output", "json")
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")
	v.SetDefault("cluster_instance.timeout", constants.DefaultRequestTimeout.String())
	v.SetDefault("cluster_instance.insecure", false)
}

// loadConfig reads the optional config file named by the "config" key and
// decodes every source into a ConfigDoc.
func loadConfig(v *viper.Viper) (*ConfigDoc, error) {
	if path, ok := util.TrimEmptyCheck(v.GetString("config")); ok {
		clean := filepath.Clean(path)
		// Ensure path points to a regular file to avoid opening directories/special files
		info, err := os.Stat(clean)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("not a regular file: %s", clean)
		}
		v.SetConfigFile(clean)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", clean, err)
		}
	}

	var doc ConfigDoc
	if err := v.Unmarshal(&doc, decodeHook()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	util.TrimStructFields(&doc)
	return &doc, doc.validate()
}

func (c *ConfigDoc) validate() error {
	switch util.TrimAndLower(c.Output) {
	case "json", "yaml", "":
	default:
		return &errs.ConfigurationError{Field: "output", Value: c.Output, Reason: "Must be json or yaml"}
	}
	return nil
}

func (c *ConfigDoc) parseLogLevel() (common.LogLevel, error) {
	level, ok := common.ParseLogLevel(c.Logging.Level)
	if !ok {
		return level, fmt.Errorf("invalid logging level: %s (valid: error, warn, info, debug)", c.Logging.Level)
	}
	return level, nil
}

// SetupLogging configures the global logger based on config settings
func (c *ConfigDoc) SetupLogging() (*common.Logger, error) {
	level, err := c.parseLogLevel()
	if err != nil {
		return nil, err
	}

	format := util.TrimAndLower(c.Logging.Format)
	useColor := format == "color" || format == "colour"
	if c.Logging.Color != nil {
		useColor = *c.Logging.Color
	}

	var logger *common.Logger
	switch format {
	case "json":
		logger = common.NewJSONLogger(level)
	case "text", "", "color", "colour":
		if useColor {
			logger = common.NewColorLogger(level)
		} else {
			logger = common.NewLogger(level)
		}
	default:
		return nil, fmt.Errorf("invalid logging format: %s (valid: text, json, color)", c.Logging.Format)
	}

	maskingEnabled := true
	if c.Logging.MaskSensitive != nil {
		maskingEnabled = *c.Logging.MaskSensitive
	}
	common.EnableMasking(maskingEnabled)
	common.SetDefaultLogger(logger)

	logger.Debug("logging configured",
		"level", level,
		"format", format,
		"color", useColor,
		"mask_sensitive", maskingEnabled)
	return logger, nil
}

// Runtime builds the transport, record client and image resolver.
func (c *ConfigDoc) Runtime(logger *common.Logger) (*module.Runtime, error) {
	creds, err := httpc.NewCredentials(c.ClusterInstance.Host, c.ClusterInstance.Username, c.ClusterInstance.Password)
	if err != nil {
		return nil, err
	}
	opts := []httpc.Option{
		httpc.WithTimeout(c.ClusterInstance.Timeout),
		httpc.WithLogger(logger),
	}
	if c.ClusterInstance.Insecure || c.ClusterInstance.MinTLSVersion != "" {
		opts = append(opts, httpc.WithTLSConfig(httpc.NewTLSConfig(c.ClusterInstance.Insecure, c.ClusterInstance.MinTLSVersion)))
	}
	tr, err := httpc.New(creds, opts...)
	if err != nil {
		return nil, err
	}
	return &module.Runtime{
		Client:  rest.New(tr).WithLogger(logger),
		Poll:    c.Polling,
		Check:   c.Check,
		Sources: source.NewResolver(c.S3),
		Logger:  logger,
	}, nil
}
