package config

import (
	"os"
	"strings"
	"time"

	"github.com/monify-labs/sysmon/internal/errors"
	"github.com/spf13/viper"
)

const (
	// Push settings
	Timeout = 10 * time.Second

	// Collection settings
	DefaultUpdateInterval = 2 * time.Second
	MinUpdateInterval     = 100 * time.Millisecond
	DefaultGraphWidth     = 60

	// Environment
	EnvPrefix   = "SYSMON"
	EnvFilePath = "/etc/sysmon/env"
)

// Build info, injected at build time via ldflags.
var (
	Version   = "0.3.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Configuration keys read by the engine every tick.
const (
	KeyUpdateMS        = "update_ms"
	KeyGraphWidth      = "graph_width"
	KeyProcSorting     = "proc_sorting"
	KeyServicesSorting = "services_sorting"
	KeyProcReversed    = "proc_reversed"
	KeyProcTree        = "proc_tree"
	KeyProcFilter      = "proc_filter"
	KeyProcPerCore     = "proc_per_core"
	KeyProcServices    = "proc_services"
	KeyShowDetailed    = "show_detailed"
	KeyDetailedPID     = "detailed_pid"
	KeyDetailedName    = "detailed_name"
	KeyNetIface        = "net_iface"
	KeyNetSync         = "net_sync"
	KeyNetAuto         = "net_auto"
	KeyNetDownload     = "net_download"
	KeyNetUpload       = "net_upload"
	KeyShowSwap        = "show_swap"
	KeyShowDisks       = "show_disks"
	KeyDisksFilter     = "disks_filter"
	KeyOnlyPhysical    = "only_physical"
	KeyTrackAll        = "enrich_track_all"
	KeyLogLevel        = "log_level"
	KeyLogJSON         = "log_json"
	KeyDebug           = "debug"
	KeyPushURL         = "push_url"
	KeyPushToken       = "push_token"
	KeyOutput          = "output"
)

// Source is the read-only view of configuration the engine consumes.
// *viper.Viper satisfies it.
type Source interface {
	GetBool(key string) bool
	GetInt(key string) int
	GetString(key string) string
}

// Defaults returns every known key with its default value.
func Defaults() map[string]any {
	return map[string]any{
		KeyUpdateMS:        int(DefaultUpdateInterval / time.Millisecond),
		KeyGraphWidth:      DefaultGraphWidth,
		KeyProcSorting:     "cpu lazy",
		KeyServicesSorting: "cpu lazy",
		KeyProcReversed:    false,
		KeyProcTree:        false,
		KeyProcFilter:      "",
		KeyProcPerCore:     false,
		KeyProcServices:    false,
		KeyShowDetailed:    false,
		KeyDetailedPID:     0,
		KeyDetailedName:    "",
		KeyNetIface:        "",
		KeyNetSync:         false,
		KeyNetAuto:         true,
		KeyNetDownload:     100,
		KeyNetUpload:       100,
		KeyShowSwap:        true,
		KeyShowDisks:       true,
		KeyDisksFilter:     "",
		KeyOnlyPhysical:    true,
		KeyTrackAll:        false,
		KeyLogLevel:        "info",
		KeyLogJSON:         false,
		KeyDebug:           false,
		KeyPushURL:         "",
		KeyPushToken:       "",
		KeyOutput:          "json",
	}
}

// Load builds the configuration source. Defaults are applied first, then the
// optional YAML file at path, then SYSMON_* environment variables.
func Load(path string) (*viper.Viper, error) {
	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path == "" {
		return v, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found: "+path,
				"Check the path passed to --config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file is valid YAML")
	}

	return v, nil
}

// UpdateInterval returns the tick interval, never below MinUpdateInterval.
func UpdateInterval(src Source) time.Duration {
	d := time.Duration(src.GetInt(KeyUpdateMS)) * time.Millisecond
	if d < MinUpdateInterval {
		return MinUpdateInterval
	}
	return d
}

// GraphWidth returns the display width used to bound sample series.
func GraphWidth(src Source) int {
	if w := src.GetInt(KeyGraphWidth); w > 0 {
		return w
	}
	return DefaultGraphWidth
}

// LoadEnvFile loads KEY=VALUE lines from path into the process environment.
// Variables already set in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WrapWithCode(err, errors.ErrConfig, "Failed to read env file", "")
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, "Failed to set "+key+" from env file", "")
		}
	}

	return nil
}
