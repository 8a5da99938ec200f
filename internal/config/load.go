package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FUELIMPORT_STORAGE_DSN.
const EnvPrefix = "FUELIMPORT"

// keys lists every scalar key that may be overridden from the environment.
var keys = []string{
	"job",
	"parser.delimiter",
	"mapping_file",
	"options.batch_size",
	"options.concurrency",
	"options.high_jump_km",
	"options.high_volume_l",
	"options.price_deviation_pct",
	"options.max_volume_l",
	"options.capacity_volume_factor",
	"options.capacity_flag_factor",
	"options.cost_tolerance_pct",
	"options.price_band_min",
	"options.price_band_max",
	"options.lookup_timeout",
	"storage.kind",
	"storage.dsn",
	"metrics.backend",
	"metrics.pushgateway_url",
	"metrics.datadog_addr",
	"server.addr",
	"server.allowed_origins",
	"server.max_upload_bytes",
}

// Load reads the job file at path (YAML or JSON; empty path means defaults
// only), then applies overrides from a .env file in the working directory and
// from FUELIMPORT_* environment variables.
func Load(path string) (Job, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Job{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return Job{}, fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Job{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return fromViper(v), nil
}

// fromViper overlays every set key onto the defaults.
func fromViper(v *viper.Viper) Job {
	cfg := Default()

	if v.IsSet("job") {
		cfg.Job = v.GetString("job")
	}
	if v.IsSet("parser.delimiter") {
		cfg.Parser.Delimiter = v.GetString("parser.delimiter")
	}
	if v.IsSet("mapping") {
		cfg.Mapping = v.GetStringMap("mapping")
	}
	if v.IsSet("mapping_file") {
		cfg.MappingFile = v.GetString("mapping_file")
	}

	o := &cfg.Options
	if v.IsSet("options.batch_size") {
		o.BatchSize = v.GetInt("options.batch_size")
	}
	if v.IsSet("options.concurrency") {
		o.Concurrency = v.GetInt("options.concurrency")
	}
	if v.IsSet("options.high_jump_km") {
		o.HighJumpKm = v.GetInt64("options.high_jump_km")
	}
	floats := map[string]*float64{
		"options.high_volume_l":          &o.HighVolumeL,
		"options.price_deviation_pct":    &o.PriceDeviationPct,
		"options.max_volume_l":           &o.MaxVolumeL,
		"options.capacity_volume_factor": &o.CapacityVolumeFactor,
		"options.capacity_flag_factor":   &o.CapacityFlagFactor,
		"options.cost_tolerance_pct":     &o.CostTolerancePct,
		"options.price_band_min":         &o.PriceBandMin,
		"options.price_band_max":         &o.PriceBandMax,
	}
	for k, dst := range floats {
		if v.IsSet(k) {
			*dst = v.GetFloat64(k)
		}
	}
	if v.IsSet("options.lookup_timeout") {
		o.LookupTimeout = v.GetDuration("options.lookup_timeout")
	}

	if v.IsSet("storage.kind") {
		cfg.Storage.Kind = v.GetString("storage.kind")
	}
	if v.IsSet("storage.dsn") {
		cfg.Storage.DSN = v.GetString("storage.dsn")
	}
	if v.IsSet("storage.options") {
		cfg.Storage.Options = Options(v.GetStringMap("storage.options"))
	}

	if v.IsSet("metrics.backend") {
		cfg.Metrics.Backend = v.GetString("metrics.backend")
	}
	if v.IsSet("metrics.pushgateway_url") {
		cfg.Metrics.PushgatewayURL = v.GetString("metrics.pushgateway_url")
	}
	if v.IsSet("metrics.datadog_addr") {
		cfg.Metrics.DatadogAddr = v.GetString("metrics.datadog_addr")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("server.max_upload_bytes") {
		cfg.Server.MaxUploadBytes = v.GetInt64("server.max_upload_bytes")
	}
	return cfg
}
