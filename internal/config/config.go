package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Wraparound policies applied when the telemetry cursor passes the last row.
const (
	WrapSkip    = "skip"
	WrapProcess = "process"
)

// Config holds all application configuration
type Config struct {
	Simulation SimulationConfig
	Scaler     ScalerConfig
	Models     ModelsConfig
	Kafka      KafkaConfig
	InfluxDB   InfluxDBConfig
	HTTP       HTTPConfig
	Log        LogConfig
	Processor  ProcessorConfig
}

// SimulationConfig holds simulation loop and classification settings
type SimulationConfig struct {
	CSVPath        string
	Interval       time.Duration
	PanelCount     int
	WindowLength   int
	WrapPolicy     string
	PredictTimeout time.Duration
	FaultThreshold int
	WarningPercent float64
	FaultPercent   float64
	HistoryLimit   int
}

// ScalerConfig holds min/max calibration for inputs and the predicted output
type ScalerConfig struct {
	AmbientMin     float64
	AmbientMax     float64
	ModuleMin      float64
	ModuleMax      float64
	IrradiationMin float64
	IrradiationMax float64
	TargetMin      float64
	TargetMax      float64
}

// ModelsConfig holds model registry settings
type ModelsConfig struct {
	Dir string
}

// KafkaConfig holds Kafka-related configuration
type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	EventsTopic string
	AckTopic    string
	GroupID     string
}

// InfluxDBConfig holds InfluxDB-related configuration
type InfluxDBConfig struct {
	Enabled      bool
	URL          string
	Org          string
	Token        string
	Bucket       string
	BatchSize    int
	BatchTimeout time.Duration
}

// HTTPConfig holds the query API listener settings
type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string
	Development bool
}

// ProcessorConfig holds sink dispatcher settings
type ProcessorConfig struct {
	WorkerCount   int
	QueueSize     int
	FlushInterval time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("simulation.csv_path", "maintenance/data/live_sim_data.csv")
	v.SetDefault("simulation.interval", 30*time.Second)
	v.SetDefault("simulation.panel_count", 22)
	v.SetDefault("simulation.window_length", 15)
	v.SetDefault("simulation.wrap_policy", WrapSkip)
	v.SetDefault("simulation.predict_timeout", 5*time.Second)
	v.SetDefault("simulation.fault_threshold", 3)
	v.SetDefault("simulation.warning_percent", 5.0)
	v.SetDefault("simulation.fault_percent", 10.0)
	v.SetDefault("simulation.history_limit", 0)

	v.SetDefault("scaler.ambient_min", 20.4)
	v.SetDefault("scaler.ambient_max", 35.25)
	v.SetDefault("scaler.module_min", 18.14)
	v.SetDefault("scaler.module_max", 65.55)
	v.SetDefault("scaler.irradiation_min", 0.0)
	v.SetDefault("scaler.irradiation_max", 1.22)
	v.SetDefault("scaler.target_min", 0.0)
	v.SetDefault("scaler.target_max", 14471.13)

	v.SetDefault("models.dir", "maintenance/models")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.events_topic", "solarguard-panel-events")
	v.SetDefault("kafka.ack_topic", "solarguard-acknowledgements")
	v.SetDefault("kafka.group_id", "solarguard-monitor")

	v.SetDefault("influxdb.enabled", false)
	v.SetDefault("influxdb.url", "http://localhost:8086")
	v.SetDefault("influxdb.org", "solarguard")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.bucket", "solar-panels")
	v.SetDefault("influxdb.batch_size", 500)
	v.SetDefault("influxdb.batch_timeout", 500*time.Millisecond)

	v.SetDefault("http.addr", ":8000")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("processor.worker_count", 2)
	v.SetDefault("processor.queue_size", 256)
	v.SetDefault("processor.flush_interval", 10*time.Second)
}

// Load loads configuration from environment variables and an optional file
// named by SOLARGUARD_CONFIG, falling back to defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("SOLARGUARD_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Simulation: SimulationConfig{
			CSVPath:        v.GetString("simulation.csv_path"),
			Interval:       v.GetDuration("simulation.interval"),
			PanelCount:     v.GetInt("simulation.panel_count"),
			WindowLength:   v.GetInt("simulation.window_length"),
			WrapPolicy:     strings.ToLower(v.GetString("simulation.wrap_policy")),
			PredictTimeout: v.GetDuration("simulation.predict_timeout"),
			FaultThreshold: v.GetInt("simulation.fault_threshold"),
			WarningPercent: v.GetFloat64("simulation.warning_percent"),
			FaultPercent:   v.GetFloat64("simulation.fault_percent"),
			HistoryLimit:   v.GetInt("simulation.history_limit"),
		},
		Scaler: ScalerConfig{
			AmbientMin:     v.GetFloat64("scaler.ambient_min"),
			AmbientMax:     v.GetFloat64("scaler.ambient_max"),
			ModuleMin:      v.GetFloat64("scaler.module_min"),
			ModuleMax:      v.GetFloat64("scaler.module_max"),
			IrradiationMin: v.GetFloat64("scaler.irradiation_min"),
			IrradiationMax: v.GetFloat64("scaler.irradiation_max"),
			TargetMin:      v.GetFloat64("scaler.target_min"),
			TargetMax:      v.GetFloat64("scaler.target_max"),
		},
		Models: ModelsConfig{
			Dir: v.GetString("models.dir"),
		},
		Kafka: KafkaConfig{
			Enabled:     v.GetBool("kafka.enabled"),
			Brokers:     splitList(v.GetString("kafka.brokers")),
			EventsTopic: v.GetString("kafka.events_topic"),
			AckTopic:    v.GetString("kafka.ack_topic"),
			GroupID:     v.GetString("kafka.group_id"),
		},
		InfluxDB: InfluxDBConfig{
			Enabled:      v.GetBool("influxdb.enabled"),
			URL:          v.GetString("influxdb.url"),
			Org:          v.GetString("influxdb.org"),
			Token:        v.GetString("influxdb.token"),
			Bucket:       v.GetString("influxdb.bucket"),
			BatchSize:    v.GetInt("influxdb.batch_size"),
			BatchTimeout: v.GetDuration("influxdb.batch_timeout"),
		},
		HTTP: HTTPConfig{
			Addr:            v.GetString("http.addr"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
		Processor: ProcessorConfig{
			WorkerCount:   v.GetInt("processor.worker_count"),
			QueueSize:     v.GetInt("processor.queue_size"),
			FlushInterval: v.GetDuration("processor.flush_interval"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	s := c.Simulation
	var errs []error
	if s.Interval <= 0 {
		errs = append(errs, fmt.Errorf("simulation.interval must be positive, got %s", s.Interval))
	}
	if s.PanelCount < 1 {
		errs = append(errs, fmt.Errorf("simulation.panel_count must be >= 1, got %d", s.PanelCount))
	}
	if s.WindowLength < 1 {
		errs = append(errs, fmt.Errorf("simulation.window_length must be >= 1, got %d", s.WindowLength))
	}
	if s.WrapPolicy != WrapSkip && s.WrapPolicy != WrapProcess {
		errs = append(errs, fmt.Errorf("simulation.wrap_policy must be %q or %q, got %q", WrapSkip, WrapProcess, s.WrapPolicy))
	}
	if s.FaultThreshold < 1 {
		errs = append(errs, fmt.Errorf("simulation.fault_threshold must be >= 1, got %d", s.FaultThreshold))
	}
	if s.WarningPercent >= s.FaultPercent {
		errs = append(errs, fmt.Errorf("simulation.warning_percent (%.2f) must be below fault_percent (%.2f)", s.WarningPercent, s.FaultPercent))
	}
	if s.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("simulation.history_limit must be >= 0, got %d", s.HistoryLimit))
	}

	sc := c.Scaler
	if sc.AmbientMax <= sc.AmbientMin || sc.ModuleMax <= sc.ModuleMin || sc.IrradiationMax < sc.IrradiationMin {
		errs = append(errs, errors.New("scaler feature max must be above min"))
	}
	if sc.TargetMax <= sc.TargetMin {
		errs = append(errs, fmt.Errorf("scaler.target_max (%.2f) must be above target_min (%.2f)", sc.TargetMax, sc.TargetMin))
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers must not be empty when kafka is enabled"))
	}
	if c.Processor.WorkerCount < 1 || c.Processor.QueueSize < 1 {
		errs = append(errs, errors.New("processor worker_count and queue_size must be >= 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
