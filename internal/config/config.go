package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                  string        `mapstructure:"ENV"`
	Port                 string        `mapstructure:"PORT"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	AdminKey             string        `mapstructure:"ADMIN_KEY"`
	AIURL                string        `mapstructure:"AI_URL"`
	CORSAllowed          string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	SweepCron            string        `mapstructure:"SWEEP_CRON"`
	DuplicateRadiusM     float64       `mapstructure:"DUPLICATE_RADIUS_M"`
	DuplicateWindowHours float64       `mapstructure:"DUPLICATE_WINDOW_HOURS"`
	EmergencyIssueTypes  string        `mapstructure:"EMERGENCY_ISSUE_TYPES"`
	GeocoderEnabled      bool          `mapstructure:"GEOCODER_ENABLED"`
	GeocoderURL          string        `mapstructure:"GEOCODER_URL"`
	GeocoderUserAgent    string        `mapstructure:"GEOCODER_USER_AGENT"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("SWEEP_CRON", "0 * * * *")
	v.SetDefault("DUPLICATE_RADIUS_M", 100.0)
	v.SetDefault("DUPLICATE_WINDOW_HOURS", 72.0)
	v.SetDefault("EMERGENCY_ISSUE_TYPES", "")
	v.SetDefault("GEOCODER_ENABLED", false)
	v.SetDefault("GEOCODER_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("GEOCODER_USER_AGENT", "civiclens-backend")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EmergencyTypes parses the EMERGENCY_ISSUE_TYPES comma list. Reports
// whose issue type appears here bypass the scorer and are forced to
// critical priority.
func (c Config) EmergencyTypes() map[string]struct{} {
	out := map[string]struct{}{}
	for _, part := range strings.Split(c.EmergencyIssueTypes, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		out[part] = struct{}{}
	}
	return out
}
