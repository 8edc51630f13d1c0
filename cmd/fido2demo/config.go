package main

import (
	"strings"

	"github.com/spf13/viper"
)

// Config is the demo server's configuration, loaded from a TOML file and
// overridable via FIDO2DEMO_-prefixed environment variables.
type Config struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	RPID        string `mapstructure:"rp_id"`
	RPName      string `mapstructure:"rp_name"`
	RPOrigin    string `mapstructure:"rp_origin"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	MetricsPath string `mapstructure:"metrics_path"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:  ":8443",
		RPID:        "localhost",
		RPName:      "fido2-core demo",
		RPOrigin:    "https://localhost:8443",
		JWTSecret:   "change-me-in-production",
		MetricsPath: "/metrics",
	}
}

func loadConfig(configPath string) (Config, error) {
	cfg := defaultConfig()

	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("fido2demo")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("rp_id", cfg.RPID)
	v.SetDefault("rp_name", cfg.RPName)
	v.SetDefault("rp_origin", cfg.RPOrigin)
	v.SetDefault("jwt_secret", cfg.JWTSecret)
	v.SetDefault("metrics_path", cfg.MetricsPath)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
