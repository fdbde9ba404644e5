// Package config provides a reusable loader for role-server configuration
// files and environment variables.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/saicha124/hierfed/pkg/utils"
)

// Config is the unified configuration for a single role instance (spec
// §6: "Base ports, host addresses, round count, F, V, G, k, ε, δ, clip
// norm, PoW difficulty, and quorum Q are configuration inputs").
type Config struct {
	Network struct {
		Host              string `mapstructure:"host" json:"host"`
		FacilityBasePort  int    `mapstructure:"facility_base_port" json:"facility_base_port"`
		ValidatorBasePort int    `mapstructure:"validator_base_port" json:"validator_base_port"`
		FogBasePort       int    `mapstructure:"fog_base_port" json:"fog_base_port"`
		LeaderPort        int    `mapstructure:"leader_port" json:"leader_port"`
		TAPort            int    `mapstructure:"ta_port" json:"ta_port"`
		FacilityCount     int    `mapstructure:"facility_count" json:"facility_count"`
		ValidatorCount    int    `mapstructure:"validator_count" json:"validator_count"`
		FogNodeCount      int    `mapstructure:"fog_node_count" json:"fog_node_count"`
	} `mapstructure:"network" json:"network"`

	Consensus struct {
		ShamirK            int `mapstructure:"shamir_k" json:"shamir_k"`
		ShamirN            int `mapstructure:"shamir_n" json:"shamir_n"`
		Quorum             int `mapstructure:"quorum" json:"quorum"`
		ByzantineTolerance int `mapstructure:"byzantine_tolerance" json:"byzantine_tolerance"`
		LeaderPartialSlack int `mapstructure:"leader_partial_slack" json:"leader_partial_slack"`
	} `mapstructure:"consensus" json:"consensus"`

	Privacy struct {
		Epsilon  float64 `mapstructure:"epsilon" json:"epsilon"`
		Delta    float64 `mapstructure:"delta" json:"delta"`
		ClipNorm float64 `mapstructure:"clip_norm" json:"clip_norm"`
	} `mapstructure:"privacy" json:"privacy"`

	PoW struct {
		Difficulty uint `mapstructure:"difficulty" json:"difficulty"`
	} `mapstructure:"pow" json:"pow"`

	Timeouts struct {
		ControlSeconds       int `mapstructure:"control_seconds" json:"control_seconds"`
		AggregateSeconds     int `mapstructure:"aggregate_seconds" json:"aggregate_seconds"`
		RoundDeadlineSeconds int `mapstructure:"round_deadline_seconds" json:"round_deadline_seconds"`
		RetryBound           int `mapstructure:"retry_bound" json:"retry_bound"`
		BackoffBaseMillis    int `mapstructure:"backoff_base_millis" json:"backoff_base_millis"`
	} `mapstructure:"timeouts" json:"timeouts"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment-specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up environment variables, including any cmd/facilityserver/config loaded from .env via godotenv

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the HIERFED_ENV environment
// variable to select the overlay file (e.g. "dev", "testnet").
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("HIERFED_ENV", ""))
}
