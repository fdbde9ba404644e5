package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	pkgconfig "github.com/saicha124/hierfed/pkg/config"
)

// ServerConfig is the facility server's environment-driven startup
// configuration.
type ServerConfig struct {
	Port          string
	FacilityID    int
	TABaseURL     string
	ValidatorURLs []string
}

// AppConfig holds the loaded configuration.
var AppConfig ServerConfig

// Load reads facilityserver/.env and environment variables into
// AppConfig, falling back to the shared network config (pkg/config) for
// this instance's port when FACILITY_PORT is not set explicitly.
func Load() error {
	if err := godotenv.Load("cmd/facilityserver/.env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading env: %w", err)
	}
	shared, err := pkgconfig.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("loading shared config: %w", err)
	}
	facilityID := 1
	if v := os.Getenv("FACILITY_ID"); v != "" {
		fmt.Sscanf(v, "%d", &facilityID)
	}
	port := os.Getenv("FACILITY_PORT")
	if port == "" {
		port = fmt.Sprintf("%d", shared.Network.FacilityBasePort+facilityID)
	}
	AppConfig = ServerConfig{
		Port:       port,
		FacilityID: facilityID,
		TABaseURL:  os.Getenv("TA_BASE_URL"),
	}
	return nil
}
