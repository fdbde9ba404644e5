package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"github.com/saicha124/hierfed/internal/testutil"
)

func TestLoadConfigDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")
	if AppConfig.Network.FacilityCount != 4 {
		t.Fatalf("unexpected facility count: %d", AppConfig.Network.FacilityCount)
	}
	if AppConfig.Consensus.ShamirK != 2 || AppConfig.Consensus.ShamirN != 3 {
		t.Fatalf("unexpected shamir params: k=%d n=%d", AppConfig.Consensus.ShamirK, AppConfig.Consensus.ShamirN)
	}
}

func TestLoadConfigOverride(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("bootstrap")
	if AppConfig.Network.FacilityCount != 8 {
		t.Fatalf("expected FacilityCount 8, got %d", AppConfig.Network.FacilityCount)
	}
	if AppConfig.Consensus.Quorum != 3 {
		t.Fatalf("expected Quorum override to 3, got %d", AppConfig.Consensus.Quorum)
	}
}

func TestLoadConfigSandbox(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	data := []byte("network:\n  facility_count: 42\n")
	if err := sb.WriteFile("config/default.yaml", data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")

	if AppConfig.Network.FacilityCount != 42 {
		t.Fatalf("expected FacilityCount 42, got %d", AppConfig.Network.FacilityCount)
	}
}
