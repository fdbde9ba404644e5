package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	appconfig "github.com/saicha124/hierfed/cmd/config"
	"github.com/saicha124/hierfed/cmd/validatorserver/server"
	core "github.com/saicha124/hierfed/core"
)

func main() {
	appconfig.LoadConfig(os.Getenv("HIERFED_ENV"))
	cfg := appconfig.AppConfig

	id := envInt("VALIDATOR_ID", 0)
	quorum := cfg.Consensus.Quorum
	total := cfg.Network.ValidatorCount
	shamirK := cfg.Consensus.ShamirK
	shamirN := cfg.Consensus.ShamirN
	maxPayload := envInt("MAX_PAYLOAD_BYTES", 1<<20)

	state := core.NewValidatorState(id, quorum, total, shamirK, shamirN, maxPayload)
	state.Client = newHTTPGossiper()
	if urls := os.Getenv("PEER_URLS"); urls != "" {
		state.PeerURLs = strings.Split(urls, ",")
	}
	if urls := os.Getenv("FOG_URLS"); urls != "" {
		state.FogURLs = strings.Split(urls, ",")
	}

	h := server.NewHandlers(state)
	r := server.NewRouter(h)

	instanceID := uuid.New().String()
	addr := ":" + envString("VALIDATOR_PORT", fmt.Sprintf("%d", cfg.Network.ValidatorBasePort+id))
	logrus.WithFields(logrus.Fields{
		"instance_id":  instanceID,
		"validator_id": id,
	}).Infof("validator server listening on %s", addr)
	logrus.Fatal(http.ListenAndServe(addr, r))
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}
