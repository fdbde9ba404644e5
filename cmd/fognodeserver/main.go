package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	appconfig "github.com/saicha124/hierfed/cmd/config"
	core "github.com/saicha124/hierfed/core"
	"github.com/saicha124/hierfed/pkg/httpstatus"
)

var state *core.FogNodeState
var leaderURL string
var client = &http.Client{}
var retry = core.RetryConfig{MaxAttempts: 5, BaseDelay: 0}

func receiveShareHandler(w http.ResponseWriter, r *http.Request) {
	var sh core.Share
	if err := json.NewDecoder(r.Body).Decode(&sh); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := state.ReceiveShare(sh.Round, sh); err != nil {
		httpstatus.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type aggregateRequest struct {
	Round uint64 `json:"round"`
}

func aggregateHandler(w http.ResponseWriter, r *http.Request) {
	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	partial, err := state.Aggregate(r.Context(), core.RoundId(req.Round))
	if err != nil {
		httpstatus.WriteError(w, err)
		return
	}
	body, err := json.Marshal(partial)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	resp, err := core.PostJSON(ctx, client, leaderURL+"/receive_fog_aggregation", body, retry)
	if err != nil {
		log.WithField("fog_node_id", state.FogNodeID).Warnf("leader unreachable: %v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	resp.Body.Close()
	w.WriteHeader(http.StatusNoContent)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"fog_node_id": state.FogNodeID, "status": "ok"})
}

func main() {
	appconfig.LoadConfig(os.Getenv("HIERFED_ENV"))
	cfg := appconfig.AppConfig

	keys, err := core.GenerateKeyPair()
	if err != nil {
		log.Fatalf("generate keypair: %v", err)
	}
	id := envInt("FOG_NODE_ID", 0)
	shamirK := cfg.Consensus.ShamirK
	state = core.NewFogNodeState(id, keys, shamirK)
	leaderURL = os.Getenv("LEADER_URL")

	instanceID := uuid.New().String()
	addr := ":" + envString("FOG_PORT", fmt.Sprintf("%d", cfg.Network.FogBasePort+id))
	http.Handle("/receive_share", httpstatus.Recover(http.HandlerFunc(receiveShareHandler)))
	http.Handle("/aggregate", httpstatus.Recover(http.HandlerFunc(aggregateHandler)))
	http.HandleFunc("/", healthHandler)

	log.WithFields(log.Fields{
		"instance_id": instanceID,
		"fog_node_id": id,
	}).Infof("fog node server listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
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
