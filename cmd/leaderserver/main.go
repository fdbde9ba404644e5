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

var state *core.LeaderState
var taURL string
var client = &http.Client{}
var retry = core.RetryConfig{MaxAttempts: 5, BaseDelay: 0}

func receiveFogAggregationHandler(w http.ResponseWriter, r *http.Request) {
	var partial core.FogPartial
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := state.ReceiveFogPartial(partial.Round, partial); err != nil {
		httpstatus.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type aggregateRequest struct {
	Round           uint64 `json:"round"`
	DeadlineExpired bool   `json:"deadline_expired"`
}

func aggregateHandler(w http.ResponseWriter, r *http.Request) {
	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	gm, err := state.Aggregate(r.Context(), core.RoundId(req.Round), req.DeadlineExpired)
	if err != nil {
		httpstatus.WriteError(w, err)
		return
	}
	body, err := json.Marshal(gm)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	resp, err := core.PostJSON(ctx, client, taURL+"/distribute_global_model", body, retry)
	if err != nil {
		log.Warnf("TA unreachable: %v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	resp.Body.Close()
	w.WriteHeader(http.StatusNoContent)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

func main() {
	appconfig.LoadConfig(os.Getenv("HIERFED_ENV"))
	cfg := appconfig.AppConfig

	keys, err := core.GenerateKeyPair()
	if err != nil {
		log.Fatalf("generate keypair: %v", err)
	}
	fogNodeCount := cfg.Network.FogNodeCount
	slack := cfg.Consensus.LeaderPartialSlack
	state = core.NewLeaderState(keys, fogNodeCount, slack)
	taURL = os.Getenv("TA_URL")

	instanceID := uuid.New().String()
	addr := ":" + envString("LEADER_PORT", fmt.Sprintf("%d", cfg.Network.LeaderPort))
	http.Handle("/receive_fog_aggregation", httpstatus.Recover(http.HandlerFunc(receiveFogAggregationHandler)))
	http.Handle("/aggregate", httpstatus.Recover(http.HandlerFunc(aggregateHandler)))
	http.HandleFunc("/", healthHandler)

	log.WithField("instance_id", instanceID).Infof("leader server listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
