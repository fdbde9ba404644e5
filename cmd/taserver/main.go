package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	appconfig "github.com/saicha124/hierfed/cmd/config"
	core "github.com/saicha124/hierfed/core"
	"github.com/saicha124/hierfed/pkg/httpstatus"
)

var state *core.TAState
var facilityURLs map[int]string
var validatorURLs []string
var client = &http.Client{}
var retry = core.RetryConfig{MaxAttempts: 5, BaseDelay: 0}

func registerFacilityHandler(w http.ResponseWriter, r *http.Request) {
	var req core.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := state.RegisterFacility(req)
	if err != nil {
		httpstatus.WriteError(w, err)
		return
	}
	go broadcastIssuer(req)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// broadcastIssuer pushes a newly registered facility's record to every
// validator so it can verify that facility's shares out of its own
// cache (spec §4.2 step 1) instead of round-tripping to the authority.
func broadcastIssuer(req core.RegistrationRequest) {
	pub, err := hex.DecodeString(req.PublicKey)
	if err != nil {
		log.WithField("facility_id", req.FacilityID).Warnf("broadcast issuer: bad public key: %v", err)
		return
	}
	rec := core.RegisteredIssuer{
		FacilityID: req.FacilityID,
		PublicKey:  pub,
		PoW:        req.PoW,
		Difficulty: state.Difficulty,
	}
	body, err := json.Marshal(rec)
	if err != nil {
		log.Warnf("broadcast issuer: marshal: %v", err)
		return
	}
	for _, url := range validatorURLs {
		url := url
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		resp, err := core.PostJSON(ctx, client, url+"/register_issuer", body, retry)
		cancel()
		if err != nil {
			log.WithField("validator_url", url).Warnf("broadcast issuer failed: %v", err)
			continue
		}
		resp.Body.Close()
	}
}

type distributeRequest struct {
	Round     uint64            `json:"round"`
	Weights   core.WeightVector `json:"weights"`
	Signature string            `json:"leader_signature"`
}

func distributeGlobalModelHandler(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	gm := core.GlobalModel{Round: core.RoundId(req.Round), Weights: req.Weights, Signature: req.Signature}

	targets := make([]core.DistributionTarget, 0, len(facilityURLs))
	for facilityID, baseURL := range facilityURLs {
		baseURL := baseURL
		targets = append(targets, core.DistributionTarget{
			FacilityID: facilityID,
			Deliver: func(ctx context.Context, wrapped core.WrappedModel, key []byte) error {
				return deliverGlobal(ctx, baseURL, wrapped, key)
			},
		})
	}

	if err := state.DistributeGlobal(r.Context(), gm, targets); err != nil {
		httpstatus.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type receiveGlobalPayload struct {
	Round         uint64 `json:"round"`
	EncryptedData string `json:"encrypted_data"`
	Nonce         string `json:"nonce"`
	Key           string `json:"key"`
}

func deliverGlobal(ctx context.Context, baseURL string, wrapped core.WrappedModel, key []byte) error {
	payload := receiveGlobalPayload{
		Round:         uint64(wrapped.Round),
		EncryptedData: hex.EncodeToString(wrapped.Ciphertext),
		Nonce:         hex.EncodeToString(wrapped.Nonce),
		Key:           hex.EncodeToString(key),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	resp, err := core.PostJSON(ctx, client, baseURL+"/receive_global_model", body, retry)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
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
	difficulty := cfg.PoW.Difficulty
	policy := loadPolicy()
	state = core.NewTAState(keys, difficulty, policy)
	facilityURLs = loadFacilityURLs()
	if urls := os.Getenv("VALIDATOR_URLS"); urls != "" {
		validatorURLs = strings.Split(urls, ",")
	}

	instanceID := uuid.New().String()
	addr := ":" + envString("TA_PORT", fmt.Sprintf("%d", cfg.Network.TAPort))
	http.Handle("/register_facility", httpstatus.Recover(http.HandlerFunc(registerFacilityHandler)))
	http.Handle("/distribute_global_model", httpstatus.Recover(http.HandlerFunc(distributeGlobalModelHandler)))
	http.HandleFunc("/", healthHandler)

	log.WithField("instance_id", instanceID).Infof("trusted authority server listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

// loadPolicy builds the access policy from POLICY_ATTR/POLICY_VALUE,
// defaulting to an always-true policy (every attribute set satisfies an
// empty conjunction) when unset.
func loadPolicy() core.PolicyExpr {
	attr := os.Getenv("POLICY_ATTR")
	value := os.Getenv("POLICY_VALUE")
	if attr == "" {
		return core.And()
	}
	return core.Leaf(attr, value)
}

// loadFacilityURLs parses FACILITY_URLS as a comma-separated list,
// assigning facility IDs 1..N by position.
func loadFacilityURLs() map[int]string {
	out := make(map[int]string)
	raw := os.Getenv("FACILITY_URLS")
	if raw == "" {
		return out
	}
	for i, url := range strings.Split(raw, ",") {
		out[i+1] = url
	}
	return out
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
