package controllers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	core "github.com/saicha124/hierfed/core"
	"github.com/saicha124/hierfed/pkg/httpstatus"
)

// FacilityController exposes the HTTP surface named in spec §6:
// GET /, POST /register, POST /start_round, POST /receive_global_model.
type FacilityController struct {
	state         *core.FacilityState
	taBaseURL     string
	powDifficulty uint
	client        *http.Client
	retry         core.RetryConfig
}

// NewFacilityController wires a controller around a facility's state
// machine.
func NewFacilityController(state *core.FacilityState, taBaseURL string, powDifficulty uint) *FacilityController {
	return &FacilityController{
		state:         state,
		taBaseURL:     taBaseURL,
		powDifficulty: powDifficulty,
		client:        &http.Client{},
		retry:         core.RetryConfig{MaxAttempts: 5, BaseDelay: 0},
	}
}

type healthResponse struct {
	FacilityID int    `json:"facility_id"`
	Round      uint64 `json:"round"`
	Status     string `json:"status"`
}

// Health serves GET / (spec §6: "health: {facility_id, round, status}").
func (fc *FacilityController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{
		FacilityID: fc.state.FacilityID,
		Round:      uint64(fc.state.Rounds.Current()),
		Status:     "ok",
	})
}

type registrationAck struct {
	IssuedKey string `json:"issued_key"`
}

// Register solves PoW and POSTs the registration request to the TA
// (spec §4.1 "Registration").
func (fc *FacilityController) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	challenge := fc.state.RegistrationChallenge()
	pow, err := core.SolvePoW(ctx, challenge, fc.powDifficulty, 10000, func(attempts uint64) {
		log.WithField("facility_id", fc.state.FacilityID).Debugf("pow progress: %d attempts", attempts)
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	req := core.RegistrationRequest{
		FacilityID: fc.state.FacilityID,
		PublicKey:  fc.state.RegistrationPublicKeyHex(),
		PoW:        pow,
		Attributes: core.AttributeSet{},
	}
	body, err := json.Marshal(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp, err := core.PostJSON(ctx, fc.client, fc.taBaseURL+"/register_facility", body, fc.retry)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	var ack registrationAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	fc.state.SetAttributeKey(ack.IssuedKey)
	writeJSON(w, ack)
}

// StartRound triggers one training round (spec §6: "raw bytes =
// serialized WeightVector"). A non-empty body decodes to the previous
// global model to install before training; an empty body rolls forward
// from whatever ReceiveGlobalModel last installed. The round itself is
// this facility's own next local round, since the wire contract carries
// no round field.
func (fc *FacilityController) StartRound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var previousGlobal *core.WeightVector
	if len(body) > 0 {
		decoded, err := core.DecodeWeightVector(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		previousGlobal = &decoded
	}
	round := fc.state.Rounds.Current()
	postShare := func(ctx context.Context, validatorIdx int, sh core.Share) error {
		body, err := json.Marshal(sh)
		if err != nil {
			return err
		}
		url := fc.validatorURL(validatorIdx) + "/validate_share"
		resp, err := core.PostJSON(ctx, fc.client, url, body, fc.retry)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
	if err := fc.state.StartRound(r.Context(), round, previousGlobal, postShare); err != nil {
		httpstatus.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (fc *FacilityController) validatorURL(idx int) string {
	urls := fc.state.ValidatorURLs
	if idx < 0 || idx >= len(urls) {
		return ""
	}
	return urls[idx]
}

type receiveGlobalRequest struct {
	Round         uint64 `json:"round"`
	EncryptedData string `json:"encrypted_data"`
	Nonce         string `json:"nonce"`
	Key           string `json:"key"`
}

// ReceiveGlobalModel serves POST /receive_global_model (spec §6).
func (fc *FacilityController) ReceiveGlobalModel(w http.ResponseWriter, r *http.Request) {
	var req receiveGlobalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ciphertext, err := hex.DecodeString(req.EncryptedData)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	nonce, err := hex.DecodeString(req.Nonce)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key, err := hex.DecodeString(req.Key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wrapped := core.WrappedModel{Round: core.RoundId(req.Round), Nonce: nonce, Ciphertext: ciphertext}
	if err := fc.state.ReceiveGlobal(core.RoundId(req.Round), wrapped, key); err != nil {
		httpstatus.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
