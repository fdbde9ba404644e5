package main

import (
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	appconfig "github.com/saicha124/hierfed/cmd/config"
	"github.com/saicha124/hierfed/cmd/facilityserver/config"
	"github.com/saicha124/hierfed/cmd/facilityserver/controllers"
	"github.com/saicha124/hierfed/cmd/facilityserver/routes"
	core "github.com/saicha124/hierfed/core"
)

// localTrainer is a stand-in for the opaque per-facility training step
// (spec §1/§4.1: "Invoke LocalTrainer.fit... opaque"). A real
// deployment substitutes a LocalTrainer backed by whatever ML
// framework the facility runs; this one adds 0.1 to every weight, so
// each round's update shows up in a demo cluster's global model.
func localTrainer() core.LocalTrainer {
	return core.LocalTrainerFunc(func(current core.WeightVector, epochs, batchSize int) (core.WeightVector, error) {
		out := current.Clone()
		for i, layer := range out.Layers {
			for j := range layer {
				out.Layers[i][j] += 0.1
			}
		}
		return out, nil
	})
}

func main() {
	if err := config.Load(); err != nil {
		logrus.Fatalf("config: %v", err)
	}
	appconfig.LoadConfig(os.Getenv("HIERFED_ENV"))

	keys, err := core.GenerateKeyPair()
	if err != nil {
		logrus.Fatalf("generate keypair: %v", err)
	}

	layerShapes := []int{8, 4}
	privacy := core.PrivacyParams{
		Epsilon:  appconfig.AppConfig.Privacy.Epsilon,
		Delta:    appconfig.AppConfig.Privacy.Delta,
		ClipNorm: appconfig.AppConfig.Privacy.ClipNorm,
	}
	shamirK := appconfig.AppConfig.Consensus.ShamirK
	shamirN := appconfig.AppConfig.Consensus.ShamirN

	state := core.NewFacilityState(config.AppConfig.FacilityID, keys, localTrainer(), privacy, shamirK, shamirN, layerShapes)
	if urls := os.Getenv("VALIDATOR_URLS"); urls != "" {
		state.ValidatorURLs = strings.Split(urls, ",")
	}

	difficulty := appconfig.AppConfig.PoW.Difficulty
	ctrl := controllers.NewFacilityController(state, config.AppConfig.TABaseURL, difficulty)

	r := mux.NewRouter()
	routes.Register(r, ctrl)

	instanceID := uuid.New().String()
	addr := ":" + config.AppConfig.Port
	logrus.WithFields(logrus.Fields{
		"instance_id": instanceID,
		"facility_id": config.AppConfig.FacilityID,
	}).Infof("facility server listening on %s", addr)
	logrus.Fatal(http.ListenAndServe(addr, r))
}
