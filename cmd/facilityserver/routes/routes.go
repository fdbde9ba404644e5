package routes

import (
	"github.com/gorilla/mux"

	"github.com/saicha124/hierfed/cmd/facilityserver/controllers"
	"github.com/saicha124/hierfed/cmd/facilityserver/middleware"
	"github.com/saicha124/hierfed/pkg/httpstatus"
)

// Register wires the facility server's HTTP surface (spec §6).
func Register(r *mux.Router, fc *controllers.FacilityController) {
	r.Use(httpstatus.Recover)
	r.Use(middleware.Logger)
	r.HandleFunc("/", fc.Health).Methods("GET")
	r.HandleFunc("/register", fc.Register).Methods("POST")
	r.HandleFunc("/start_round", fc.StartRound).Methods("POST")
	r.HandleFunc("/receive_global_model", fc.ReceiveGlobalModel).Methods("POST")
}
