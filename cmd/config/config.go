// Package config in cmd provides a thin wrapper around the shared
// configuration loader found in pkg/config. It exposes the loaded
// configuration via the AppConfig variable for role-server main
// packages and their tests.
package config

import (
	pkgconfig "github.com/saicha124/hierfed/pkg/config"
)

// AppConfig holds the currently loaded configuration for role-server
// entry points. It mirrors pkg/config.AppConfig but is scoped to this
// package for convenience when writing cmd/ main packages and tests.
var AppConfig pkgconfig.Config

// LoadConfig loads the configuration for the given environment overlay
// and stores it in AppConfig. Any error during loading causes a panic,
// acceptable at role-server startup where failure should abort launch.
func LoadConfig(env string) {
	cfg, err := pkgconfig.Load(env)
	if err != nil {
		panic(err)
	}
	AppConfig = *cfg
}
