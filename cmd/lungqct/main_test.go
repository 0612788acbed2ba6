package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lungqct/pkg/config"
)

func TestApplyFlags_Regions(t *testing.T) {
	cfg := config.DefaultConfig()
	applyFlags(cfg, flagOverrides{ul: true, quadrants: true})

	assert.Equal(t, []string{
		"bilat", "upper", "lower",
		"upper_ventral", "upper_dorsal", "lower_ventral", "lower_dorsal",
	}, cfg.QCT.Regions)
	assert.NoError(t, cfg.Validate())
}

func TestApplyFlags_KeepsConfigWithoutSwitches(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.QCT.Regions = []string{"bilat", "ventral"}
	applyFlags(cfg, flagOverrides{baseDir: "/data", numCores: 3, noPlots: true, dbPath: "runs.db"})

	assert.Equal(t, []string{"bilat", "ventral"}, cfg.QCT.Regions)
	assert.Equal(t, "/data", cfg.Input.BaseDir)
	assert.Equal(t, 3, cfg.Processing.NumCores)
	assert.False(t, cfg.Output.Plots)
	assert.Equal(t, "runs.db", cfg.Output.Database)
	assert.Equal(t, "results", cfg.Output.Dir)
}
