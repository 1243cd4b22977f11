package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_IngestBatchSizes(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, 1000, cfg.Ingest.CreateBatchSize)
	assert.Equal(t, 500, cfg.Ingest.UpdateBatchSize)
	assert.Equal(t, 500, cfg.Ingest.EdgeDeleteBatchSize)
	assert.Equal(t, 2000, cfg.Ingest.EdgeInsertBatchSize)
	assert.Equal(t, 500, cfg.Ingest.EntityChunkSize)
	assert.Equal(t, 10, cfg.Ingest.SlugRetries)
	assert.Equal(t, 10, cfg.Ingest.MaxLoggedErrors)
	assert.Equal(t, DefaultKafkaTopic, cfg.Kafka.Topic)
}

func TestApplyDefaults_ExplicitValuesWin(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9090
	cfg.Ingest.CreateBatchSize = 10
	ApplyDefaults(cfg)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Ingest.CreateBatchSize)
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}
