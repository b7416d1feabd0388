/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package main

import (
	"testing"

	"github.com/blnkfinance/pledge/config"
	"github.com/stretchr/testify/assert"
)

func TestRedactConfig(t *testing.T) {
	cfg := config.Configuration{
		ProjectName:  "pledge",
		Server:       config.ServerConfig{SecretKey: "master-key", Port: "5010"},
		TelemetryKey: "phc_secret",
	}
	out := redactConfig(cfg)
	assert.Equal(t, redacted, out.Server.SecretKey)
	assert.Equal(t, redacted, out.TelemetryKey)
	assert.Equal(t, "5010", out.Server.Port)
	assert.Equal(t, "master-key", cfg.Server.SecretKey, "the loaded config is left untouched")

	assert.Empty(t, redactConfig(config.Configuration{}).Server.SecretKey)
}

func TestInitializeQueues(t *testing.T) {
	cfg := &config.Configuration{Queue: config.QueueConfig{
		ReconcileQueue: config.DEFAULT_RECONCILE_QUEUE,
		WebhookQueue:   config.DEFAULT_WEBHOOK_QUEUE,
	}}
	queues := initializeQueues(cfg)
	assert.Len(t, queues, 2)
	assert.Greater(t, queues[config.DEFAULT_RECONCILE_QUEUE], queues[config.DEFAULT_WEBHOOK_QUEUE])
}

func TestNewCLI(t *testing.T) {
	cli := NewCLI()
	names := map[string]bool{}
	for _, c := range cli.cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"start", "workers", "migrate", "sync", "multisig", "config"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}
