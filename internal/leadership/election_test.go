/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package leadership

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ElectionKey != "belfry:leader:scheduler" {
		t.Errorf("ElectionKey = %q", cfg.ElectionKey)
	}
	if cfg.LeaseDuration != 15*time.Second || cfg.RenewalInterval != 5*time.Second || cfg.RetryInterval != 2*time.Second {
		t.Errorf("unexpected timings: %+v", cfg)
	}
	if cfg.InstanceID == "" {
		t.Error("InstanceID should be generated")
	}
	if cfg.RenewalInterval >= cfg.LeaseDuration {
		t.Error("leader must renew before its lease expires")
	}
}

func TestNewElectionUnreachableRedis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1"

	if _, err := NewElection(cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestSetLeaderNotifiesOnChange(t *testing.T) {
	e := &Election{
		logger:     zerolog.Nop(),
		instanceID: "node-a",
		leaderCh:   make(chan bool, 1),
	}

	e.setLeader(true)
	if !e.IsLeader() {
		t.Fatal("expected leader")
	}
	if got := <-e.LeaderCh(); !got {
		t.Fatal("expected acquired notification")
	}

	e.setLeader(true)
	select {
	case <-e.LeaderCh():
		t.Fatal("unchanged status must not notify")
	default:
	}

	e.setLeader(false)
	if e.IsLeader() || <-e.LeaderCh() {
		t.Fatal("expected lost leadership")
	}
}

func TestSetLeaderKeepsLatestTransition(t *testing.T) {
	e := &Election{logger: zerolog.Nop(), instanceID: "node-b", leaderCh: make(chan bool, 1)}

	e.setLeader(true)
	e.setLeader(false)
	if got := <-e.LeaderCh(); got {
		t.Fatal("reader should see the latest transition, not the stale one")
	}
}

func TestConfigDefaults(t *testing.T) {
	tests := []struct {
		name        string
		in          ElectionConfig
		wantLease   time.Duration
		wantRenewal time.Duration
	}{
		{"zero", ElectionConfig{}, 15 * time.Second, 5 * time.Second},
		{"renewal too slow", ElectionConfig{LeaseDuration: 9 * time.Second, RenewalInterval: 10 * time.Second}, 9 * time.Second, 3 * time.Second},
		{"explicit", ElectionConfig{LeaseDuration: 30 * time.Second, RenewalInterval: 10 * time.Second}, 30 * time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.withDefaults()
			if got.LeaseDuration != tt.wantLease || got.RenewalInterval != tt.wantRenewal {
				t.Fatalf("lease=%v renewal=%v", got.LeaseDuration, got.RenewalInterval)
			}
			if got.ElectionKey != defaultElectionKey || got.InstanceID == "" || got.RetryInterval != defaultRetryInterval {
				t.Fatalf("defaults not applied: %+v", got)
			}
		})
	}
}

func TestStartTwice(t *testing.T) {
	e := &Election{logger: zerolog.Nop(), leaderCh: make(chan bool, 1)}
	e.cancel = func() {}
	if err := e.Start(context.Background()); err == nil {
		t.Fatal("expected error on second start")
	}
}
