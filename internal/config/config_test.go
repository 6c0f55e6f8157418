package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "ORACLE_MODE", "CHAIN_ID", "KAFKA_TOPIC"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %s, want %s", cfg.Port, DefaultPort)
	}
	if cfg.Env != DefaultEnv {
		t.Errorf("Env = %s, want %s", cfg.Env, DefaultEnv)
	}
	if cfg.OracleMode != DefaultOracleMode {
		t.Errorf("OracleMode = %s, want %s", cfg.OracleMode, DefaultOracleMode)
	}
	if cfg.ChainID != DefaultChainID {
		t.Errorf("ChainID = %d, want %d", cfg.ChainID, DefaultChainID)
	}
	if cfg.KafkaTopic != DefaultKafkaTopic {
		t.Errorf("KafkaTopic = %s, want %s", cfg.KafkaTopic, DefaultKafkaTopic)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("CHAIN_ID", "1")
	t.Setenv("ORACLE_MODE", "embedded")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "9090" || cfg.ChainID != 1 || cfg.OracleMode != "embedded" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if !cfg.IsProduction() || cfg.IsDevelopment() {
		t.Error("env predicates disagree with ENV=production")
	}
}

func TestValidate(t *testing.T) {
	validKey := "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"minimal", Config{OracleMode: "remote"}, false},
		{"embedded oracle", Config{OracleMode: "embedded"}, false},
		{"oracle off", Config{OracleMode: "off"}, false},
		{"bad oracle mode", Config{OracleMode: "local"}, true},
		{"remote with url", Config{OracleMode: "remote", OracleURL: "http://oracle:9000"}, false},
		{"remote with bad url", Config{OracleMode: "remote", OracleURL: "oracle:9000"}, true},
		{
			"anchoring complete",
			Config{OracleMode: "off", RPCURL: "http://rpc", PrivateKey: validKey, ChainID: 84532, ContractAddress: "0x1"},
			false,
		},
		{
			"anchoring with prefixed key",
			Config{OracleMode: "off", RPCURL: "http://rpc", PrivateKey: "0x" + validKey, ChainID: 84532, ContractAddress: "0x1"},
			false,
		},
		{
			"anchoring with short key",
			Config{OracleMode: "off", RPCURL: "http://rpc", PrivateKey: "abcd", ChainID: 84532, ContractAddress: "0x1"},
			true,
		},
		{
			"anchoring without chain id",
			Config{OracleMode: "off", RPCURL: "http://rpc", PrivateKey: validKey, ChainID: 0, ContractAddress: "0x1"},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAnchoringConfigured(t *testing.T) {
	full := Config{RPCURL: "http://rpc", PrivateKey: "key", ContractAddress: "0x1"}
	if !full.AnchoringConfigured() {
		t.Error("AnchoringConfigured() = false with all settings present")
	}

	partials := []Config{
		{PrivateKey: "key", ContractAddress: "0x1"},
		{RPCURL: "http://rpc", ContractAddress: "0x1"},
		{RPCURL: "http://rpc", PrivateKey: "key"},
		{},
	}
	for i, cfg := range partials {
		if cfg.AnchoringConfigured() {
			t.Errorf("partial config %d reported anchoring configured", i)
		}
	}
}
