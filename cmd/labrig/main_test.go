package main

import "testing"

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("LABRIG_CONFIG", "")

	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	t.Setenv("LABRIG_CONFIG", "/etc/labrig/rig-2.yaml")

	if got := getConfigPath(); got != "/etc/labrig/rig-2.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}
