package config

import (
	"reflect"
	"testing"
)

func TestLoadRuntimeEnv(t *testing.T) {
	t.Setenv("AWS_CONTAINER_CREDENTIALS_FULL_URI", "http://127.0.0.1:9000/creds")
	t.Setenv("AWS_CONTAINER_AUTHORIZATION_TOKEN", "secret-token")
	t.Setenv("OUTPUT_TOPIC", "kvs/status")
	t.Setenv("GST_PLUGIN_PATH", "/opt/kvs/plugins")
	t.Setenv("LD_LIBRARY_PATH", "/opt/kvs/lib")

	env, err := LoadRuntimeEnv()
	if err != nil {
		t.Fatalf("LoadRuntimeEnv failed: %v", err)
	}

	if !env.HasCredentialEndpoint() {
		t.Error("expected credential endpoint to be detected")
	}
	if env.OutputTopic != "kvs/status" {
		t.Errorf("OutputTopic = %q", env.OutputTopic)
	}
	if env.GstLaunchPath != "gst-launch-1.0" {
		t.Errorf("GstLaunchPath default = %q", env.GstLaunchPath)
	}

	want := []string{"GST_PLUGIN_PATH=/opt/kvs/plugins", "LD_LIBRARY_PATH=/opt/kvs/lib"}
	if got := env.PipelineEnv(); !reflect.DeepEqual(got, want) {
		t.Errorf("PipelineEnv() = %v, want %v", got, want)
	}
}

func TestLoadRuntimeEnvTokenWithoutURI(t *testing.T) {
	t.Setenv("AWS_CONTAINER_CREDENTIALS_FULL_URI", "")
	t.Setenv("AWS_CONTAINER_AUTHORIZATION_TOKEN", "orphan")

	if _, err := LoadRuntimeEnv(); err == nil {
		t.Error("expected error when token is set without URI")
	}
}
