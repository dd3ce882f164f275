package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// RuntimeEnv is the environment the host (container runtime or edge agent)
// hands to the process. Unlike Options these names carry no KVSNODE_ prefix.
type RuntimeEnv struct {
	// Container credential endpoint and its bearer token.
	CredentialsURI       string `envconfig:"AWS_CONTAINER_CREDENTIALS_FULL_URI"`
	CredentialsAuthToken string `envconfig:"AWS_CONTAINER_AUTHORIZATION_TOKEN"`

	AccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	Region          string `envconfig:"AWS_REGION"`

	OutputTopic string `envconfig:"OUTPUT_TOPIC"`

	GstPluginPath  string `envconfig:"GST_PLUGIN_PATH"`
	LDLibraryPath  string `envconfig:"LD_LIBRARY_PATH"`
	GstLaunchPath  string `envconfig:"GST_LAUNCH_PATH" default:"gst-launch-1.0"`
	CredentialsDir string `envconfig:"KVS_CREDENTIALS_DIR"`
}

// LoadRuntimeEnv reads RuntimeEnv from the process environment.
func LoadRuntimeEnv() (*RuntimeEnv, error) {
	var env RuntimeEnv
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("read runtime environment: %w", err)
	}
	if env.CredentialsAuthToken != "" && env.CredentialsURI == "" {
		return nil, fmt.Errorf("AWS_CONTAINER_AUTHORIZATION_TOKEN is set without AWS_CONTAINER_CREDENTIALS_FULL_URI")
	}
	return &env, nil
}

// HasCredentialEndpoint reports whether credentials should come from the
// container credential endpoint rather than static keys.
func (e *RuntimeEnv) HasCredentialEndpoint() bool {
	return e.CredentialsURI != ""
}

// PipelineEnv returns the extra environment the media engine needs.
func (e *RuntimeEnv) PipelineEnv() []string {
	var env []string
	if e.GstPluginPath != "" {
		env = append(env, "GST_PLUGIN_PATH="+e.GstPluginPath)
	}
	if e.LDLibraryPath != "" {
		env = append(env, "LD_LIBRARY_PATH="+e.LDLibraryPath)
	}
	return env
}
