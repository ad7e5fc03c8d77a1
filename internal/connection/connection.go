// Package connection resolves named connection profiles for the remote
// control plane.
//
// A profile is looked up by name, first from the environment variable
// EMRJOBS_CONN_<NAME> (JSON), then from the profiles file. The name
// "default" with no explicit profile resolves to an empty profile, which
// means the ambient credential chain of the host.
package connection

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"emrjobs/internal/apperrors"
)

// EnvPrefix is prepended to the upper-cased profile name to form the
// environment variable holding a JSON profile.
const EnvPrefix = "EMRJOBS_CONN_"

// DefaultName is the profile name used when a request does not pick one.
const DefaultName = "default"

// Profile holds the settings needed to reach one control-plane account,
// plus per-profile defaults merged into run requests that omit them.
// All fields are optional; an empty profile uses the ambient credential
// chain and default endpoint resolution.
type Profile struct {
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"` // override, mainly for tests and local stacks
	AccessKeyID     string `json:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty"`
	SessionToken    string `json:"sessionToken,omitempty"`

	// Run defaults, used when the request leaves them empty.
	VirtualClusterID string `json:"virtualClusterId,omitempty"`
	ExecutionRoleArn string `json:"executionRoleArn,omitempty"`
	ReleaseLabel     string `json:"releaseLabel,omitempty"`
}

// HasStaticCredentials reports whether the profile pins its own key pair
// instead of the ambient chain.
func (p Profile) HasStaticCredentials() bool {
	return p.AccessKeyID != "" && p.SecretAccessKey != ""
}

// String renders the profile without secrets.
func (p Profile) String() string {
	creds := "ambient"
	if p.HasStaticCredentials() {
		creds = "static"
	}
	return fmt.Sprintf("region=%s endpoint=%s credentials=%s", p.Region, p.Endpoint, creds)
}

// Store resolves profiles by name.
type Store struct {
	path string // profiles file, may be empty
}

// NewStore creates a store backed by the given profiles file. An empty path
// means environment-only resolution.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// NewStoreFromEnv creates a store using the PROFILES_FILE environment
// variable for the file path.
func NewStoreFromEnv() *Store {
	return NewStore(os.Getenv("PROFILES_FILE"))
}

// Resolve returns the profile for name. Environment variables win over the
// profiles file. An unknown name other than "default" is a not-found error.
func (s *Store) Resolve(name string) (Profile, error) {
	if name == "" {
		name = DefaultName
	}

	if raw := os.Getenv(envKey(name)); raw != "" {
		var p Profile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return Profile{}, apperrors.Validation("connection", fmt.Sprintf("profile %q in environment is not valid JSON: %v", name, err))
		}
		return p, nil
	}

	if s.path != "" {
		profiles, err := s.loadFile()
		if err != nil {
			return Profile{}, err
		}
		if p, ok := profiles[name]; ok {
			return p, nil
		}
	}

	if name == DefaultName {
		return Profile{}, nil
	}
	return Profile{}, apperrors.NotFound("connection", name)
}

func (s *Store) loadFile() (map[string]Profile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read profiles file %s: %w", s.path, err)
	}

	var profiles map[string]Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, apperrors.Validation("connection", fmt.Sprintf("profiles file %s is not valid JSON: %v", s.path, err))
	}
	return profiles, nil
}

func envKey(name string) string {
	upper := strings.ToUpper(name)
	upper = strings.ReplaceAll(upper, "-", "_")
	upper = strings.ReplaceAll(upper, ".", "_")
	return EnvPrefix + upper
}
