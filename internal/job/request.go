package job

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"emrjobs/internal/apperrors"
	"emrjobs/internal/connection"
)

// Validation limits, matching what the control plane accepts.
const (
	maxNameLength     = 64
	maxTokenLength    = 64
	maxTagEntries     = 50
	maxTagKeyLen      = 128
	maxTagValueLen    = 256
	maxCallbackEvents = 16
)

// namePattern follows the control plane's job run name constraint.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/#-]*$`)

// tokenNamespace seeds deterministic client tokens. It is fixed for the
// life of the system; changing it would change every derived token.
var tokenNamespace = uuid.MustParse("b6f3e8d4-22b5-4c1a-9e06-5a1f4c4e8d27")

// BuildRun assembles a Run from a request and a connection profile. Fields
// missing from the request fall back to the profile. Pure: no network or
// file I/O.
//
// The client token defaults to a deterministic UUID derived from the run's
// identity (virtual cluster id + name), so a rebuilt request for the same
// logical job reuses the token and re-submission after a client-side
// timeout cannot create a duplicate remote run.
func BuildRun(profile connection.Profile, req *RunRequest) (*Run, error) {
	vc := req.VirtualClusterID
	if vc == "" {
		vc = profile.VirtualClusterID
	}
	role := req.ExecutionRoleArn
	if role == "" {
		role = profile.ExecutionRoleArn
	}
	release := req.ReleaseLabel
	if release == "" {
		release = profile.ReleaseLabel
	}

	if err := validate(vc, role, req); err != nil {
		return nil, err
	}

	token := req.ClientToken
	if token == "" {
		token = DeterministicToken(vc, req.Name)
	}

	return &Run{
		VirtualClusterID:       vc,
		Name:                   req.Name,
		ExecutionRoleArn:       role,
		ReleaseLabel:           release,
		Driver:                 req.Driver,
		ConfigurationOverrides: req.ConfigurationOverrides,
		Tags:                   req.Tags,
		ClientToken:            token,
		Callback:               req.Callback,
	}, nil
}

// DeterministicToken derives the idempotency token for a run identity.
// Same inputs, same token, across processes and restarts.
func DeterministicToken(virtualClusterID, name string) string {
	return uuid.NewSHA1(tokenNamespace, []byte(virtualClusterID+"/"+name)).String()
}

func validate(virtualClusterID, executionRoleArn string, req *RunRequest) error {
	if virtualClusterID == "" {
		return apperrors.Validation("virtualClusterId", "virtual cluster ID is required (request or connection profile)")
	}
	if executionRoleArn == "" {
		return apperrors.Validation("executionRoleArn", "execution role ARN is required (request or connection profile)")
	}

	if req.Name == "" {
		return apperrors.Validation("name", "run name is required")
	}
	if len(req.Name) > maxNameLength {
		return apperrors.Validation("name", fmt.Sprintf("run name exceeds maximum length of %d", maxNameLength))
	}
	if !namePattern.MatchString(req.Name) {
		return apperrors.Validation("name", "run name must be alphanumeric (dots, hyphens, underscores, slashes and hashes allowed, must start alphanumeric)")
	}

	if len(req.ClientToken) > maxTokenLength {
		return apperrors.Validation("clientToken", fmt.Sprintf("client token exceeds maximum length of %d", maxTokenLength))
	}

	if !hasJSONContent(req.Driver) {
		return apperrors.Validation("jobDriver", "job driver is required")
	}

	if len(req.Tags) > maxTagEntries {
		return apperrors.Validation("tags", fmt.Sprintf("tags exceed maximum of %d entries", maxTagEntries))
	}
	for k, v := range req.Tags {
		if len(k) > maxTagKeyLen {
			return apperrors.Validation("tags", fmt.Sprintf("tag key exceeds maximum length of %d", maxTagKeyLen))
		}
		if len(v) > maxTagValueLen {
			return apperrors.Validation("tags", fmt.Sprintf("tag value exceeds maximum length of %d", maxTagValueLen))
		}
	}

	if req.Callback != nil {
		if req.Callback.URL == "" {
			return apperrors.Validation("callback.url", "callback URL is required when a callback is set")
		}
		if err := validateURL(req.Callback.URL); err != nil {
			return apperrors.Validation("callback.url", fmt.Sprintf("invalid callback URL: %v", err))
		}
		if len(req.Callback.Events) > maxCallbackEvents {
			return apperrors.Validation("callback.events", fmt.Sprintf("callback events exceed maximum of %d", maxCallbackEvents))
		}
	}

	return nil
}

// hasJSONContent reports whether a raw payload carries an actual value.
func hasJSONContent(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
