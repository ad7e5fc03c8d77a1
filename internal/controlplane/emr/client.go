// Package emr implements the job.ControlPlane interface against the AWS
// EMR on EKS API. Job runs execute as Spark workloads on a virtual cluster.
package emr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/emrcontainers"
	"github.com/aws/aws-sdk-go-v2/service/emrcontainers/types"

	"emrjobs/internal/apperrors"
	"emrjobs/internal/connection"
	"emrjobs/internal/job"
)

// Client implements job.ControlPlane using the EMR on EKS API.
//
// The SDK's own retry middleware is disabled so that the poller's backoff
// policy is the only retry loop in play. Idempotency comes from the
// clientToken on every submission: resubmitting with the same token returns
// the original job run id instead of starting a duplicate.
type Client struct {
	api        API
	httpClient *http.Client // owned transport, closed by Close
}

// NewClient wraps an already constructed SDK surface. Used by tests and by
// callers that manage their own aws.Config.
func NewClient(api API) *Client {
	return &Client{api: api}
}

// NewFromProfile builds a client from a connection profile. A zero profile
// uses the ambient AWS credential chain and default region resolution.
// Static credentials and a custom endpoint, when present, take precedence.
func NewFromProfile(ctx context.Context, profile connection.Profile) (*Client, error) {
	// The client gets its own transport so closing it cannot strand idle
	// connections owned by anyone else.
	httpClient := &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(httpClient),
	}
	if profile.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(profile.Region))
	}
	if profile.HasStaticCredentials() {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(profile.AccessKeyID, profile.SecretAccessKey, profile.SessionToken)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	sdk := emrcontainers.NewFromConfig(awsCfg, func(o *emrcontainers.Options) {
		if profile.Endpoint != "" {
			o.BaseEndpoint = aws.String(profile.Endpoint)
		}
		// The poller owns retries. SDK attempts must stay at one so the
		// backoff budget counts real control-plane calls.
		o.Retryer = aws.NopRetryer{}
	})

	slog.Info("EMR control plane client created",
		"region", awsCfg.Region,
		"profile", profile.String(),
	)
	return &Client{api: sdk, httpClient: httpClient}, nil
}

// Submit starts a job run and returns the remote job id. The run's client
// token makes the call idempotent, so a retried submission after a lost
// response lands on the same job run.
func (c *Client) Submit(ctx context.Context, run *job.Run) (string, error) {
	input := &emrcontainers.StartJobRunInput{
		VirtualClusterId: aws.String(run.VirtualClusterID),
		Name:             aws.String(run.Name),
		ExecutionRoleArn: aws.String(run.ExecutionRoleArn),
		ClientToken:      aws.String(run.ClientToken),
	}
	if run.ReleaseLabel != "" {
		input.ReleaseLabel = aws.String(run.ReleaseLabel)
	}
	if len(run.Tags) > 0 {
		input.Tags = run.Tags
	}

	if len(run.Driver) > 0 {
		var driver types.JobDriver
		if err := json.Unmarshal(run.Driver, &driver); err != nil {
			return "", apperrors.Validation("jobDriver", fmt.Sprintf("job driver is not a valid driver document: %v", err))
		}
		input.JobDriver = &driver
	}
	if len(run.ConfigurationOverrides) > 0 {
		var overrides types.ConfigurationOverrides
		if err := json.Unmarshal(run.ConfigurationOverrides, &overrides); err != nil {
			return "", apperrors.Validation("configurationOverrides", fmt.Sprintf("configuration overrides are not a valid document: %v", err))
		}
		input.ConfigurationOverrides = &overrides
	}

	out, err := c.api.StartJobRun(ctx, input)
	if err != nil {
		return "", translate("emr.StartJobRun", err)
	}
	return aws.ToString(out.Id), nil
}

// Describe fetches the current remote state of a job run. The failure
// reason combines the API's coarse reason code with the free-text state
// details when both are present.
func (c *Client) Describe(ctx context.Context, virtualClusterID, jobID string) (*job.RemoteStatus, error) {
	out, err := c.api.DescribeJobRun(ctx, &emrcontainers.DescribeJobRunInput{
		Id:               aws.String(jobID),
		VirtualClusterId: aws.String(virtualClusterID),
	})
	if err != nil {
		return nil, translate("emr.DescribeJobRun", err)
	}
	if out.JobRun == nil {
		return nil, apperrors.NotFound("job run", jobID)
	}

	return &job.RemoteStatus{
		State:         string(out.JobRun.State),
		FailureReason: failureText(out.JobRun),
	}, nil
}

// Cancel requests cancellation of a job run. The request is advisory. The
// run stays in CANCEL_PENDING until the cluster stops it, and may still
// finish on its own.
func (c *Client) Cancel(ctx context.Context, virtualClusterID, jobID string) error {
	_, err := c.api.CancelJobRun(ctx, &emrcontainers.CancelJobRunInput{
		Id:               aws.String(jobID),
		VirtualClusterId: aws.String(virtualClusterID),
	})
	if err != nil {
		return translate("emr.CancelJobRun", err)
	}
	return nil
}

// Ready probes the control plane with the cheapest authenticated call.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.api.ListVirtualClusters(ctx, &emrcontainers.ListVirtualClustersInput{
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return translate("emr.ListVirtualClusters", err)
	}
	return nil
}

// Close releases idle connections held by the client's transport. Clients
// built with NewClient share their caller's transport and close nothing.
func (c *Client) Close() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

func failureText(jr *types.JobRun) string {
	reason := string(jr.FailureReason)
	details := aws.ToString(jr.StateDetails)
	switch {
	case reason != "" && details != "":
		return reason + ": " + details
	case details != "":
		return details
	default:
		return reason
	}
}
