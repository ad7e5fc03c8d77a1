package emr

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/emrcontainers"
)

// API is the slice of the EMR on EKS SDK client this adapter calls.
type API interface {
	StartJobRun(ctx context.Context, params *emrcontainers.StartJobRunInput, optFns ...func(*emrcontainers.Options)) (*emrcontainers.StartJobRunOutput, error)
	DescribeJobRun(ctx context.Context, params *emrcontainers.DescribeJobRunInput, optFns ...func(*emrcontainers.Options)) (*emrcontainers.DescribeJobRunOutput, error)
	CancelJobRun(ctx context.Context, params *emrcontainers.CancelJobRunInput, optFns ...func(*emrcontainers.Options)) (*emrcontainers.CancelJobRunOutput, error)
	ListVirtualClusters(ctx context.Context, params *emrcontainers.ListVirtualClustersInput, optFns ...func(*emrcontainers.Options)) (*emrcontainers.ListVirtualClustersOutput, error)
}
