package emr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/emrcontainers"
	"github.com/aws/aws-sdk-go-v2/service/emrcontainers/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"emrjobs/internal/apperrors"
	"emrjobs/internal/job"
)

// fakeAPI scripts SDK responses. StartJobRun honors client tokens the way
// the real control plane does: the same token always yields the same id.
type fakeAPI struct {
	mu sync.Mutex

	startErr  error
	startIns  []*emrcontainers.StartJobRunInput
	tokenToID map[string]string
	nextStart int

	describeOut *emrcontainers.DescribeJobRunOutput
	describeErr error
	describeIn  *emrcontainers.DescribeJobRunInput

	cancelErr error
	cancelIn  *emrcontainers.CancelJobRunInput

	listErr error
	listIn  *emrcontainers.ListVirtualClustersInput
}

func (f *fakeAPI) StartJobRun(ctx context.Context, in *emrcontainers.StartJobRunInput, _ ...func(*emrcontainers.Options)) (*emrcontainers.StartJobRunOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startIns = append(f.startIns, in)
	if f.startErr != nil {
		return nil, f.startErr
	}
	if f.tokenToID == nil {
		f.tokenToID = make(map[string]string)
	}
	token := aws.ToString(in.ClientToken)
	id, ok := f.tokenToID[token]
	if !ok {
		f.nextStart++
		id = fmt.Sprintf("jr-%04d", f.nextStart)
		f.tokenToID[token] = id
	}
	return &emrcontainers.StartJobRunOutput{
		Id:               aws.String(id),
		Name:             in.Name,
		VirtualClusterId: in.VirtualClusterId,
	}, nil
}

func (f *fakeAPI) DescribeJobRun(ctx context.Context, in *emrcontainers.DescribeJobRunInput, _ ...func(*emrcontainers.Options)) (*emrcontainers.DescribeJobRunOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeIn = in
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return f.describeOut, nil
}

func (f *fakeAPI) CancelJobRun(ctx context.Context, in *emrcontainers.CancelJobRunInput, _ ...func(*emrcontainers.Options)) (*emrcontainers.CancelJobRunOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelIn = in
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &emrcontainers.CancelJobRunOutput{Id: in.Id, VirtualClusterId: in.VirtualClusterId}, nil
}

func (f *fakeAPI) ListVirtualClusters(ctx context.Context, in *emrcontainers.ListVirtualClustersInput, _ ...func(*emrcontainers.Options)) (*emrcontainers.ListVirtualClustersOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listIn = in
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &emrcontainers.ListVirtualClustersOutput{}, nil
}

func testRun() *job.Run {
	return &job.Run{
		VirtualClusterID: "vc-1",
		Name:             "nightly-etl",
		ExecutionRoleArn: "arn:aws:iam::123456789012:role/job",
		ReleaseLabel:     "emr-6.3.0-latest",
		ClientToken:      "token-1",
		Tags:             map[string]string{"team": "data"},
		Driver:           json.RawMessage(`{"sparkSubmitJobDriver":{"entryPoint":"s3://bucket/job.py","entryPointArguments":["--date","2021-06-01"]}}`),
		ConfigurationOverrides: json.RawMessage(
			`{"applicationConfiguration":[{"classification":"spark-defaults","properties":{"spark.executor.instances":"2"}}]}`),
	}
}

func TestClient_SubmitMapsRequest(t *testing.T) {
	t.Parallel()
	fake := &fakeAPI{}
	c := NewClient(fake)

	jobID, err := c.Submit(context.Background(), testRun())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	in := fake.startIns[0]
	if aws.ToString(in.VirtualClusterId) != "vc-1" {
		t.Errorf("VirtualClusterId = %q", aws.ToString(in.VirtualClusterId))
	}
	if aws.ToString(in.Name) != "nightly-etl" {
		t.Errorf("Name = %q", aws.ToString(in.Name))
	}
	if aws.ToString(in.ExecutionRoleArn) != "arn:aws:iam::123456789012:role/job" {
		t.Errorf("ExecutionRoleArn = %q", aws.ToString(in.ExecutionRoleArn))
	}
	if aws.ToString(in.ReleaseLabel) != "emr-6.3.0-latest" {
		t.Errorf("ReleaseLabel = %q", aws.ToString(in.ReleaseLabel))
	}
	if aws.ToString(in.ClientToken) != "token-1" {
		t.Errorf("ClientToken = %q", aws.ToString(in.ClientToken))
	}
	if in.Tags["team"] != "data" {
		t.Errorf("Tags = %v", in.Tags)
	}

	if in.JobDriver == nil || in.JobDriver.SparkSubmitJobDriver == nil {
		t.Fatal("driver document not decoded")
	}
	if got := aws.ToString(in.JobDriver.SparkSubmitJobDriver.EntryPoint); got != "s3://bucket/job.py" {
		t.Errorf("EntryPoint = %q", got)
	}
	if got := in.JobDriver.SparkSubmitJobDriver.EntryPointArguments; len(got) != 2 || got[0] != "--date" {
		t.Errorf("EntryPointArguments = %v", got)
	}

	if in.ConfigurationOverrides == nil || len(in.ConfigurationOverrides.ApplicationConfiguration) != 1 {
		t.Fatal("configuration overrides not decoded")
	}
	appCfg := in.ConfigurationOverrides.ApplicationConfiguration[0]
	if aws.ToString(appCfg.Classification) != "spark-defaults" {
		t.Errorf("Classification = %q", aws.ToString(appCfg.Classification))
	}
	if appCfg.Properties["spark.executor.instances"] != "2" {
		t.Errorf("Properties = %v", appCfg.Properties)
	}
}

func TestClient_SubmitSameTokenSameJob(t *testing.T) {
	t.Parallel()
	fake := &fakeAPI{}
	c := NewClient(fake)
	run := testRun()

	first, err := c.Submit(context.Background(), run)
	if err != nil {
		t.Fatalf("first Submit() error: %v", err)
	}
	second, err := c.Submit(context.Background(), run)
	if err != nil {
		t.Fatalf("second Submit() error: %v", err)
	}
	if first != second {
		t.Errorf("resubmission with the same token produced %q then %q, want the same id", first, second)
	}
	if len(fake.startIns) != 2 {
		t.Errorf("StartJobRun calls = %d, want 2", len(fake.startIns))
	}
}

func TestClient_SubmitOmitsEmptyOptionals(t *testing.T) {
	t.Parallel()
	fake := &fakeAPI{}
	c := NewClient(fake)
	run := testRun()
	run.ReleaseLabel = ""
	run.Tags = nil
	run.ConfigurationOverrides = nil

	if _, err := c.Submit(context.Background(), run); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	in := fake.startIns[0]
	if in.ReleaseLabel != nil {
		t.Error("ReleaseLabel must be omitted when unset")
	}
	if in.Tags != nil {
		t.Error("Tags must be omitted when unset")
	}
	if in.ConfigurationOverrides != nil {
		t.Error("ConfigurationOverrides must be omitted when unset")
	}
}

func TestClient_SubmitRejectsMalformedDriver(t *testing.T) {
	t.Parallel()
	c := NewClient(&fakeAPI{})
	run := testRun()
	run.Driver = json.RawMessage(`{"sparkSubmitJobDriver":`)

	_, err := c.Submit(context.Background(), run)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClient_SubmitTranslatesErrors(t *testing.T) {
	t.Parallel()
	fake := &fakeAPI{startErr: &types.ValidationException{Message: aws.String("release label not supported")}}
	c := NewClient(fake)

	_, err := c.Submit(context.Background(), testRun())
	if !errors.Is(err, apperrors.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestClient_Describe(t *testing.T) {
	t.Parallel()
	fake := &fakeAPI{
		describeOut: &emrcontainers.DescribeJobRunOutput{
			JobRun: &types.JobRun{
				Id:            aws.String("jr-1"),
				State:         types.JobRunStateFailed,
				FailureReason: types.FailureReasonUserError,
				StateDetails:  aws.String("Driver pod OOMKilled"),
			},
		},
	}
	c := NewClient(fake)

	status, err := c.Describe(context.Background(), "vc-1", "jr-1")
	if err != nil {
		t.Fatalf("Describe() error: %v", err)
	}
	if status.State != "FAILED" {
		t.Errorf("State = %q", status.State)
	}
	if status.FailureReason != "USER_ERROR: Driver pod OOMKilled" {
		t.Errorf("FailureReason = %q", status.FailureReason)
	}
	if aws.ToString(fake.describeIn.Id) != "jr-1" || aws.ToString(fake.describeIn.VirtualClusterId) != "vc-1" {
		t.Errorf("describe input = %+v", fake.describeIn)
	}
}

func TestClient_DescribeEmptyBody(t *testing.T) {
	t.Parallel()
	fake := &fakeAPI{describeOut: &emrcontainers.DescribeJobRunOutput{}}
	c := NewClient(fake)

	_, err := c.Describe(context.Background(), "vc-1", "jr-1")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found for a response without a job run, got %v", err)
	}
}

func TestClient_Cancel(t *testing.T) {
	t.Parallel()
	fake := &fakeAPI{}
	c := NewClient(fake)

	if err := c.Cancel(context.Background(), "vc-1", "jr-1"); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if aws.ToString(fake.cancelIn.Id) != "jr-1" {
		t.Errorf("cancel input = %+v", fake.cancelIn)
	}
}

func TestClient_Ready(t *testing.T) {
	t.Parallel()
	fake := &fakeAPI{}
	c := NewClient(fake)

	if err := c.Ready(context.Background()); err != nil {
		t.Fatalf("Ready() error: %v", err)
	}
	if aws.ToInt32(fake.listIn.MaxResults) != 1 {
		t.Errorf("MaxResults = %v, the probe must ask for a single page entry", fake.listIn.MaxResults)
	}

	fake.listErr = &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no emr-containers:ListVirtualClusters"}
	if err := c.Ready(context.Background()); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestFailureText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		jr   *types.JobRun
		want string
	}{
		{
			"reason and details",
			&types.JobRun{FailureReason: types.FailureReasonUserError, StateDetails: aws.String("Driver pod OOMKilled")},
			"USER_ERROR: Driver pod OOMKilled",
		},
		{
			"details only",
			&types.JobRun{StateDetails: aws.String("Driver pod OOMKilled")},
			"Driver pod OOMKilled",
		},
		{
			"reason only",
			&types.JobRun{FailureReason: types.FailureReasonClusterUnavailable},
			"CLUSTER_UNAVAILABLE",
		},
		{"neither", &types.JobRun{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := failureText(tt.jr); got != tt.want {
				t.Errorf("failureText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func httpResponseError(status int, err error) *awshttp.ResponseError {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      err,
		},
	}
}

func TestTranslate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"resource not found", &types.ResourceNotFoundException{Message: aws.String("no such job run")}, apperrors.ErrNotFound},
		{"validation exception", &types.ValidationException{Message: aws.String("bad release label")}, apperrors.ErrInvalidRequest},
		{"internal server exception", &types.InternalServerException{Message: aws.String("oops")}, apperrors.ErrUnavailable},
		{"throttling code", &smithy.GenericAPIError{Code: "ThrottlingException", Message: "rate exceeded"}, apperrors.ErrThrottled},
		{"eks throttling code", &smithy.GenericAPIError{Code: "EKSRequestThrottledException"}, apperrors.ErrThrottled},
		{"request throttled code", &smithy.GenericAPIError{Code: "RequestThrottledException"}, apperrors.ErrThrottled},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDeniedException"}, apperrors.ErrUnauthorized},
		{"expired token", &smithy.GenericAPIError{Code: "ExpiredTokenException"}, apperrors.ErrUnauthorized},
		{"http 429", httpResponseError(429, errors.New("slow down")), apperrors.ErrThrottled},
		{"http 403", httpResponseError(403, errors.New("forbidden")), apperrors.ErrUnauthorized},
		{"http 404", httpResponseError(404, errors.New("missing")), apperrors.ErrNotFound},
		{"http 503", httpResponseError(503, errors.New("unavailable")), apperrors.ErrUnavailable},
		{"http 400", httpResponseError(400, errors.New("bad input")), apperrors.ErrInvalidRequest},
		{"plain transport error", errors.New("dial tcp: connection refused"), apperrors.ErrUnavailable},
		{"deadline exceeded", context.DeadlineExceeded, apperrors.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := translate("emr.DescribeJobRun", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("translate() = %v, want class %v", got, tt.want)
			}
		})
	}
}

func TestTranslate_SDKErrorChain(t *testing.T) {
	t.Parallel()
	// The SDK wraps service errors in OperationError and ResponseError
	// layers. Classification must see through the chain.
	err := &smithy.OperationError{
		ServiceID:     "EMR containers",
		OperationName: "StartJobRun",
		Err: httpResponseError(400,
			&types.ValidationException{Message: aws.String("release label invalid")}),
	}
	got := translate("emr.StartJobRun", err)
	if !errors.Is(got, apperrors.ErrInvalidRequest) {
		t.Errorf("translate() = %v, want invalid request", got)
	}
}

func TestTranslate_ContextCanceledPassesThrough(t *testing.T) {
	t.Parallel()
	got := translate("emr.DescribeJobRun", context.Canceled)
	if !errors.Is(got, context.Canceled) {
		t.Errorf("translate() = %v, want context.Canceled untouched", got)
	}
	if apperrors.Retryable(got) {
		t.Error("a caller-side cancellation must not be classified retryable")
	}
}
