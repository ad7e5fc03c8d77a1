//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// emrStub is an in-process stand-in for the EMR containers REST API, just
// enough surface for the real SDK client. Job runs advance one scripted
// state per describe call, client tokens are idempotent, and run names
// decide the script: "fails*" ends FAILED, "runs-forever*" never ends,
// "throttled*" gets its first describes rejected with 429, everything else
// ends COMPLETED.
type emrStub struct {
	server *httptest.Server

	mu      sync.Mutex
	byToken map[string]string
	runs    map[string]*stubRun
	starts  int
	nextID  int
}

type stubRun struct {
	id        string
	name      string
	states    []string
	describes int
	throttles int
}

func newEMRStub() *emrStub {
	s := &emrStub{
		byToken: make(map[string]string),
		runs:    make(map[string]*stubRun),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /virtualclusters/{virtualClusterId}/jobruns", s.startJobRun)
	mux.HandleFunc("GET /virtualclusters/{virtualClusterId}/jobruns/{jobRunId}", s.describeJobRun)
	mux.HandleFunc("DELETE /virtualclusters/{virtualClusterId}/jobruns/{jobRunId}", s.cancelJobRun)
	mux.HandleFunc("GET /virtualclusters", s.listVirtualClusters)
	s.server = httptest.NewServer(mux)
	return s
}

func (s *emrStub) URL() string { return s.server.URL }
func (s *emrStub) Close()      { s.server.Close() }

func (s *emrStub) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

func (s *emrStub) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// script maps a run name to its describe state sequence. The last state
// repeats forever.
func script(name string) []string {
	switch {
	case strings.HasPrefix(name, "fails"):
		return []string{"PENDING", "RUNNING", "FAILED"}
	case strings.HasPrefix(name, "runs-forever"):
		return []string{"PENDING", "RUNNING"}
	default:
		return []string{"PENDING", "RUNNING", "COMPLETED"}
	}
}

func (s *emrStub) startJobRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		ClientToken string `json:"clientToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAWSError(w, http.StatusBadRequest, "ValidationException", "malformed request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++

	vc := r.PathValue("virtualClusterId")
	if id, ok := s.byToken[req.ClientToken]; ok {
		// Idempotent resubmission: same token, same run.
		writeJSON(w, map[string]string{"id": id, "name": req.Name, "virtualClusterId": vc})
		return
	}

	s.nextID++
	id := fmt.Sprintf("jr-%06d", s.nextID)
	run := &stubRun{id: id, name: req.Name, states: script(req.Name)}
	if strings.HasPrefix(req.Name, "throttled") {
		run.throttles = 2
	}
	s.runs[id] = run
	s.byToken[req.ClientToken] = id

	writeJSON(w, map[string]string{"id": id, "name": req.Name, "virtualClusterId": vc})
}

func (s *emrStub) describeJobRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[r.PathValue("jobRunId")]
	if !ok {
		writeAWSError(w, http.StatusNotFound, "ResourceNotFoundException", "job run not found")
		return
	}
	if run.throttles > 0 {
		run.throttles--
		writeAWSError(w, http.StatusTooManyRequests, "RequestThrottledException", "request rate exceeded")
		return
	}

	idx := run.describes
	if idx >= len(run.states) {
		idx = len(run.states) - 1
	}
	run.describes++
	state := run.states[idx]

	jobRun := map[string]any{
		"id":               run.id,
		"name":             run.name,
		"virtualClusterId": r.PathValue("virtualClusterId"),
		"state":            state,
	}
	if state == "FAILED" {
		jobRun["failureReason"] = "USER_ERROR"
		jobRun["stateDetails"] = "Driver pod OOMKilled"
	}
	writeJSON(w, map[string]any{"jobRun": jobRun})
}

func (s *emrStub) cancelJobRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[r.PathValue("jobRunId")]
	if !ok {
		writeAWSError(w, http.StatusNotFound, "ResourceNotFoundException", "job run not found")
		return
	}

	// Unwind over two describes, the way a real cluster tears pods down.
	run.states = []string{"CANCEL_PENDING", "CANCELLED"}
	run.describes = 0

	writeJSON(w, map[string]string{"id": run.id, "virtualClusterId": r.PathValue("virtualClusterId")})
}

func (s *emrStub) listVirtualClusters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"virtualClusters": []map[string]any{
			{"id": "vc-e2e", "name": "e2e", "state": "RUNNING"},
		},
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}

// writeAWSError renders an error the SDK's restjson decoder understands:
// the code in the X-Amzn-Errortype header, the message in the body.
func writeAWSError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Amzn-Errortype", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
