package paperspace

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gravito-framework/hal-go/internal/testutil"
	"github.com/gravito-framework/hal-go/pkg/probes"
	"github.com/gravito-framework/hal-go/pkg/types"
)

var fixedNow = func() time.Time {
	return time.Date(2019, time.September, 14, 10, 0, 0, 0, time.UTC)
}

type fakeAPI struct {
	machines    string
	machineCode int
	status      int
	utilization map[string]string
	requests    atomic.Int32
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/machines/getMachines", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if r.Header.Get("x-api-key") != "valid" {
			http.Error(w, `{"error":{"name":"Error","status":401,"message":"No such API token"}}`, http.StatusUnauthorized)
			return
		}
		if f.machineCode != 0 {
			http.Error(w, "Server Error", f.machineCode)
			return
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
		}
		fmt.Fprint(w, f.machines)
	})
	mux.HandleFunc("/machines/getUtilization", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if r.URL.Query().Get("billingMonth") != "2019-09" {
			http.Error(w, "bad billing month", http.StatusBadRequest)
			return
		}
		payload, ok := f.utilization[r.URL.Query().Get("machineId")]
		if !ok {
			http.Error(w, "Machine not found", http.StatusNotFound)
			return
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
		}
		fmt.Fprint(w, payload)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func utilization(seconds, hourly, storage string) string {
	return fmt.Sprintf(`{"machineId":"x","utilization":{"secondsUsed":%s,"hourlyRate":%s},"storageUtilization":{"monthlyRate":%s}}`,
		seconds, hourly, storage)
}

func newProbe(server *httptest.Server, opts ...probes.Option) *Probe {
	return New(Config{APIKey: "valid", BaseURL: server.URL, Now: fixedNow}, opts...)
}

func TestDefaultConfig(t *testing.T) {
	p := New(Config{})
	cfg := p.Config()
	if cfg.BaseURL != "https://api.paperspace.io" || cfg.HeaderKey != "x-api-key" {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if cfg.APIKey != "" {
		t.Errorf("Expected empty API key, got %s", cfg.APIKey)
	}
}

func TestBillingPeriod(t *testing.T) {
	if got := BillingPeriod(fixedNow()); got != "2019-09" {
		t.Errorf("Expected 2019-09, got %s", got)
	}
}

func TestRunMissingAPIKey(t *testing.T) {
	api := &fakeAPI{}
	server := api.server(t)
	p := New(Config{BaseURL: server.URL})

	err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing Paperspace API key") {
		t.Errorf("Expected missing key failure, got %v", err)
	}
	if p.Results() != nil {
		t.Errorf("Expected no results, got %v", p.Results())
	}
	if api.requests.Load() != 0 {
		t.Errorf("Expected zero requests, got %d", api.requests.Load())
	}
}

func TestRunMachineListFailure(t *testing.T) {
	api := &fakeAPI{}
	server := api.server(t)
	p := New(Config{APIKey: "invalid", BaseURL: server.URL, Now: fixedNow})

	err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "No such API token") {
		t.Errorf("Expected server text in reason, got %v", err)
	}
	if p.Results() != nil {
		t.Errorf("Expected no results, got %v", p.Results())
	}
}

func TestRunMachineStates(t *testing.T) {
	api := &fakeAPI{
		machines: `[{"id":"ps1","state":"off"},{"id":"ps2","state":"ready"},{"id":"ps3","state":"starting"}]`,
		utilization: map[string]string{
			"ps1": utilization("3600.9", `"0.51"`, "5"),
			"ps2": utilization("10", "0.78", `"5.00"`),
			"ps3": utilization("0", "0.78", "0"),
		},
	}
	server := api.server(t)
	p := newProbe(server)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	results := p.Results()

	if results[MetricMachinesCount][0].Value != 3 {
		t.Errorf("Expected 3 machines, got %v", results[MetricMachinesCount])
	}

	wantInstance := []types.Point{
		{Value: 1, Tags: []string{"machine_id:ps1", "state:off"}},
		{Value: 0, Tags: []string{"machine_id:ps1", "state:ready"}},
		{Value: 0, Tags: []string{"machine_id:ps2", "state:off"}},
		{Value: 1, Tags: []string{"machine_id:ps2", "state:ready"}},
		{Value: 0, Tags: []string{"machine_id:ps3", "state:off"}},
		{Value: 0, Tags: []string{"machine_id:ps3", "state:ready"}},
		{Value: 1, Tags: []string{"machine_id:ps3", "state:starting"}},
	}
	if !reflect.DeepEqual(results[MetricMachinesInstance], wantInstance) {
		t.Errorf("Expected %v, got %v", wantInstance, results[MetricMachinesInstance])
	}

	wantUsage := []types.Point{
		{Value: 3600, Tags: []string{"machine_id:ps1"}},
		{Value: 10, Tags: []string{"machine_id:ps2"}},
		{Value: 0, Tags: []string{"machine_id:ps3"}},
	}
	if !reflect.DeepEqual(results[MetricUsageSeconds], wantUsage) {
		t.Errorf("Expected usage %v, got %v", wantUsage, results[MetricUsageSeconds])
	}
	if results[MetricHourlyRate][0].Value != 0.51 {
		t.Errorf("Expected hourly rate 0.51, got %v", results[MetricHourlyRate][0])
	}
	if results[MetricStorageRate][1].Value != 5 {
		t.Errorf("Expected storage rate 5, got %v", results[MetricStorageRate][1])
	}
}

func TestRunPartialBillingFailure(t *testing.T) {
	api := &fakeAPI{
		machines: `[{"id":"ps1","state":"ready"},{"id":"ps2","state":"ready"}]`,
		utilization: map[string]string{
			"ps2": utilization("42", "0.78", "5"),
		},
	}
	server := api.server(t)
	logger, logs := testutil.NewLogger()
	p := newProbe(server, probes.WithLogger(logger))

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Expected success despite billing failure, got %v", err)
	}
	results := p.Results()

	if len(results[MetricMachinesInstance]) != 4 {
		t.Errorf("Expected state points for both machines, got %v", results[MetricMachinesInstance])
	}
	want := []types.Point{{Value: 42, Tags: []string{"machine_id:ps2"}}}
	if !reflect.DeepEqual(results[MetricUsageSeconds], want) {
		t.Errorf("Expected only ps2 usage, got %v", results[MetricUsageSeconds])
	}

	errs := logs.Lines("ERROR")
	if len(errs) != 1 || !strings.Contains(errs[0], "Machine not found") {
		t.Errorf("Expected one skip error, got %v", errs)
	}
}

func TestRunNoMachines(t *testing.T) {
	api := &fakeAPI{machines: `[]`}
	server := api.server(t)
	p := newProbe(server)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Results()[MetricMachinesCount][0].Value != 0 {
		t.Errorf("Expected zero machines, got %v", p.Results())
	}
	if _, ok := p.Results()[MetricUsageSeconds]; ok {
		t.Error("Expected no billing metrics without machines")
	}
}

func TestRunInvalidPayload(t *testing.T) {
	api := &fakeAPI{machines: `{"not":"a list"}`}
	server := api.server(t)
	p := newProbe(server)

	if err := p.Run(context.Background()); err == nil {
		t.Error("Expected failure on invalid machine list")
	}
}

func TestRunAcceptsAnySuccessStatus(t *testing.T) {
	api := &fakeAPI{
		machines:    `[{"id":"ps1","state":"ready"}]`,
		status:      http.StatusAccepted,
		utilization: map[string]string{"ps1": utilization("42", "0.78", "5")},
	}
	server := api.server(t)
	logger, logs := testutil.NewLogger()
	p := newProbe(server, probes.WithLogger(logger))

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []types.Point{{Value: 42, Tags: []string{"machine_id:ps1"}}}
	if !reflect.DeepEqual(p.Results()[MetricUsageSeconds], want) {
		t.Errorf("Expected usage %v, got %v", want, p.Results()[MetricUsageSeconds])
	}
	if errs := logs.Lines("ERROR"); len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}
}

func TestRunMachineWithoutID(t *testing.T) {
	api := &fakeAPI{
		machines:    `[{"state":"ready"},{"id":"ps2","state":"off"}]`,
		utilization: map[string]string{"ps2": utilization("10", "0.78", "5")},
	}
	server := api.server(t)
	logger, logs := testutil.NewLogger()
	p := newProbe(server, probes.WithLogger(logger))

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	results := p.Results()

	for _, point := range results[MetricMachinesInstance] {
		if point.Tags[0] == "machine_id:" {
			t.Errorf("Unexpected point for a machine without id: %v", point)
		}
	}
	if len(results[MetricMachinesInstance]) != 2 {
		t.Errorf("Expected state points for ps2 only, got %v", results[MetricMachinesInstance])
	}
	// machine list plus one utilization request
	if got := api.requests.Load(); got != 2 {
		t.Errorf("Expected 2 requests, got %d", got)
	}
	errs := logs.Lines("ERROR")
	if len(errs) != 1 || !strings.Contains(errs[0], "Machine without 'id'") {
		t.Errorf("Expected one skip error, got %v", errs)
	}
}
