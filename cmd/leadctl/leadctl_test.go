package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func runCmd(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", server}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSchedulesSet(t *testing.T) {
	var got jobScheduleInput
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/v1/job-schedules/reschedule" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		start := "09:30"
		_ = json.NewEncoder(w).Encode(jobSchedule{JobType: "reschedule", Enabled: true, StartTime: &start, SelectedDays: got.SelectedDays, CallLimit: got.CallLimit})
	}))
	defer srv.Close()

	out, err := runCmd(t, srv.URL, "schedules", "set", "reschedule", "--enabled", "--start", "09:30", "--days", "mon, wed", "--limit", "50")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !got.Enabled || got.StartTime != "09:30" || got.CallLimit != 50 || len(got.SelectedDays) != 2 || got.SelectedDays[1] != "wed" {
		t.Fatalf("unexpected request body %+v", got)
	}
	if !strings.Contains(out, "reschedule") || !strings.Contains(out, "mon,wed") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSchedulesGetReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unknown job type"}`))
	}))
	defer srv.Close()

	_, err := runCmd(t, srv.URL, "schedules", "get", "weekly")
	if err == nil || !strings.Contains(err.Error(), "unknown job type") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestCallNow(t *testing.T) {
	const leadID = "6f1c2d3e-4b5a-4c7d-8e9f-0a1b2c3d4e5f"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/leads/"+leadID+"/call" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(callResult{ExternalCallID: "call_1", LeadID: leadID, JobType: body["jobType"], Status: "registered"})
	}))
	defer srv.Close()

	out, err := runCmd(t, srv.URL, "call-now", leadID, "--job-type", "reminder")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "reminder call call_1") {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := runCmd(t, srv.URL, "call-now", "not-a-uuid"); err == nil {
		t.Fatalf("expected invalid id error")
	}
}
