// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package hueapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/soothill/hue-bridge-emulator/pkg/interfaces"
	"github.com/soothill/hue-bridge-emulator/registry"
	"github.com/soothill/hue-bridge-emulator/state"
	"github.com/soothill/hue-bridge-emulator/storage"
)

const testHubID = "00112233-4455-6677-8899-abc123"

type recordedCommit struct {
	device interfaces.Device
	attrs  state.Attributes
}

// commitRecorder captures commit notifications for assertions.
type commitRecorder struct {
	commits chan recordedCommit
}

func newCommitRecorder() *commitRecorder {
	return &commitRecorder{commits: make(chan recordedCommit, 10)}
}

func (c *commitRecorder) StateCommitted(device interfaces.Device, attrs state.Attributes) {
	c.commits <- recordedCommit{device: device, attrs: attrs}
}

func newTestServer(listener CommitListener) *Server {
	reg := registry.New([]interfaces.Device{
		{ID: "abc123", Name: "Kitchen Light", Topic: "kitchen"},
		{ID: "def456", Name: "Bedroom Light"},
	})
	store := state.NewStore(storage.NewMemoryStore())
	return NewServer(testHubID, 8080, reg, store, listener)
}

func TestHandleDescription(t *testing.T) {
	srv := newTestServer(nil)

	req := httptest.NewRequest(http.MethodGet, "http://192.168.1.10:8080/description.xml", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("Content-Type = %q, want application/xml", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"<UDN>uuid:" + testHubID + "</UDN>",
		"<serialNumber>" + testHubID + "</serialNumber>",
		"<friendlyName>Philips hue (192.168.1.10:8080)</friendlyName>",
		"<URLBase>http://192.168.1.10:8080/</URLBase>",
		"<modelName>Philips hue bridge 2012</modelName>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("description missing %q:\n%s", want, body)
		}
	}
}

func TestHandlePairing(t *testing.T) {
	srv := newTestServer(nil)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api"},
		{http.MethodGet, "/api/" + PairingToken},
		{http.MethodGet, "/api/anything-goes"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(`{"devicetype":"echo"}`))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s %s: status = %d, want 200", tc.method, tc.path, rec.Code)
		}

		var body []map[string]map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s %s: invalid JSON: %v", tc.method, tc.path, err)
		}
		if len(body) != 1 || body[0]["success"]["username"] != PairingToken {
			t.Errorf("%s %s: body = %s, want success with pairing token", tc.method, tc.path, rec.Body.String())
		}
	}
}

func TestHandleLights(t *testing.T) {
	srv := newTestServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/"+PairingToken+"/lights", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var lights map[string]Light
	if err := json.Unmarshal(rec.Body.Bytes(), &lights); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if len(lights) != 2 {
		t.Fatalf("got %d lights, want 2", len(lights))
	}

	kitchen, ok := lights["abc123"]
	if !ok {
		t.Fatal("lights listing missing abc123")
	}
	if kitchen.Name != "Kitchen Light" {
		t.Errorf("Name = %q, want Kitchen Light", kitchen.Name)
	}
	if kitchen.Type != "Extended color light" {
		t.Errorf("Type = %q, want Extended color light", kitchen.Type)
	}
	if kitchen.State.On || kitchen.State.Bri != 254 || kitchen.State.ColorMode != "ct" {
		t.Errorf("virgin device state = %+v, want defaults", kitchen.State)
	}
	if !kitchen.State.Reachable {
		t.Error("lights must report reachable")
	}
}

func TestHandleLight_UnknownDevice(t *testing.T) {
	srv := newTestServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/"+PairingToken+"/lights/unknown", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (unknown ids are not errors)", rec.Code)
	}

	var light Light
	if err := json.Unmarshal(rec.Body.Bytes(), &light); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if light.Name != "" {
		t.Errorf("Name = %q, want empty for unknown device", light.Name)
	}
	if light.State.Bri != 254 || light.State.Ct != 199 {
		t.Errorf("unknown device state = %+v, want defaults", light.State)
	}
}

func TestHandleSetState(t *testing.T) {
	recorder := newCommitRecorder()
	srv := newTestServer(recorder)

	body := bytes.NewBufferString(`{"on":true,"bri":100}`)
	req := httptest.NewRequest(http.MethodPut, "/api/"+PairingToken+"/lights/abc123/state", body)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var success []map[string]map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &success); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(success) != 2 {
		t.Fatalf("got %d success entries, want 2 (one per written key)", len(success))
	}
	if v := success[0]["success"]["/lights/abc123/state/on"]; v != true {
		t.Errorf("on success entry = %v, want true", v)
	}
	if v := success[1]["success"]["/lights/abc123/state/bri"]; v != float64(100) {
		t.Errorf("bri success entry = %v, want 100", v)
	}

	// Exactly one commit notification, carrying the merged record.
	select {
	case commit := <-recorder.commits:
		if commit.device.ID != "abc123" || commit.device.Topic != "kitchen" {
			t.Errorf("commit device = %+v, want abc123/kitchen", commit.device)
		}
		if !commit.attrs.On || commit.attrs.Bri != 100 {
			t.Errorf("commit attrs = %+v, want on=true bri=100", commit.attrs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no commit notification received")
	}

	select {
	case extra := <-recorder.commits:
		t.Fatalf("unexpected second commit notification: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}

	// A follow-up read observes the write with untouched keys intact.
	req = httptest.NewRequest(http.MethodGet, "/api/"+PairingToken+"/lights/abc123", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var light Light
	if err := json.Unmarshal(rec.Body.Bytes(), &light); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !light.State.On || light.State.Bri != 100 {
		t.Errorf("state after write = %+v, want on=true bri=100", light.State)
	}
	if light.State.Sat != 254 || light.State.Ct != 199 || light.State.ColorMode != "ct" {
		t.Errorf("untouched keys changed: %+v", light.State)
	}
}

func TestHandleSetState_ColorModeDerivation(t *testing.T) {
	srv := newTestServer(nil)

	put := func(body string) {
		t.Helper()
		req := httptest.NewRequest(http.MethodPut, "/api/"+PairingToken+"/lights/abc123/state", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	}
	readMode := func() string {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/"+PairingToken+"/lights/abc123", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		var light Light
		if err := json.Unmarshal(rec.Body.Bytes(), &light); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		return light.State.ColorMode
	}

	put(`{"hue":40000,"sat":200}`)
	if mode := readMode(); mode != "hs" {
		t.Errorf("colormode = %q after hue/sat write, want hs", mode)
	}

	put(`{"ct":153}`)
	if mode := readMode(); mode != "ct" {
		t.Errorf("colormode = %q after ct write, want ct", mode)
	}

	put(`{"on":false}`)
	if mode := readMode(); mode != "ct" {
		t.Errorf("colormode = %q after on-only write, want unchanged ct", mode)
	}
}

func TestHandleSetState_MalformedBody(t *testing.T) {
	recorder := newCommitRecorder()
	srv := newTestServer(recorder)

	req := httptest.NewRequest(http.MethodPut, "/api/"+PairingToken+"/lights/abc123/state", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	select {
	case commit := <-recorder.commits:
		t.Fatalf("malformed write must not commit, got %+v", commit)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleSetState_UnknownDeviceCreatesRecord(t *testing.T) {
	srv := newTestServer(nil)

	req := httptest.NewRequest(http.MethodPut, "/api/"+PairingToken+"/lights/brandnew/state", strings.NewReader(`{"on":true}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (unknown ids are not errors)", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/"+PairingToken+"/lights/brandnew", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var light Light
	if err := json.Unmarshal(rec.Body.Bytes(), &light); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !light.State.On || light.State.Bri != 254 {
		t.Errorf("state = %+v, want on=true with defaults elsewhere", light.State)
	}
}
