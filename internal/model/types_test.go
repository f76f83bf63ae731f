package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatusNormalize(t *testing.T) {
	cases := map[Status]Status{
		StatusClear:      StatusClear,
		StatusModerate:   StatusModerate,
		StatusPollutant:  StatusPollutant,
		Status("sludge"): StatusClear,
		Status(""):       StatusClear,
	}
	for in, want := range cases {
		if got := in.Normalize(); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSeverityNormalize(t *testing.T) {
	if got := Severity("fatal").Normalize(); got != SeverityInfo {
		t.Fatalf("unknown severity normalized to %q", got)
	}
	if got := SeverityCritical.Normalize(); got != SeverityCritical {
		t.Fatalf("known severity rewritten to %q", got)
	}
}

func TestPredictionJSONRoundsISO8601(t *testing.T) {
	raw := `{"timestamp":"2026-03-01T12:00:00Z","status":"moderate","confidence":88.1,"turbidity":12.4,"ph":7.1,"compliance_score":74.0,"site_id":"SITE-01"}`
	var p Prediction
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Status != StatusModerate || p.SiteID != "SITE-01" {
		t.Fatalf("decoded: %+v", p)
	}
	if !p.Timestamp.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp: %v", p.Timestamp)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"prediction","data":{"site_id":"SITE-01"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != EventPrediction {
		t.Fatalf("type: %s", env.Type)
	}
	if _, err := DecodeEnvelope([]byte("not json")); err == nil {
		t.Fatalf("malformed envelope accepted")
	}
}

func TestPairingSessionExpiry(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := PairingSession{ID: "abc", CreatedAt: created, TTL: 5 * time.Minute}
	if s.Expired(created.Add(4*time.Minute + 59*time.Second)) {
		t.Fatalf("expired at 4:59")
	}
	if !s.Expired(created.Add(5*time.Minute + time.Second)) {
		t.Fatalf("not expired at 5:01")
	}
	if got := s.ExpiresIn(created.Add(time.Minute)); got != 4*time.Minute {
		t.Fatalf("expires in: %v", got)
	}
}
