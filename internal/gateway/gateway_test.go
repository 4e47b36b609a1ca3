package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPaystackVerifyConvertsMinorUnits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/ref-001" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			t.Errorf("missing bearer secret")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"status":"success","reference":"ref-001","amount":250050,"currency":"NGN","metadata":{"run":"trf-1"}}}`))
	}))
	defer srv.Close()

	v, err := NewPaystackClient(srv.URL, "sk_test").Verify(context.Background(), "ref-001")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !v.Success || !v.AmountPaid.Equal(decimal.RequireFromString("2500.50")) {
		t.Fatalf("unexpected verification %+v", v)
	}
	if v.Metadata["run"] != "trf-1" || v.Metadata["currency"] != "NGN" {
		t.Fatalf("expected metadata passthrough, got %v", v.Metadata)
	}
}

func TestPaystackVerifyRejectsFailedLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
	}))
	defer srv.Close()

	_, err := NewPaystackClient(srv.URL, "sk_test").Verify(context.Background(), "missing")
	if !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}
}

func TestStaticVerifier(t *testing.T) {
	s := NewStatic()
	s.Add(Verification{Reference: "r1", Success: true, AmountPaid: decimal.NewFromInt(10)})

	if v, err := s.Verify(context.Background(), "r1"); err != nil || !v.Success {
		t.Fatalf("expected r1 to verify, got %+v %v", v, err)
	}
	if _, err := s.Verify(context.Background(), "r2"); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected unknown reference to fail, got %v", err)
	}
}
