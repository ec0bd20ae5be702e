package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewHangupClientValidation(t *testing.T) {
	if _, err := NewHangupClient("", "token"); err == nil {
		t.Error("expected error for empty account SID")
	}
	if _, err := NewHangupClient("AC123", ""); err == nil {
		t.Error("expected error for empty auth token")
	}
	if _, err := NewHangupClient("AC123", "token"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHangup(t *testing.T) {
	var gotPath, gotStatus string
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotStatus = r.PostFormValue("Status")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewHangupClient("AC123", "secret", WithRESTBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewHangupClient: %v", err)
	}

	if err := c.Hangup(context.Background(), "CA456"); err != nil {
		t.Fatalf("Hangup: %v", err)
	}

	if want := "/2010-04-01/Accounts/AC123/Calls/CA456.json"; gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if gotStatus != "completed" {
		t.Errorf("Status = %q, want completed", gotStatus)
	}
	if gotUser != "AC123" || gotPass != "secret" {
		t.Errorf("basic auth = %q/%q, want AC123/secret", gotUser, gotPass)
	}
}

func TestHangupNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":20404}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewHangupClient("AC123", "secret", WithRESTBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewHangupClient: %v", err)
	}
	if err := c.Hangup(context.Background(), "CA456"); err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestHangupEmptyCallID(t *testing.T) {
	c, err := NewHangupClient("AC123", "secret")
	if err != nil {
		t.Fatalf("NewHangupClient: %v", err)
	}
	if err := c.Hangup(context.Background(), ""); err == nil {
		t.Error("expected error for empty call ID")
	}
}
