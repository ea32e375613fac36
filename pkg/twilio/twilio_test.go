package twilio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendSMS(t *testing.T) {
	t.Parallel()

	var gotPath, gotUser, gotPass, gotTo, gotFrom, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		gotTo = r.PostForm.Get("To")
		gotFrom = r.PostForm.Get("From")
		gotBody = r.PostForm.Get("Body")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"sid":"SM123","status":"queued"}`)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(Config{
		AccountSID:  "AC1",
		AuthToken:   "secret",
		PhoneNumber: "+15550000000",
		BaseURL:     server.URL,
	}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	sid, err := c.SendSMS(context.Background(), "+15551234567", "hello")
	if err != nil {
		t.Fatalf("SendSMS() error = %v", err)
	}
	if sid != "SM123" {
		t.Fatalf("SendSMS() sid = %q, want SM123", sid)
	}
	if gotPath != "/Accounts/AC1/Messages.json" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotUser != "AC1" || gotPass != "secret" {
		t.Fatalf("basic auth = %q:%q", gotUser, gotPass)
	}
	if gotTo != "+15551234567" || gotFrom != "+15550000000" || gotBody != "hello" {
		t.Fatalf("form = to:%q from:%q body:%q", gotTo, gotFrom, gotBody)
	}
}

func TestSendSMSErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"message":"rate limited"}`)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(Config{
		AccountSID:  "AC1",
		AuthToken:   "secret",
		PhoneNumber: "+15550000000",
		BaseURL:     server.URL,
	}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = c.SendSMS(context.Background(), "+15551234567", "hello")
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("SendSMS() error = %v, want ErrStatus", err)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{AccountSID: "AC1"}); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}
