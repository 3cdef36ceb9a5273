package services

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
)

func TestValidateURL(t *testing.T) {
	cases := []struct {
		url    string
		wantOK bool
	}{
		{"https://example.com/doc.html", true},
		{"http://docs.example.org/page", true},
		{"ftp://example.com/file", false},
		{"https://localhost/admin", false},
		{"https://LOCALHOST/admin", false},
		{"http://127.0.0.1:8080/", false},
		{"http://10.0.0.5/internal", false},
		{"http://192.168.1.1/router", false},
		{"http://172.16.0.10/svc", false},
		{"not a url at all", false},
	}

	for _, tc := range cases {
		err := ValidateURL(tc.url)
		if tc.wantOK && err != nil {
			t.Errorf("ValidateURL(%q) = %v, want ok", tc.url, err)
		}
		if !tc.wantOK && err == nil {
			t.Errorf("ValidateURL(%q) passed, want rejection", tc.url)
		}
	}
}

func TestRetryableFetchError(t *testing.T) {
	if retryableFetchError(nil) {
		t.Error("nil is not retryable")
	}
	if retryableFetchError(&httpStatusError{status: 500}) {
		t.Error("HTTP status failures are not transport errors")
	}
	if retryableFetchError(context.Canceled) {
		t.Error("cancellation is not retryable")
	}

	var netErr net.Error = &net.DNSError{Err: "no such host", IsTimeout: false}
	if !retryableFetchError(netErr) {
		t.Error("net errors are retryable")
	}

	wrapped := &url.Error{Op: "Get", URL: "http://example.com", Err: errors.New("connection refused")}
	if !retryableFetchError(wrapped) {
		t.Error("transport url.Errors are retryable")
	}
}

func TestFetchRejectsBlockedURLWithoutDialing(t *testing.T) {
	f := NewFetcher(0, nil)
	if _, err := f.Fetch(context.Background(), "http://127.0.0.1:1/x", 3); err == nil {
		t.Error("expected validation rejection")
	}
}
