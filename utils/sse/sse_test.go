package sse

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func render(t *testing.T, ev Event) string {
	t.Helper()
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := Send(w, ev); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestSendFullEvent(t *testing.T) {
	out := render(t, Event{
		ID:    "7",
		Event: "job_updated",
		Data:  map[string]string{"status": "running"},
	})

	want := "id: 7\nevent: job_updated\ndata: {\"status\":\"running\"}\n\n"
	if out != want {
		t.Errorf("wire format:\n got %q\nwant %q", out, want)
	}
}

func TestSendEndsWithBlankLine(t *testing.T) {
	out := render(t, Event{Event: "heartbeat", Data: "{}"})
	if !strings.HasSuffix(out, "\n\n") {
		t.Errorf("event block must end with a blank line: %q", out)
	}
}

func TestSendMultilineData(t *testing.T) {
	out := render(t, Event{Data: "line1\nline2"})
	if !strings.Contains(out, "data: line1\ndata: line2\n") {
		t.Errorf("each payload line needs its own data: field, got %q", out)
	}
}

func TestSendOmitsEmptyFields(t *testing.T) {
	out := render(t, Event{Data: "x"})
	if strings.Contains(out, "id:") || strings.Contains(out, "event:") || strings.Contains(out, "retry:") {
		t.Errorf("optional fields written when empty: %q", out)
	}
}

func TestSendRetry(t *testing.T) {
	out := render(t, Event{Retry: 3000, Data: "x"})
	if !strings.Contains(out, "retry: 3000\n") {
		t.Errorf("retry field missing: %q", out)
	}
}
