package schema

import (
	"strings"
	"testing"
)

func TestValidateQueue_Valid(t *testing.T) {
	t.Parallel()

	raw := []byte(`[
		{
			"content_ref":"3f1c",
			"path":"content/posts/2026-05-04-x-3f1c.md",
			"keyword":"x",
			"category":"reliability",
			"queued_at":"2026-05-04T10:00:00Z",
			"publish_at":"2026-05-04T10:25:00Z"
		}
	]`)
	if _, err := Validate(Queue, raw); err != nil {
		t.Fatalf("expected queue to be valid, got %v", err)
	}
}

func TestValidateQueue_BadTimestamp(t *testing.T) {
	t.Parallel()

	raw := []byte(`[{"content_ref":"a","path":"a.md","keyword":"x","category":"general","queued_at":"yesterday","publish_at":"2026-05-04T10:25:00Z"}]`)
	if _, err := Validate(Queue, raw); err == nil {
		t.Fatalf("expected date-time format failure")
	}
}

func TestValidateSchedulerConfig_UnknownPolicy(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"night":{"policy":"sleep"}}`)
	if _, err := Validate(SchedulerConfig, raw); err == nil {
		t.Fatalf("expected enum failure for night policy")
	}
}

func TestValidateSignalSnapshot_IntoStruct(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"fetched_at":"2026-05-04T10:00:00Z",
		"signals":[{"keyword":"x","source":"reddit","raw_text":"x is down","observed_at":"2026-05-04T09:00:00Z"}]
	}`)
	var doc struct {
		Signals []struct {
			Keyword string `json:"keyword"`
		} `json:"signals"`
	}
	if err := ValidateInto(SignalSnapshot, raw, &doc); err != nil {
		t.Fatalf("validate into: %v", err)
	}
	if len(doc.Signals) != 1 || doc.Signals[0].Keyword != "x" {
		t.Fatalf("unexpected decoded snapshot: %+v", doc)
	}
}

func TestValidateRejectsTrailingContent(t *testing.T) {
	t.Parallel()

	_, err := Validate(Queue, []byte(`[] []`))
	if err == nil || !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("expected trailing content error, got %v", err)
	}
}

func TestValidateUnknownSchema(t *testing.T) {
	t.Parallel()

	if _, err := Validate("nope.schema.json", []byte(`{}`)); err == nil {
		t.Fatalf("expected unknown schema error")
	}
}
