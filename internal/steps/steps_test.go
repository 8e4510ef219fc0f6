package steps

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

// Enough of a PNG for content-type sniffing to identify it.
var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 1}

func TestActionStepRoundTrip(t *testing.T) {
	step := &ActionStep{
		StepNumber:   3,
		Code:         "print('hi')",
		Observations: "hi\n",
		Error:        "",
		Timing:       Timing{Start: 100.5, End: 102.25},
		Images:       [][]byte{pngBytes},
	}

	rec, err := Serialize(step)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if rec.Type != TypeAction {
		t.Fatalf("unexpected type %q", rec.Type)
	}
	if len(rec.Images) != 1 || rec.Images[0] != base64.StdEncoding.EncodeToString(pngBytes) {
		t.Fatalf("image not base64 encoded: %v", rec.Images)
	}
	if strings.Contains(rec.Images[0], "data:") {
		t.Fatalf("persisted image must not carry a data-URI prefix")
	}

	back, err := Deserialize(rec)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	got, ok := back.(*ActionStep)
	if !ok {
		t.Fatalf("expected *ActionStep, got %T", back)
	}
	if got.StepNumber != 3 || got.Code != step.Code || got.Observations != step.Observations {
		t.Fatalf("durable fields not preserved: %+v", got)
	}
	if got.Timing != step.Timing {
		t.Fatalf("timing not preserved: %+v", got.Timing)
	}
	if len(got.Images) != 1 || !bytes.Equal(got.Images[0], pngBytes) {
		t.Fatalf("image bytes not preserved")
	}
}

func TestSerializeSnapshotsImageBytes(t *testing.T) {
	img := append([]byte(nil), pngBytes...)
	step := &ActionStep{StepNumber: 1, Images: [][]byte{img}}

	rec, err := Serialize(step)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	img[0] = 0xFF // mutate the live step after snapshotting

	if rec.Images[0] != base64.StdEncoding.EncodeToString(pngBytes) {
		t.Fatalf("snapshot affected by live mutation")
	}
}

func TestMissingTimingDefaultsToZeroDuration(t *testing.T) {
	step, err := Deserialize(Record{Type: TypeAction, StepNumber: 1})
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	action := step.(*ActionStep)
	if action.Timing != (Timing{}) || action.Timing.Duration() != 0 {
		t.Fatalf("expected zero-duration timing, got %+v", action.Timing)
	}
}

func TestTaskAndPlanningRoundTrip(t *testing.T) {
	task, err := Serialize(&TaskStep{Task: "Summarize data"})
	if err != nil {
		t.Fatalf("serialize task: %v", err)
	}
	back, err := Deserialize(task)
	if err != nil {
		t.Fatalf("deserialize task: %v", err)
	}
	if back.(*TaskStep).Task != "Summarize data" {
		t.Fatalf("task text not preserved")
	}

	plan, err := Serialize(&PlanningStep{Plan: "1. load\n2. plot"})
	if err != nil {
		t.Fatalf("serialize plan: %v", err)
	}
	if plan.Type != TypePlanning || plan.Plan == "" {
		t.Fatalf("unexpected planning record: %+v", plan)
	}
}

func TestFinalAnswerImageTagging(t *testing.T) {
	rec, err := Serialize(&FinalAnswerStep{Image: pngBytes})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if !rec.IsImage {
		t.Fatalf("image answer must be tagged is_image")
	}
	if rec.Content != base64.StdEncoding.EncodeToString(pngBytes) {
		t.Fatalf("image answer must serialize to base64 content")
	}

	back, err := Deserialize(rec)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	final := back.(*FinalAnswerStep)
	if !final.IsImage() || !bytes.Equal(final.Image, pngBytes) {
		t.Fatalf("image bytes not preserved")
	}

	text, err := Serialize(&FinalAnswerStep{Content: "42"})
	if err != nil {
		t.Fatalf("serialize text: %v", err)
	}
	if text.IsImage {
		t.Fatalf("text answer wrongly tagged as image")
	}
}

func TestSerializeRejectsUnknownVariant(t *testing.T) {
	_, err := Serialize(nil)
	if !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep, got %v", err)
	}
}

func TestDeserializeAllSkipsInvalidRecords(t *testing.T) {
	recs := []Record{
		{Type: TypeTask, Task: "hello"},
		{Type: "MysteryStep"},
		{Type: TypeAction, Images: []string{"%%%not-base64%%%"}},
		{Type: TypeFinalAnswer, Content: "done"},
	}
	list := DeserializeAll(recs)
	if len(list) != 2 {
		t.Fatalf("expected 2 valid steps, got %d", len(list))
	}
	if _, ok := list[0].(*TaskStep); !ok {
		t.Fatalf("first step should be the task")
	}
	if _, ok := list[1].(*FinalAnswerStep); !ok {
		t.Fatalf("second step should be the final answer")
	}
}

func TestDataURICarriesContentType(t *testing.T) {
	uri := DataURI(pngBytes)
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("unexpected data URI prefix: %s", uri)
	}
	payload := strings.TrimPrefix(uri, "data:image/png;base64,")
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || !bytes.Equal(decoded, pngBytes) {
		t.Fatalf("data URI payload does not round-trip")
	}
}
