// Package steps defines the canonical representation of one unit of agent
// activity and the contract for persisting it. The live form is a closed
// tagged union of step variants; the durable form is a self-describing
// Record with a type discriminator.
package steps

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
)

var (
	// ErrUnknownStep reports an attempt to serialize a step variant the
	// model does not know about. This is a programmer error: the run
	// bridge only ever forwards the variants declared in this package.
	ErrUnknownStep = errors.New("unknown step variant")

	// ErrInvalidRecord reports a persisted record whose type tag (or
	// payload) cannot be deserialized. Callers skip such records and keep
	// loading the rest of the session.
	ErrInvalidRecord = errors.New("invalid step record")
)

// Record type discriminators. These match the persisted format on disk.
const (
	TypeTask        = "TaskStep"
	TypeAction      = "ActionStep"
	TypePlanning    = "PlanningStep"
	TypeFinalAnswer = "FinalAnswerStep"
)

// Step is one unit of agent activity. The union is closed: only the
// variants in this package implement it.
type Step interface {
	isStep()
}

// TaskStep is the human-issued prompt that started a run.
type TaskStep struct {
	Task string
}

// Timing brackets one code-execution turn in unix seconds. A missing or
// partial persisted timing deserializes to the zero value rather than
// failing, so Duration may legitimately be zero.
type Timing struct {
	Start float64
	End   float64
}

func (t Timing) Duration() float64 {
	if t.End <= t.Start {
		return 0
	}
	return t.End - t.Start
}

// ActionStep is one turn of agent code execution. Any field may be empty.
type ActionStep struct {
	StepNumber   int
	Code         string
	Observations string
	Error        string
	Timing       Timing
	Images       [][]byte
}

// PlanningStep carries the agent's transient plan text.
type PlanningStep struct {
	Plan string
}

// FinalAnswerStep is the terminal step of a run: at most one per run, and
// always the last step of its run segment. Image is set instead of Content
// when the answer is binary.
type FinalAnswerStep struct {
	Content string
	Image   []byte
}

func (s *FinalAnswerStep) IsImage() bool { return len(s.Image) > 0 }

func (*TaskStep) isStep()        {}
func (*ActionStep) isStep()      {}
func (*PlanningStep) isStep()    {}
func (*FinalAnswerStep) isStep() {}

// TimingRecord is the durable form of Timing.
type TimingRecord struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Record is the durable, self-describing form of a Step. Only the fields
// belonging to the variant named by Type are populated.
type Record struct {
	Type         string        `json:"type"`
	Task         string        `json:"task,omitempty"`
	StepNumber   int           `json:"step_number,omitempty"`
	Code         string        `json:"code,omitempty"`
	Observations string        `json:"observations,omitempty"`
	Error        string        `json:"error,omitempty"`
	Timing       *TimingRecord `json:"timing,omitempty"`
	Images       []string      `json:"images,omitempty"`
	Plan         string        `json:"plan,omitempty"`
	Content      string        `json:"content,omitempty"`
	IsImage      bool          `json:"is_image,omitempty"`
}

// Serialize converts a live step into its durable record. The record is an
// immutable snapshot: image bytes are copied into base64 text, so later
// mutation of the live step cannot affect already-serialized data.
func Serialize(step Step) (Record, error) {
	switch s := step.(type) {
	case *TaskStep:
		return Record{Type: TypeTask, Task: s.Task}, nil
	case *ActionStep:
		rec := Record{
			Type:         TypeAction,
			StepNumber:   s.StepNumber,
			Code:         s.Code,
			Observations: s.Observations,
			Error:        s.Error,
		}
		if s.Timing != (Timing{}) {
			rec.Timing = &TimingRecord{StartTime: s.Timing.Start, EndTime: s.Timing.End}
		}
		for _, img := range s.Images {
			rec.Images = append(rec.Images, base64.StdEncoding.EncodeToString(img))
		}
		return rec, nil
	case *PlanningStep:
		return Record{Type: TypePlanning, Plan: s.Plan}, nil
	case *FinalAnswerStep:
		if s.IsImage() {
			return Record{
				Type:    TypeFinalAnswer,
				Content: base64.StdEncoding.EncodeToString(s.Image),
				IsImage: true,
			}, nil
		}
		return Record{Type: TypeFinalAnswer, Content: s.Content}, nil
	default:
		return Record{}, fmt.Errorf("%w: %T", ErrUnknownStep, step)
	}
}

// Deserialize reconstructs a live step from its durable record.
func Deserialize(rec Record) (Step, error) {
	switch rec.Type {
	case TypeTask:
		return &TaskStep{Task: rec.Task}, nil
	case TypeAction:
		step := &ActionStep{
			StepNumber:   rec.StepNumber,
			Code:         rec.Code,
			Observations: rec.Observations,
			Error:        rec.Error,
		}
		if rec.Timing != nil {
			step.Timing = Timing{Start: rec.Timing.StartTime, End: rec.Timing.EndTime}
		}
		for _, encoded := range rec.Images {
			img, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, fmt.Errorf("%w: decode image: %v", ErrInvalidRecord, err)
			}
			step.Images = append(step.Images, img)
		}
		return step, nil
	case TypePlanning:
		return &PlanningStep{Plan: rec.Plan}, nil
	case TypeFinalAnswer:
		if rec.IsImage {
			img, err := base64.StdEncoding.DecodeString(rec.Content)
			if err != nil {
				return nil, fmt.Errorf("%w: decode final answer image: %v", ErrInvalidRecord, err)
			}
			return &FinalAnswerStep{Image: img}, nil
		}
		return &FinalAnswerStep{Content: rec.Content}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized type %q", ErrInvalidRecord, rec.Type)
	}
}

// SerializeAll snapshots a live step list. It fails on the first unknown
// variant; a partial snapshot is never returned.
func SerializeAll(list []Step) ([]Record, error) {
	out := make([]Record, 0, len(list))
	for _, step := range list {
		rec, err := Serialize(step)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeserializeAll rebuilds a step list from persisted records. Invalid
// records are skipped with a warning; one bad entry never aborts loading
// the rest of the session.
func DeserializeAll(recs []Record) []Step {
	out := make([]Step, 0, len(recs))
	for i, rec := range recs {
		step, err := Deserialize(rec)
		if err != nil {
			log.Printf("skipping step record %d: %v", i, err)
			continue
		}
		out = append(out, step)
	}
	return out
}

// DataURI renders image bytes in the form the live transport carries:
// a content-type prefix followed by the base64 payload, directly usable
// as an <img> source.
func DataURI(img []byte) string {
	mime := http.DetectContentType(img)
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img)
}
