// Package engine implements the code-writing agent: a model loop that
// streams its reply, executes the fenced code it writes, and feeds the
// observations back in until the code calls final_answer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/loopwork/agentchat/internal/steps"
)

const defaultMaxSteps = 10

const systemPrompt = `You are an autonomous coding assistant. Solve the task by
writing Python code, one step at a time.

Rules:
- Reply with a short thought followed by exactly one fenced code block:
  ` + "```python" + ` ... ` + "```" + `
- The code runs in a fresh interpreter each step; re-import and re-load
  whatever you need.
- print() anything you want to observe; the output comes back to you as the
  observation for the next step.
- Save plots and figures as .png files in the working directory; they are
  captured and shown to the user.
- When you have the answer, call final_answer(value) from your code. Pass
  raw image bytes to return an image.`

const planningPrompt = `Given the conversation so far, write a short numbered
plan for solving the task. Plan only; no code.`

// CodeAgent drives the model/execute loop against a shared Memory. One run
// at a time; starting a second run while one is in flight is unsupported.
type CodeAgent struct {
	Model    llms.Model
	Exec     Executor
	Memory   *Memory
	MaxSteps int

	// PlanningInterval > 0 inserts a planning step before step one and
	// every interval steps after that.
	PlanningInterval int
}

func New(model llms.Model, exec Executor) *CodeAgent {
	return &CodeAgent{
		Model:    model,
		Exec:     exec,
		Memory:   NewMemory(),
		MaxSteps: defaultMaxSteps,
	}
}

// Run starts one agent run for task. The task is appended to memory and
// the returned stream yields live items as the run progresses; memory is
// not reset, so a loaded conversation continues where it left off.
func (a *CodeAgent) Run(ctx context.Context, task string) *Stream {
	stream := newStream()
	go func() {
		defer close(stream.items)
		a.run(ctx, task, stream)
	}()
	return stream
}

func (a *CodeAgent) run(ctx context.Context, task string, stream *Stream) {
	if a.Model == nil {
		stream.err = errors.New("no language model configured")
		return
	}
	if a.Exec == nil {
		stream.err = errors.New("no executor configured")
		return
	}

	a.Memory.Append(&steps.TaskStep{Task: task})

	maxSteps := a.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	for turn := 0; turn < maxSteps; turn++ {
		if a.PlanningInterval > 0 && turn%a.PlanningInterval == 0 {
			plan, err := a.plan(ctx)
			if err != nil {
				stream.err = fmt.Errorf("planning: %w", err)
				return
			}
			planStep := &steps.PlanningStep{Plan: plan}
			a.Memory.Append(planStep)
			if !stream.emit(ctx, planStep) {
				stream.err = ctx.Err()
				return
			}
		}

		reply, err := a.generate(ctx, stream)
		if err != nil {
			stream.err = err
			return
		}

		code := extractCode(reply)
		if code == "" {
			// No code block: the model answered directly.
			final := &steps.FinalAnswerStep{Content: strings.TrimSpace(reply)}
			stream.final = final
			stream.emit(ctx, final)
			return
		}

		if !stream.emit(ctx, ToolCall{Name: "python_interpreter", Arguments: code}) {
			stream.err = ctx.Err()
			return
		}

		stepNumber := a.Memory.nextStepNumber()
		start := unixSeconds(time.Now())
		result, execErr := a.Exec.Execute(ctx, code)
		end := unixSeconds(time.Now())

		action := &steps.ActionStep{
			StepNumber:   stepNumber,
			Code:         code,
			Observations: result.Output,
			Timing:       steps.Timing{Start: start, End: end},
			Images:       result.Images,
		}
		if execErr != nil {
			action.Error = execErr.Error()
		}
		a.Memory.Append(action)
		if !stream.emit(ctx, action) {
			stream.err = ctx.Err()
			return
		}

		if result.Final != nil {
			final := &steps.FinalAnswerStep{
				Content: result.Final.Content,
				Image:   result.Final.Image,
			}
			stream.final = final
			stream.emit(ctx, final)
			return
		}
	}

	stream.err = fmt.Errorf("no final answer after %d steps", maxSteps)
}

// generate streams one model reply, forwarding chunks as Delta items, and
// returns the full text.
func (a *CodeAgent) generate(ctx context.Context, stream *Stream) (string, error) {
	var streamErr error
	resp, err := a.Model.GenerateContent(ctx, a.buildMessages(),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			if !stream.emit(ctx, Delta{Content: string(chunk)}) {
				streamErr = ctx.Err()
				return streamErr
			}
			return nil
		}))
	if streamErr != nil {
		return "", streamErr
	}
	if err != nil {
		return "", fmt.Errorf("model: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func (a *CodeAgent) plan(ctx context.Context) (string, error) {
	messages := append(a.buildMessages(), llms.TextParts(llms.ChatMessageTypeHuman, planningPrompt))
	resp, err := a.Model.GenerateContent(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// buildMessages renders memory as a chat transcript the model can resume
// from, independent of whether the steps are live or rehydrated.
func (a *CodeAgent) buildMessages() []llms.MessageContent {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
	}
	for _, step := range a.Memory.Steps() {
		switch s := step.(type) {
		case *steps.TaskStep:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, "New task: "+s.Task))
		case *steps.PlanningStep:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, "Plan:\n"+s.Plan))
		case *steps.ActionStep:
			if s.Code != "" {
				messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, "```python\n"+s.Code+"\n```"))
			}
			observation := s.Observations
			if s.Error != "" {
				observation = strings.TrimSpace(observation + "\nError: " + s.Error)
			}
			if observation == "" {
				observation = "(no output)"
			}
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, "Observation:\n"+observation))
		case *steps.FinalAnswerStep:
			content := s.Content
			if s.IsImage() {
				content = "(image answer)"
			}
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, content))
		}
	}
	return messages
}

var codeFence = regexp.MustCompile("(?s)```(?:python|py)?\\s*\n(.*?)```")

// extractCode pulls the first fenced code block out of a model reply.
func extractCode(reply string) string {
	match := codeFence.FindStringSubmatch(reply)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
