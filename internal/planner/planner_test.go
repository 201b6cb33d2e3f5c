// internal/planner/planner_test.go
package planner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/genai"

	"autopatch/internal/events"
	"autopatch/internal/fileops"
)

// fakeLLM replays a scripted sequence of model turns and records what it saw
type fakeLLM struct {
	turns    []*genai.GenerateContentResponse
	requests [][]*genai.Content
}

func (f *fakeLLM) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	copied := make([]*genai.Content, len(contents))
	copy(copied, contents)
	f.requests = append(f.requests, copied)

	if len(f.turns) == 0 {
		return textTurn("done"), nil
	}
	turn := f.turns[0]
	f.turns = f.turns[1:]
	return turn, nil
}

func textTurn(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: text}},
			},
		}},
	}
}

func callTurn(text string, calls ...*genai.FunctionCall) *genai.GenerateContentResponse {
	parts := []*genai.Part{}
	if text != "" {
		parts = append(parts, &genai.Part{Text: text})
	}
	for _, call := range calls {
		parts = append(parts, &genai.Part{FunctionCall: call})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: parts},
		}},
	}
}

func newTestFiles(t *testing.T) (*fileops.Service, string) {
	t.Helper()
	root := t.TempDir()
	emitter := events.New("plan-test", events.NopSink{})
	return fileops.NewService(root, emitter, nil), root
}

func TestPlan_ModifyCall(t *testing.T) {
	files, root := newTestFiles(t)
	target := filepath.Join(root, "index.html")
	if err := os.WriteFile(target, []byte("<h1>Hi</h1>"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	newContent := "<h1>Hi</h1>\n<footer>Contact us</footer>"
	llm := &fakeLLM{turns: []*genai.GenerateContentResponse{
		callTurn("Adding a footer to index.html.", &genai.FunctionCall{
			Name: "modify_file",
			Args: map[string]any{"filename": "index.html", "new_content": newContent},
		}),
		textTurn("Footer added."),
	}}

	p := New(llm, "test-model", 8, false)
	summary, err := p.Plan(context.Background(), files, events.New("s1", events.NopSink{}), "add a footer")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != newContent {
		t.Errorf("file on disk = %q, want model-supplied content", string(got))
	}

	if !strings.Contains(summary, "Modified file: index.html") {
		t.Errorf("summary should list index.html as modified:\n%s", summary)
	}
	if !strings.Contains(summary, "Analysis:") {
		t.Errorf("summary should carry the model analysis:\n%s", summary)
	}
}

func TestPlan_CreateCall(t *testing.T) {
	files, root := newTestFiles(t)

	llm := &fakeLLM{turns: []*genai.GenerateContentResponse{
		callTurn("", &genai.FunctionCall{
			Name: "create_file",
			Args: map[string]any{"filename": "styles/site.css", "content": "footer { color: gray }"},
		}),
		textTurn("Created the stylesheet."),
	}}

	p := New(llm, "test-model", 8, false)
	summary, err := p.Plan(context.Background(), files, events.New("s1", events.NopSink{}), "add styling")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, "styles", "site.css"))
	if err != nil {
		t.Fatalf("created file missing: %v", err)
	}
	if string(got) != "footer { color: gray }" {
		t.Errorf("unexpected content: %q", string(got))
	}
	if !strings.Contains(summary, "Created file: styles/site.css") {
		t.Errorf("summary should list the created file:\n%s", summary)
	}
}

func TestPlan_NoCalls(t *testing.T) {
	files, _ := newTestFiles(t)

	llm := &fakeLLM{turns: []*genai.GenerateContentResponse{
		textTurn("The project already satisfies the request."),
	}}

	p := New(llm, "test-model", 8, false)
	summary, err := p.Plan(context.Background(), files, events.New("s1", events.NopSink{}), "noop")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if !strings.Contains(summary, "No file modifications were made.") {
		t.Errorf("summary should note the no-op:\n%s", summary)
	}
	if len(llm.requests) != 1 {
		t.Errorf("expected exactly one model call, got %d", len(llm.requests))
	}
}

func TestPlan_FailedMutationReportedToModel(t *testing.T) {
	files, root := newTestFiles(t)

	llm := &fakeLLM{turns: []*genai.GenerateContentResponse{
		callTurn("", &genai.FunctionCall{
			Name: "modify_file",
			Args: map[string]any{"filename": "missing.txt", "new_content": "x"},
		}),
		textTurn("Could not modify the file."),
	}}

	p := New(llm, "test-model", 8, false)
	if _, err := p.Plan(context.Background(), files, events.New("s1", events.NopSink{}), "fix"); err != nil {
		t.Fatalf("a failed mutation must not abort the session: %v", err)
	}

	// the mutator never creates files
	if _, err := os.Stat(filepath.Join(root, "missing.txt")); !os.IsNotExist(err) {
		t.Error("missing.txt must not be created")
	}

	// the second request must carry the error outcome back to the model
	if len(llm.requests) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(llm.requests))
	}
	last := llm.requests[1]
	fnResp := last[len(last)-1]
	if len(fnResp.Parts) == 0 || fnResp.Parts[0].FunctionResponse == nil {
		t.Fatal("expected a function response part")
	}
	result, _ := fnResp.Parts[0].FunctionResponse.Response["result"].(string)
	if !strings.Contains(result, "Error:") {
		t.Errorf("outcome should be an error string, got %q", result)
	}
}

func TestPlan_TurnLimit(t *testing.T) {
	files, root := newTestFiles(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("v"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// a model that keeps calling tools forever must be cut off at maxTurns
	endless := func() *genai.GenerateContentResponse {
		return callTurn("", &genai.FunctionCall{
			Name: "modify_file",
			Args: map[string]any{"filename": "a.txt", "new_content": "w"},
		})
	}
	llm := &fakeLLM{turns: []*genai.GenerateContentResponse{
		endless(), endless(), endless(), endless(), endless(),
	}}

	p := New(llm, "test-model", 2, false)
	if _, err := p.Plan(context.Background(), files, events.New("s1", events.NopSink{}), "loop"); err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(llm.requests) != 2 {
		t.Errorf("expected 2 model calls at the turn limit, got %d", len(llm.requests))
	}
}

func TestPlan_ModelError(t *testing.T) {
	files, _ := newTestFiles(t)

	p := New(errLLM{}, "test-model", 8, false)
	_, err := p.Plan(context.Background(), files, events.New("s1", events.NopSink{}), "fix")
	if err == nil {
		t.Fatal("expected model invocation error")
	}
	if !strings.Contains(err.Error(), "model invocation") {
		t.Errorf("unexpected error: %v", err)
	}
}

type errLLM struct{}

func (errLLM) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return nil, context.DeadlineExceeded
}
