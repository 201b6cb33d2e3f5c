// internal/planner/planner.go
package planner

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"google.golang.org/genai"

	"autopatch/internal/events"
	"autopatch/internal/fileops"
	"autopatch/internal/lint"
	"autopatch/internal/scanner"
)

// Bounds keeping the model request within a sane size
const (
	maxContextFiles = 5
	maxFileChars    = 2000
	maxTreeChars    = 3000
	maxLintChars    = 2000
	defaultMaxTurns = 8
)

// LLM is the narrow model surface the planner depends on. The production
// implementation wraps the genai client; tests substitute a fake.
type LLM interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type genaiLLM struct {
	client *genai.Client
}

func (g *genaiLLM) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return g.client.Models.GenerateContent(ctx, model, contents, config)
}

// NewLLM creates the production Gemini-backed LLM
func NewLLM(ctx context.Context, apiKey string) (LLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("model API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &genaiLLM{client: client}, nil
}

// Planner drives one model-guided mutation session: it gathers project
// context, exposes the two file tools to the model, and dispatches every
// returned invocation to the file service before requesting the next turn.
type Planner struct {
	llm         LLM
	model       string
	maxTurns    int
	lintEnabled bool
}

// New creates a Planner. maxTurns bounds the tool-call conversation.
func New(llm LLM, model string, maxTurns int, lintEnabled bool) *Planner {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Planner{
		llm:         llm,
		model:       model,
		maxTurns:    maxTurns,
		lintEnabled: lintEnabled,
	}
}

// Plan runs the full planning cycle against the project behind files and
// returns a human-readable summary of the analysis and actions taken.
func (p *Planner) Plan(ctx context.Context, files *fileops.Service, emitter *events.Emitter, instruction string) (string, error) {
	emitter.Log("Starting agent analysis", events.LevelInfo)

	root := files.Root()
	tree, err := scanner.Scan(root, emitter)
	if err != nil {
		return "", err
	}

	systemPrompt := p.buildSystemPrompt(root, tree, files, emitter, instruction)

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{{
			Text: fmt.Sprintf("Please analyze the project and implement this request: %s", instruction),
		}},
	}}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		Tools: []*genai.Tool{{FunctionDeclarations: toolDeclarations()}},
	}

	emitter.Progress("Session Execution", 0, 1, "Running planner")

	var analysis []string
	var actions []string

	for turn := 0; turn < p.maxTurns; turn++ {
		resp, err := p.llm.GenerateContent(ctx, p.model, contents, config)
		if err != nil {
			return "", fmt.Errorf("model invocation: %w", err)
		}

		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			break
		}
		content := resp.Candidates[0].Content
		contents = append(contents, content)

		for _, part := range content.Parts {
			if part.Text != "" {
				analysis = append(analysis, part.Text)
			}
		}

		calls := functionCalls(content)
		if len(calls) == 0 {
			break
		}

		// Dispatch each invocation immediately, then hand the outcomes back
		// to the model for the next turn
		var responseParts []*genai.Part
		for _, call := range calls {
			log.Printf("[Planner] Function call: %s", call.Name)
			outcome, action := p.execute(call, files, emitter)
			if action != "" {
				actions = append(actions, action, fmt.Sprintf("Result: %s", outcome))
			}
			responseParts = append(responseParts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       call.ID,
					Name:     call.Name,
					Response: map[string]any{"result": outcome},
				},
			})
		}
		contents = append(contents, &genai.Content{
			Role:  genai.RoleUser,
			Parts: responseParts,
		})
	}

	emitter.Progress("Session Execution", 1, 1, "Planner completed")

	return composeSummary(analysis, actions), nil
}

// execute decodes and runs one model-supplied invocation. Component failures
// become descriptive outcome strings so the model can continue or report.
func (p *Planner) execute(call *genai.FunctionCall, files *fileops.Service, emitter *events.Emitter) (outcome, action string) {
	inv, err := decodeInvocation(call)
	if err != nil {
		emitter.Log(fmt.Sprintf("Rejected tool call %s: %v", call.Name, err), events.LevelWarning)
		return fmt.Sprintf("Error: %v", err), ""
	}

	switch v := inv.(type) {
	case modifyInvocation:
		result, err := files.ApplyChange(v.Filename, v.NewContent)
		if err != nil {
			return fmt.Sprintf("Error: %v", err), fmt.Sprintf("Failed to modify file: %s", v.Filename)
		}
		return result, fmt.Sprintf("Modified file: %s", v.Filename)
	case createInvocation:
		result, err := files.CreateFile(v.Filename, v.Content)
		if err != nil {
			return fmt.Sprintf("Error: %v", err), fmt.Sprintf("Failed to create file: %s", v.Filename)
		}
		return result, fmt.Sprintf("Created file: %s", v.Filename)
	default:
		return fmt.Sprintf("Error: unsupported invocation %T", inv), ""
	}
}

// buildSystemPrompt assembles project structure, representative file contents
// and an optional lint summary into the system instruction.
func (p *Planner) buildSystemPrompt(root string, tree scanner.Tree, files *fileops.Service, emitter *events.Emitter, instruction string) string {
	treeText := truncate(scanner.RenderTree(root), maxTreeChars)

	var sb strings.Builder
	sb.WriteString("You are a code modification assistant. You can directly edit files in the project.\n\n")
	sb.WriteString("Project structure:\n")
	sb.WriteString(treeText)
	sb.WriteString("\n\nMain files:\n")

	for _, cf := range contextFiles(tree, files) {
		sb.WriteString(fmt.Sprintf("--- %s ---\n%s\n", cf.path, cf.content))
	}

	if p.lintEnabled {
		projectType := lint.DetectProjectType(tree)
		if summary, err := lint.Run(context.Background(), root, projectType, emitter); err == nil && summary != "" {
			sb.WriteString("\nLint summary:\n")
			sb.WriteString(truncate(summary, maxLintChars))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nAvailable functions:\n")
	sb.WriteString("- To modify an existing file: Call modify_file(filename, new_content)\n")
	sb.WriteString("- To create a new file: Call create_file(filename, content)\n\n")
	sb.WriteString(fmt.Sprintf("User instruction: %s\n\n", instruction))
	sb.WriteString("Analyze the project and make the requested changes. Be specific about which files you're modifying and what changes you're making.")

	return sb.String()
}

type contextFile struct {
	path    string
	content string
}

// sourceExtensions mark files worth sending to the model as context
var sourceExtensions = []string{".py", ".js", ".html", ".css", ".jsx", ".ts", ".tsx"}

func isSourceFile(name string) bool {
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// contextFiles picks up to maxContextFiles source files, each truncated to
// bound the request size. Directory order is stabilized for reproducibility.
func contextFiles(tree scanner.Tree, files *fileops.Service) []contextFile {
	dirs := make([]string, 0, len(tree))
	for dir := range tree {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var picked []contextFile
	for _, dir := range dirs {
		for _, name := range tree[dir] {
			if !isSourceFile(name) {
				continue
			}
			rel := name
			if dir != "" {
				rel = dir + "/" + name
			}
			content, err := files.ReadFile(rel)
			if err != nil {
				continue
			}
			picked = append(picked, contextFile{path: rel, content: truncate(content, maxFileChars)})
			if len(picked) >= maxContextFiles {
				return picked
			}
		}
	}
	return picked
}

// functionCalls extracts all function call parts of a model turn
func functionCalls(content *genai.Content) []*genai.FunctionCall {
	var calls []*genai.FunctionCall
	for _, part := range content.Parts {
		if part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
	}
	return calls
}

// composeSummary mirrors the caller-facing report: analysis text first,
// then the list of actions, or an explicit no-op note
func composeSummary(analysis, actions []string) string {
	var out []string
	if len(analysis) > 0 {
		out = append(out, "Analysis:")
		out = append(out, analysis...)
	}
	if len(actions) > 0 {
		out = append(out, "\nActions taken:")
		out = append(out, actions...)
	} else {
		out = append(out, "\nNo file modifications were made.")
	}
	return strings.Join(out, "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
