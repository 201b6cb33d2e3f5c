// internal/planner/tools.go
package planner

import (
	"fmt"

	"google.golang.org/genai"
)

// Tool names exposed to the model
const (
	toolModifyFile = "modify_file"
	toolCreateFile = "create_file"
)

// modifyInvocation is a validated modify_file call
type modifyInvocation struct {
	Filename   string
	NewContent string
}

// createInvocation is a validated create_file call
type createInvocation struct {
	Filename string
	Content  string
}

// decodeInvocation converts a model function call into one of the closed set
// of invocation variants. Unknown names and malformed arguments are rejected
// here, before anything touches the filesystem.
func decodeInvocation(call *genai.FunctionCall) (interface{}, error) {
	switch call.Name {
	case toolModifyFile:
		filename, err := stringArg(call.Args, "filename")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", toolModifyFile, err)
		}
		newContent, err := stringArg(call.Args, "new_content")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", toolModifyFile, err)
		}
		return modifyInvocation{Filename: filename, NewContent: newContent}, nil

	case toolCreateFile:
		filename, err := stringArg(call.Args, "filename")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", toolCreateFile, err)
		}
		content, err := stringArg(call.Args, "content")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", toolCreateFile, err)
		}
		return createInvocation{Filename: filename, Content: content}, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", call.Name)
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, raw)
	}
	// filenames must be non-empty; content may legitimately be ""
	if key == "filename" && value == "" {
		return "", fmt.Errorf("argument %q must not be empty", key)
	}
	return value, nil
}

// toolDeclarations describes the two file operations offered to the model,
// matching the modify/create contract one to one
func toolDeclarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{
			Name:        toolModifyFile,
			Description: "Modify an existing file with new content",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"filename": {
						Type:        genai.TypeString,
						Description: "Path to the file to modify",
					},
					"new_content": {
						Type:        genai.TypeString,
						Description: "Complete new content for the file",
					},
				},
				Required: []string{"filename", "new_content"},
			},
		},
		{
			Name:        toolCreateFile,
			Description: "Create a new file with content",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"filename": {
						Type:        genai.TypeString,
						Description: "Path for the new file",
					},
					"content": {
						Type:        genai.TypeString,
						Description: "Content for the new file",
					},
				},
				Required: []string{"filename", "content"},
			},
		},
	}
}
