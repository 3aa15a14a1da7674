package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"bosun/internal/gateway"
	"bosun/pkg/llm"
	"bosun/pkg/logging"
)

// ToolContext is what a tool sees of the turn that invoked it.
type ToolContext struct {
	WorkspaceID string
	Client      gateway.LLM
	Logger      *logging.Entry
}

// Tool is one coach capability. Args returns a pointer to a fresh, typed
// argument value; Execute receives it after decoding and validation.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Args        func() any
	Execute     func(ctx context.Context, tc ToolContext, args any) (string, error)
}

// newTool binds a typed handler to the untyped Tool contract.
func newTool[A any](name, description string, params map[string]any, run func(ctx context.Context, tc ToolContext, args *A) (string, error)) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  params,
		Args:        func() any { return new(A) },
		Execute: func(ctx context.Context, tc ToolContext, args any) (string, error) {
			a, ok := args.(*A)
			if !ok {
				return "", fmt.Errorf("unexpected argument type %T", args)
			}
			return run(ctx, tc, a)
		},
	}
}

func toolParams(properties map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func enumProp(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

// Registry is the single source for both the catalogue sent to the model and
// dispatch by name.
type Registry struct {
	tools    []Tool
	byName   map[string]int
	validate *validator.Validate
}

func NewRegistry(tools []Tool) *Registry {
	v := validator.New()
	// Report fields by their JSON names, the names the model used.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	byName := make(map[string]int, len(tools))
	for i, t := range tools {
		byName[t.Name] = i
	}
	return &Registry{tools: tools, byName: byName, validate: v}
}

// Catalogue returns the tool definitions in registration order.
func (r *Registry) Catalogue() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, llm.Tool{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return out
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Tool{}, false
	}
	return r.tools[i], true
}

// ArgsError describes arguments that failed to decode or validate.
type ArgsError struct {
	Problems []string
}

func (e *ArgsError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// Decode parses raw JSON arguments into t's typed value and validates it.
// Failures are returned as *ArgsError.
func (r *Registry) Decode(t Tool, raw string) (any, error) {
	args := t.Args()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), args); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, &ArgsError{Problems: []string{fmt.Sprintf("%s: expected %s", typeErr.Field, typeErr.Type)}}
		}
		return nil, &ArgsError{Problems: []string{"invalid JSON: " + err.Error()}}
	}
	if err := r.validate.Struct(args); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, &ArgsError{Problems: []string{err.Error()}}
		}
		problems := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			problems = append(problems, fe.Field()+": "+rule)
		}
		return nil, &ArgsError{Problems: problems}
	}
	return args, nil
}
