package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
)

// Handler runs one function with the raw JSON arguments sent by the model.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Param describes one argument. Object params list their fields in
// Properties, array params their element in Items.
type Param struct {
	Type       schema.DataType
	Desc       string
	Required   bool
	Properties map[string]*Param
	Items      *Param
}

type Function struct {
	Name        string
	Description string
	// Params is nil for functions that take no arguments.
	Params     map[string]*Param
	Completion bool
	Handler    Handler
}

// Schema is the JSON shape advertised to the model for one function.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Registry maps function names to handlers. It is built once and read-only
// afterwards, so it is safe to share between runs.
type Registry struct {
	order      []string
	funcs      map[string]Function
	completion string
}

func NewRegistry(fns ...Function) (*Registry, error) {
	r := &Registry{funcs: make(map[string]Function, len(fns))}
	for _, fn := range fns {
		name := strings.TrimSpace(fn.Name)
		if name == "" {
			return nil, errors.New("function name is empty")
		}
		if _, dup := r.funcs[name]; dup {
			return nil, fmt.Errorf("function %q registered twice", name)
		}
		if fn.Handler == nil {
			return nil, fmt.Errorf("function %q has no handler", name)
		}
		if fn.Completion {
			if r.completion != "" {
				return nil, fmt.Errorf("completion function already set to %q, got %q", r.completion, name)
			}
			if len(fn.Params) > 0 {
				return nil, fmt.Errorf("completion function %q must not take parameters", name)
			}
			r.completion = name
		}
		fn.Name = name
		r.funcs[name] = fn
		r.order = append(r.order, name)
	}
	if r.completion == "" {
		return nil, errors.New("a completion function is required")
	}
	return r, nil
}

func (r *Registry) Resolve(name string) (Function, error) {
	fn, ok := r.funcs[strings.TrimSpace(name)]
	if !ok {
		return Function{}, fmt.Errorf("%w: %q", contractx.ErrUnknownFunction, name)
	}
	return fn, nil
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) CompletionName() string {
	return r.completion
}

func (r *Registry) IsCompletion(name string) bool {
	return strings.TrimSpace(name) == r.completion
}

// Dispatch resolves name, runs its handler and encodes the result as the tool
// message content.
func (r *Registry) Dispatch(ctx context.Context, name, arguments string) (string, error) {
	fn, err := r.Resolve(name)
	if err != nil {
		return "", err
	}

	raw := json.RawMessage(strings.TrimSpace(arguments))
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("%w: %s: invalid json", contractx.ErrArgumentParse, fn.Name)
	}

	out, err := fn.Handler(ctx, raw)
	if err != nil {
		return "", err
	}
	if out == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("%w: %s: encode result: %v", contractx.ErrStepExecution, fn.Name, err)
	}
	return string(encoded), nil
}

// Schemas returns the function schemas in registration order.
func (r *Registry) Schemas() []Schema {
	out := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		fn := r.funcs[name]
		s := Schema{Name: fn.Name, Description: fn.Description}
		if fn.Params != nil {
			s.Parameters = objectSchema(fn.Params, "")
		}
		out = append(out, s)
	}
	return out
}

func (r *Registry) ToolInfos() []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		fn := r.funcs[name]
		info := &schema.ToolInfo{Name: fn.Name, Desc: fn.Description}
		if fn.Params != nil {
			info.ParamsOneOf = schema.NewParamsOneOfByParams(paramInfos(fn.Params))
		}
		out = append(out, info)
	}
	return out
}

// SchemasJSON is the indented schema list embedded in the planner prompt.
func (r *Registry) SchemasJSON() (string, error) {
	raw, err := json.MarshalIndent(r.Schemas(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func objectSchema(props map[string]*Param, desc string) map[string]any {
	properties := make(map[string]any, len(props))
	required := []string{}
	for name, p := range props {
		properties[name] = paramSchema(p)
		if p.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	out := map[string]any{
		"type":       string(schema.Object),
		"properties": properties,
		"required":   required,
	}
	if desc != "" {
		out["description"] = desc
	}
	return out
}

func paramSchema(p *Param) map[string]any {
	switch p.Type {
	case schema.Object:
		return objectSchema(p.Properties, p.Desc)
	case schema.Array:
		out := map[string]any{"type": string(schema.Array)}
		if p.Items != nil {
			out["items"] = paramSchema(p.Items)
		}
		if p.Desc != "" {
			out["description"] = p.Desc
		}
		return out
	default:
		out := map[string]any{"type": string(p.Type)}
		if p.Desc != "" {
			out["description"] = p.Desc
		}
		return out
	}
}

func paramInfos(props map[string]*Param) map[string]*schema.ParameterInfo {
	out := make(map[string]*schema.ParameterInfo, len(props))
	for name, p := range props {
		out[name] = paramInfo(p)
	}
	return out
}

func paramInfo(p *Param) *schema.ParameterInfo {
	info := &schema.ParameterInfo{
		Type:     p.Type,
		Desc:     p.Desc,
		Required: p.Required,
	}
	if p.Type == schema.Object {
		info.SubParams = paramInfos(p.Properties)
	}
	if p.Type == schema.Array && p.Items != nil {
		info.ElemInfo = paramInfo(p.Items)
	}
	return info
}
