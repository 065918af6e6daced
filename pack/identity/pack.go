// Package identity provides tools that canonicalize operational identifiers
// such as usernames, pod names and namespaces before they become metadata.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/felixgeelhaar/opsquery/domain/agent"
	"github.com/felixgeelhaar/opsquery/domain/pack"
	"github.com/felixgeelhaar/opsquery/domain/tool"
	"github.com/felixgeelhaar/opsquery/infrastructure/validation"
)

// Kind is the category of an identifier.
type Kind string

const (
	KindUser      Kind = "user"
	KindPod       Kind = "pod"
	KindNamespace Kind = "namespace"
)

// Failure codes reported by normalize_identifier.
const (
	CodeEmptyIdentifier     = "empty_identifier"
	CodeInvalidIdentifier   = "invalid_identifier"
	CodeAmbiguousIdentifier = "ambiguous_identifier"
)

const dns1123LabelPattern = `^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`

var (
	dns1123Label = regexp.MustCompile(dns1123LabelPattern)
	// Pods created by a controller end in a 5 character random suffix.
	podName = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?-[a-z0-9]{5}$`)
)

const (
	maxLabelLength  = 63
	maxPodLength    = 253
	maxUserLength   = 64
	defaultToolTime = 2 * time.Second
)

// New creates the identity pack.
func New() *pack.Pack {
	return pack.NewBuilder("identity").
		WithDescription("Identifier normalization for users, pods and namespaces").
		WithVersion("1.0.0").
		AddTools(normalizeTool()).
		MustBuild()
}

type normalizeInput struct {
	Value string `json:"value"`
	Kind  string `json:"kind,omitempty"`
}

type normalizeOutput struct {
	Value      string `json:"value"`
	Kind       string `json:"kind"`
	Original   string `json:"original"`
	Normalized bool   `json:"normalized"`
}

func normalizeTool() tool.Tool {
	return tool.NewBuilder("normalize_identifier").
		WithDescription("Canonicalize a username, pod name or namespace mentioned in the query. " +
			"Usernames are lowercased with any email domain removed; pod names and " +
			"namespaces must be valid Kubernetes names.").
		WithFields(
			tool.Field{Name: "value", Type: tool.TypeString, Required: true,
				Description: "Identifier as written in the query"},
			tool.Field{Name: "kind", Type: tool.TypeString,
				Enum:        []string{string(KindUser), string(KindPod), string(KindNamespace)},
				Description: "Identifier category; inferred when omitted"},
		).
		WithMetadataFields(agent.FieldUsername, agent.FieldPod, agent.FieldNamespace).
		WithAnnotations(tool.PureAnnotations()).
		WithTimeout(defaultToolTime).
		WithTags("identity").
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in normalizeInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, fmt.Errorf("decode input: %w", err)
			}

			kind := Kind(in.Kind)
			if kind == "" {
				var ok bool
				if kind, ok = Infer(in.Value); !ok {
					return tool.Fail(CodeAmbiguousIdentifier,
						"cannot tell whether %q is a user, pod or namespace; pass kind", in.Value), nil
				}
			}

			value, err := Normalize(in.Value, kind)
			if err != nil {
				code := CodeInvalidIdentifier
				if strings.TrimSpace(in.Value) == "" {
					code = CodeEmptyIdentifier
				}
				return tool.Fail(code, "%v", err), nil
			}

			res, err := tool.JSONResult(normalizeOutput{
				Value:      value,
				Kind:       string(kind),
				Original:   in.Value,
				Normalized: value != in.Value,
			})
			if err != nil {
				return tool.Result{}, err
			}
			return res.WithMetadata(field(kind), value), nil
		}).
		MustBuild()
}

func field(k Kind) string {
	switch k {
	case KindPod:
		return agent.FieldPod
	case KindNamespace:
		return agent.FieldNamespace
	default:
		return agent.FieldUsername
	}
}

var kindRules = validation.NewSchema().
	AddRule("kind", validation.AllowedValues(string(KindUser), string(KindPod), string(KindNamespace)))

// valueRules holds the shape a canonical identifier of each kind must have.
var valueRules = map[Kind]*validation.Schema{
	KindUser: validation.NewSchema().AddRule("value",
		validation.MinLength(1),
		validation.MaxLength(maxUserLength),
		validation.Pattern(`^[a-z0-9][a-z0-9._-]*$`),
	),
	KindPod: validation.NewSchema().AddRule("value",
		validation.MinLength(1),
		validation.MaxLength(maxPodLength),
		validation.Custom("dns1123_subdomain", func(v any) error {
			if s, _ := v.(string); !dns1123Subdomain(s) {
				return fmt.Errorf("must be a DNS-1123 subdomain")
			}
			return nil
		}),
	),
	KindNamespace: validation.NewSchema().AddRule("value",
		validation.MinLength(1),
		validation.MaxLength(maxLabelLength),
		validation.Pattern(dns1123LabelPattern),
	),
}

// Normalize canonicalizes value as an identifier of kind k.
func Normalize(value string, k Kind) (string, error) {
	v := strings.Trim(strings.TrimSpace(value), `"'`+"`")
	if v == "" {
		return "", fmt.Errorf("empty %s identifier", k)
	}

	if err := kindRules.ValidateValues(map[string]any{"kind": string(k)}); err != nil {
		return "", fmt.Errorf("unknown identifier kind %q", k)
	}

	v = strings.ToLower(v)
	if k == KindUser {
		v = strings.TrimPrefix(v, "@")
		if i := strings.IndexByte(v, '@'); i >= 0 {
			v = v[:i]
		}
	}
	if err := valueRules[k].ValidateValues(map[string]any{"value": v}); err != nil {
		return "", fmt.Errorf("invalid %s %q: %w", noun(k), value, err)
	}
	return v, nil
}

func noun(k Kind) string {
	switch k {
	case KindPod:
		return "pod name"
	case KindNamespace:
		return "namespace"
	default:
		return "username"
	}
}

// Infer guesses the kind of an identifier from its shape.
func Infer(value string) (Kind, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case strings.Contains(v, "@"):
		return KindUser, true
	case podName.MatchString(v):
		return KindPod, true
	default:
		return "", false
	}
}

func dns1123Subdomain(v string) bool {
	for _, label := range strings.Split(v, ".") {
		if len(label) > maxLabelLength || !dns1123Label.MatchString(label) {
			return false
		}
	}
	return true
}
