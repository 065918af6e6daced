package identity_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/opsquery/infrastructure/validation"
	"github.com/felixgeelhaar/opsquery/pack/identity"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value   string
		kind    identity.Kind
		want    string
		wantErr bool
	}{
		{value: "JSmith", kind: identity.KindUser, want: "jsmith"},
		{value: " jsmith@purdue.edu ", kind: identity.KindUser, want: "jsmith"},
		{value: "@alice", kind: identity.KindUser, want: "alice"},
		{value: "bob smith", kind: identity.KindUser, wantErr: true},
		{value: "Web-7d4b9c-x2k9p", kind: identity.KindPod, want: "web-7d4b9c-x2k9p"},
		{value: "-bad-", kind: identity.KindPod, wantErr: true},
		{value: "'kube-system'", kind: identity.KindNamespace, want: "kube-system"},
		{value: "my.namespace", kind: identity.KindNamespace, wantErr: true},
		{value: "  ", kind: identity.KindUser, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()
			got, err := identity.Normalize(tt.value, tt.kind)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestNormalize_Rules(t *testing.T) {
	t.Parallel()

	longPod := strings.Repeat("a", 61) + "." + strings.Repeat("b", 61) + "." +
		strings.Repeat("c", 61) + "." + strings.Repeat("d", 61) + ".e-12345"

	tests := []struct {
		name     string
		value    string
		kind     identity.Kind
		wantRule string
	}{
		{name: "bare at sign", value: "@", kind: identity.KindUser, wantRule: validation.RuleMinLength},
		{name: "long username", value: strings.Repeat("u", 65), kind: identity.KindUser, wantRule: validation.RuleMaxLength},
		{name: "username with space", value: "bob smith", kind: identity.KindUser, wantRule: validation.RulePattern},
		{name: "long pod", value: longPod, kind: identity.KindPod, wantRule: validation.RuleMaxLength},
		{name: "pod label with dash edge", value: "web.-x", kind: identity.KindPod, wantRule: "dns1123_subdomain"},
		{name: "long namespace", value: strings.Repeat("n", 64), kind: identity.KindNamespace, wantRule: validation.RuleMaxLength},
		{name: "namespace with dot", value: "my.namespace", kind: identity.KindNamespace, wantRule: validation.RulePattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := identity.Normalize(tt.value, tt.kind)
			var errs validation.Errors
			if !errors.As(err, &errs) {
				t.Fatalf("Normalize(%q) error = %v, want validation errors", tt.value, err)
			}
			if !errs.Has(tt.wantRule) {
				t.Errorf("Normalize(%q) violations = %v, want rule %s", tt.value, errs, tt.wantRule)
			}
		})
	}
}

func TestNormalize_UnknownKind(t *testing.T) {
	t.Parallel()

	_, err := identity.Normalize("web", identity.Kind("service"))
	if err == nil || !strings.Contains(err.Error(), "unknown identifier kind") {
		t.Fatalf("Normalize(service) error = %v", err)
	}
}

func TestInfer(t *testing.T) {
	t.Parallel()

	if k, ok := identity.Infer("a@b.c"); !ok || k != identity.KindUser {
		t.Errorf("Infer(email) = %s, %v", k, ok)
	}
	if k, ok := identity.Infer("api-5f6d8-abcde"); !ok || k != identity.KindPod {
		t.Errorf("Infer(pod) = %s, %v", k, ok)
	}
	if _, ok := identity.Infer("default"); ok {
		t.Error("Infer(default) should be ambiguous")
	}
}

func TestNormalizeIdentifierTool(t *testing.T) {
	t.Parallel()

	tl, ok := identity.New().GetTool("normalize_identifier")
	if !ok {
		t.Fatal("normalize_identifier not found")
	}

	tests := []struct {
		name      string
		input     string
		field     string
		want      string
		failCode  string
	}{
		{name: "user", input: `{"value":"JSmith@Example.com","kind":"user"}`, field: "username", want: "jsmith"},
		{name: "inferred pod", input: `{"value":"api-5f6d8-abcde"}`, field: "pod", want: "api-5f6d8-abcde"},
		{name: "namespace", input: `{"value":"Monitoring","kind":"namespace"}`, field: "namespace", want: "monitoring"},
		{name: "ambiguous", input: `{"value":"default"}`, failCode: identity.CodeAmbiguousIdentifier},
		{name: "invalid", input: `{"value":"no spaces allowed","kind":"pod"}`, failCode: identity.CodeInvalidIdentifier},
		{name: "empty", input: `{"value":"","kind":"user"}`, failCode: identity.CodeEmptyIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if err := tl.InputSchema().Validate(json.RawMessage(tt.input)); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			res, err := tl.Execute(context.Background(), json.RawMessage(tt.input))
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if tt.failCode != "" {
				if !res.Failed() || res.Failure.Code != tt.failCode {
					t.Errorf("Failure = %v, want %s", res.Failure, tt.failCode)
				}
				return
			}
			if res.Failed() {
				t.Fatalf("unexpected failure %v", res.Failure)
			}
			if got := res.Metadata[tt.field]; got != tt.want {
				t.Errorf("Metadata[%s] = %v, want %s", tt.field, got, tt.want)
			}
		})
	}
}
