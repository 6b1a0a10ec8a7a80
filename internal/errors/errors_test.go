package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "discovery error",
			code:    "B110",
			wantMsg: "Invalid pagelet path",
			wantCat: CategoryDiscovery,
		},
		{
			name:    "plugin error",
			code:    "B122",
			wantMsg: "Plugin name was already defined",
			wantCat: CategoryPlugin,
		},
		{
			name:    "unknown error code",
			code:    "B999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	err := New("B110").WithDetail(`path "/a/:" has an empty parameter`)
	want := `B110: Invalid pagelet path: path "/a/:" has an empty parameter`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	plain := Newf(CategoryRuntime, "boom %d", 1)
	if got := plain.Error(); got != "boom 1" {
		t.Errorf("Error() = %q, want %q", got, "boom 1")
	}
}

func TestError_Wrap(t *testing.T) {
	cause := stderrors.New("disk on fire")
	err := New("B160").Wrap(cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if !strings.HasSuffix(err.Error(), "disk on fire") {
		t.Errorf("Error() = %q, should end with the cause", err.Error())
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "B100") != nil {
		t.Error("FromError(nil) should be nil")
	}

	existing := New("B121")
	if got := FromError(fmt.Errorf("outer: %w", existing), "B100"); got != existing {
		t.Error("FromError should unwrap to an existing *Error")
	}

	wrapped := FromError(stderrors.New("plain"), "B100")
	if wrapped.Code != "B100" {
		t.Errorf("Code = %q, want B100", wrapped.Code)
	}
}

func TestHasCode(t *testing.T) {
	inner := New("B110")
	outer := New("B100").Wrap(inner)

	if !HasCode(outer, "B100") {
		t.Error("should find outer code")
	}
	if !HasCode(outer, "B110") {
		t.Error("should find nested code")
	}
	if HasCode(outer, "B122") {
		t.Error("should not find absent code")
	}
	if HasCode(stderrors.New("x"), "B100") {
		t.Error("plain errors carry no code")
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("B120").WithSuggestion("pass a non-empty name")
	want := "B120: Plugin should be specified with a name (hint: pass a non-empty name)"
	if got := err.FormatCompact(); got != want {
		t.Errorf("FormatCompact() = %q, want %q", got, want)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("B141").WithDetail("bigpipe.json").Wrap(stderrors.New("missing"))

	var decoded map[string]string
	if e := json.Unmarshal([]byte(err.FormatJSON()), &decoded); e != nil {
		t.Fatalf("FormatJSON produced invalid JSON: %v", e)
	}
	if decoded["code"] != "B141" {
		t.Errorf("code = %q", decoded["code"])
	}
	if decoded["category"] != string(CategoryConfig) {
		t.Errorf("category = %q", decoded["category"])
	}
	if decoded["cause"] != "missing" {
		t.Errorf("cause = %q", decoded["cause"])
	}
}

func TestRegister(t *testing.T) {
	Register("B900", ErrorTemplate{Category: CategoryRuntime, Message: "custom"})
	defer delete(registry, "B900")

	tmpl, ok := GetTemplate("B900")
	if !ok || tmpl.Message != "custom" {
		t.Fatalf("GetTemplate(B900) = %+v, %v", tmpl, ok)
	}
}
