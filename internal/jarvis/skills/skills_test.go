package skills_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bdobrica/jarvis/internal/jarvis/skills"
)

func noop(context.Context, skills.Args) (string, error) { return "ok", nil }

func brightnessSkill() skills.Skill {
	return skills.Skill{
		Name:        "set_brightness",
		Description: "Sets the screen brightness.",
		Params: []skills.Param{{
			Name: "level", Type: skills.Integer, Required: true,
			Minimum: skills.Bound(0), Maximum: skills.Bound(255),
		}},
		Invoke: noop,
	}
}

// --- registry ---

func TestBuilder_DuplicateRejected(t *testing.T) {
	b := skills.NewBuilder()
	if err := b.Register(brightnessSkill()); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	err := b.Register(brightnessSkill())
	if !errors.Is(err, skills.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestBuilder_MustRegisterPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	b := skills.NewBuilder()
	b.MustRegister(brightnessSkill(), brightnessSkill())
}

func TestBuilder_SealedAfterBuild(t *testing.T) {
	b := skills.NewBuilder()
	b.MustRegister(brightnessSkill())
	reg := b.Build()
	err := b.Register(skills.Skill{Name: "press_home", Invoke: noop})
	if !errors.Is(err, skills.ErrSealed) {
		t.Fatalf("expected ErrSealed, got %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("registry changed after Build: %d skills", reg.Len())
	}
}

func TestBuilder_InvalidDeclarations(t *testing.T) {
	cases := map[string]skills.Skill{
		"bad name":       {Name: "open app", Invoke: noop},
		"missing invoke": {Name: "open_app"},
		"repeated param": {Name: "open_app", Invoke: noop, Params: []skills.Param{
			{Name: "app_name", Type: skills.String}, {Name: "app_name", Type: skills.String},
		}},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			if err := skills.NewBuilder().Register(s); !errors.Is(err, skills.ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestRegistry_ResolveAndDefinitionsOrder(t *testing.T) {
	b := skills.NewBuilder()
	b.MustRegister(
		skills.Skill{Name: "take_screenshot", Description: "Takes a screenshot.", Invoke: noop},
		brightnessSkill(),
		skills.Skill{Name: "battery_stats", Invoke: noop},
	)
	reg := b.Build()

	if _, ok := reg.Resolve("foo"); ok {
		t.Fatal("expected foo to be unresolved")
	}
	s, ok := reg.Resolve("set_brightness")
	if !ok || s.Name != "set_brightness" {
		t.Fatalf("Resolve: got %v, %v", s, ok)
	}

	defs := reg.Definitions(nil)
	want := []string{"take_screenshot", "set_brightness", "battery_stats"}
	for i, d := range defs {
		if d.Function.Name != want[i] {
			t.Errorf("definition %d: expected %s, got %s", i, want[i], d.Function.Name)
		}
	}

	filtered := reg.Definitions(func(name string) bool { return name != "set_brightness" })
	if len(filtered) != 2 {
		t.Fatalf("expected 2 filtered definitions, got %d", len(filtered))
	}
}

// --- schema ---

func TestSkill_JSONSchema(t *testing.T) {
	s := brightnessSkill()
	schema := s.JSONSchema()
	if schema["type"] != "object" {
		t.Fatalf("expected object schema, got %v", schema["type"])
	}
	req := schema["required"].([]string)
	if len(req) != 1 || req[0] != "level" {
		t.Errorf("unexpected required list %v", req)
	}
	level := schema["properties"].(map[string]any)["level"].(map[string]any)
	if level["type"] != "integer" || level["maximum"] != 255.0 {
		t.Errorf("unexpected level property %v", level)
	}
}

func TestSkill_Validate(t *testing.T) {
	b := skills.NewBuilder()
	b.MustRegister(brightnessSkill())
	s, _ := b.Build().Resolve("set_brightness")

	cases := []struct {
		raw     string
		wantErr bool
	}{
		{`{"level": 128}`, false},
		{`{"level": 0}`, false},
		{`{}`, true},
		{`{"level": 300}`, true},
		{`{"level": "bright"}`, true},
		{`{"level": 12.5}`, true},
	}
	for _, tc := range cases {
		args, err := skills.DecodeArgs(tc.raw)
		if err != nil {
			t.Fatalf("DecodeArgs(%s): %v", tc.raw, err)
		}
		err = s.Validate(args)
		if (err != nil) != tc.wantErr {
			t.Errorf("Validate(%s): err=%v, wantErr=%v", tc.raw, err, tc.wantErr)
		}
	}
}

func TestSkill_ValidateMessageNamesMissingProperty(t *testing.T) {
	b := skills.NewBuilder()
	b.MustRegister(skills.Skill{
		Name:   "type_text",
		Params: []skills.Param{{Name: "text_to_type", Type: skills.String, Required: true}},
		Invoke: noop,
	})
	s, _ := b.Build().Resolve("type_text")
	err := s.Validate(skills.Args{})
	if err == nil || !strings.Contains(err.Error(), "text_to_type") {
		t.Fatalf("expected error naming text_to_type, got %v", err)
	}
}

// --- args ---

func TestDecodeArgs(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n\t"} {
		args, err := skills.DecodeArgs(raw)
		if err != nil || len(args) != 0 {
			t.Errorf("DecodeArgs(%q): expected empty mapping, got %v, %v", raw, args, err)
		}
	}
	if _, err := skills.DecodeArgs(`{"a": 1`); err == nil {
		t.Error("expected error for truncated JSON")
	}
	if _, err := skills.DecodeArgs(`["a"]`); !errors.Is(err, skills.ErrNotObject) {
		t.Errorf("expected ErrNotObject, got %v", err)
	}
	if _, err := skills.DecodeArgs(`{} {}`); err == nil {
		t.Error("expected error for trailing data")
	}
}

func TestArgsAccessors(t *testing.T) {
	args, err := skills.DecodeArgs(`{"level": 200, "seconds": 1.5, "name": "Spotify", "silent": true, "code": 3}`)
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := args.Int("level"); !ok || n != 200 {
		t.Errorf("Int(level) = %d, %v", n, ok)
	}
	if _, ok := args.Int("seconds"); ok {
		t.Error("Int should reject non-integral values")
	}
	if f, ok := args.Float("seconds"); !ok || f != 1.5 {
		t.Errorf("Float(seconds) = %v, %v", f, ok)
	}
	if s, ok := args.String("code"); !ok || s != "3" {
		t.Errorf("String(code) = %q, %v", s, ok)
	}
	if b, ok := args.Bool("silent"); !ok || !b {
		t.Errorf("Bool(silent) = %v, %v", b, ok)
	}

	_, err = args.RequireString("text_to_type")
	var missing *skills.MissingArgError
	if !errors.As(err, &missing) || err.Error() != "text_to_type argument missing." {
		t.Errorf("unexpected RequireString error: %v", err)
	}
	if _, err := (skills.Args{"fact": "   "}).RequireString("fact"); err == nil {
		t.Error("blank string should count as missing")
	}
}

func TestArgsEncode(t *testing.T) {
	if got := (skills.Args{}).Encode(); got != "{}" {
		t.Errorf("empty args: got %q", got)
	}
	if got := (skills.Args{"query": "a&b"}).Encode(); got != `{"query":"a&b"}` {
		t.Errorf("got %q", got)
	}
}
