package app_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bdobrica/jarvis/internal/jarvis/app"
	"github.com/bdobrica/jarvis/internal/jarvis/config"
	"github.com/bdobrica/jarvis/internal/jarvis/device"
	"github.com/bdobrica/jarvis/internal/jarvis/device/devicetest"
	"github.com/bdobrica/jarvis/internal/jarvis/llm/llmtest"
	"github.com/bdobrica/jarvis/internal/jarvis/search"
	"github.com/bdobrica/jarvis/internal/jarvis/skillset"
	"github.com/bdobrica/jarvis/internal/jarvis/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	dir := t.TempDir()
	cfg.Data.Database = filepath.Join(dir, "data", "jarvis.db")
	cfg.Data.FactsFile = filepath.Join(dir, "data", "long_term_memory.json")
	cfg.Device.SyncAppsOnStart = false
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, p *llmtest.Provider, fake *devicetest.Fake) *app.App {
	t.Helper()
	a, err := app.New(cfg, app.Overrides{
		Provider: p,
		Device:   fake,
		Searcher: search.Func(func(context.Context, string) (string, error) {
			return "It is sunny in London.", nil
		}),
		Registry: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestChat_RunsSkillAndAuditsTurn(t *testing.T) {
	p := llmtest.New(
		llmtest.ToolCalls(llmtest.Call{ID: "call_1", Name: "press_home", Args: "{}"}),
		llmtest.Text("You're on the home screen, sir."),
	)
	fake := devicetest.New()
	a := newTestApp(t, testConfig(t), p, fake)

	var out bytes.Buffer
	if err := a.Chat(context.Background(), strings.NewReader("go home\n"), &out); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(out.String(), "Jarvis: You're on the home screen, sir.") {
		t.Errorf("unexpected output %q", out.String())
	}
	if !slices.Contains(fake.Commands(), "input keyevent KEYCODE_HOME") {
		t.Errorf("device commands = %v", fake.Commands())
	}

	turns, err := a.Store().RecentTurns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 audited turn, got %d", len(turns))
	}
	turn := turns[0]
	if turn.Channel != store.ChannelCLI || turn.Message != "go home" || turn.Outcome != "text" || turn.ToolCalls != 1 {
		t.Errorf("unexpected turn %+v", turn)
	}
	if turn.SessionID == "" {
		t.Error("CLI turns should carry the session id")
	}

	calls, err := a.Store().ToolCalls(turn.TraceID)
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 || calls[0].Skill != "press_home" || calls[0].Status != "ok" {
		t.Errorf("unexpected tool calls %+v", calls)
	}
}

func TestChat_SystemInstructionSeesSavedFacts(t *testing.T) {
	p := llmtest.New(
		llmtest.ToolCalls(llmtest.Call{ID: "call_1", Name: "save_fact_to_memory", Args: `{"fact":"My name is Tony."}`}),
		llmtest.Text("Noted, sir."),
		llmtest.Text("Your name is Tony, sir."),
	)
	cfg := testConfig(t)
	a := newTestApp(t, cfg, p, devicetest.New())

	var out bytes.Buffer
	in := strings.NewReader("remember my name is Tony\nwhat is my name\n")
	if err := a.Chat(context.Background(), in, &out); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(cfg.Data.FactsFile)
	if err != nil {
		t.Fatalf("facts file: %v", err)
	}
	if !strings.Contains(string(data), "My name is Tony.") {
		t.Errorf("facts file = %s", data)
	}
	reqs := p.Requests()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 model calls, got %d", len(reqs))
	}
	if system := reqs[2].Messages[0].Content; !strings.Contains(system, "My name is Tony.") {
		t.Errorf("system instruction should include the saved fact:\n%s", system)
	}
}

func TestSyncApps(t *testing.T) {
	fake := devicetest.New().On(device.ListPackagesCommand,
		"package:com.google.android.youtube\npackage:com.whatsapp\n")
	a := newTestApp(t, testConfig(t), llmtest.New(), fake)

	n, err := a.SyncApps(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 apps, got %d", n)
	}
	pkg, found, err := a.Store().LookupApp("youtube")
	if err != nil || !found || pkg != "com.google.android.youtube" {
		t.Fatalf("LookupApp = %q %v %v", pkg, found, err)
	}
}

func TestSkills_FollowProfileRules(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.ProfilePath = filepath.Join(t.TempDir(), "profile.yaml")
	profile := `name: Friday
address: boss
rules:
  - skill: reboot_device
    allow: false
  - skill: "*"
    allow: true
`
	if err := os.WriteFile(cfg.Agent.ProfilePath, []byte(profile), 0o600); err != nil {
		t.Fatal(err)
	}
	a := newTestApp(t, cfg, llmtest.New(), devicetest.New())

	names := a.Skills()
	if slices.Contains(names, "reboot_device") {
		t.Error("reboot_device is denied by the profile")
	}
	for _, want := range []string{"open_app", "save_fact_to_memory", "silent_web_search", "take_screenshot"} {
		if !slices.Contains(names, want) {
			t.Errorf("missing skill %s in %v", want, names)
		}
	}
	if len(a.Definitions()) != len(names) {
		t.Errorf("definitions and names disagree: %d vs %d", len(a.Definitions()), len(names))
	}
}

func TestNew_RequiresAPIKeyWithoutProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = ""
	if _, err := app.New(cfg, app.Overrides{Device: devicetest.New()}); err == nil {
		t.Fatal("expected an error without an API key")
	}
}

func TestNew_InvalidProfile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.ProfilePath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := app.New(cfg, app.Overrides{Provider: llmtest.New(), Device: devicetest.New()})
	if err == nil {
		t.Fatal("expected an error for a missing profile")
	}
}

func TestDefaults_LongestWaitFitsSkillTimeout(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if timeout := cfg.Agent.SkillTimeout; timeout > 0 && skillset.MaxWait >= timeout {
		t.Fatalf("wait accepts up to %v but skills time out after %v", skillset.MaxWait, timeout)
	}
}
