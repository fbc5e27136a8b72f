// Package skillset defines the concrete skills the assistant can use and
// registers them with a skills.Builder.
//
// Skills whose collaborator is missing from Deps are not registered, so the
// model is never offered a capability that cannot run.
package skillset

import (
	"context"
	"log/slog"
	"time"

	"github.com/bdobrica/jarvis/internal/jarvis/device"
	"github.com/bdobrica/jarvis/internal/jarvis/learning"
	"github.com/bdobrica/jarvis/internal/jarvis/search"
	"github.com/bdobrica/jarvis/internal/jarvis/skills"
	"github.com/bdobrica/jarvis/internal/jarvis/store"
)

// ScreenAnalyzer answers questions about the current screen.
type ScreenAnalyzer interface {
	Analyze(ctx context.Context, question string) (string, error)
}

// FactSaver persists user facts. *memory.FactStore satisfies it.
type FactSaver interface {
	Save(fact string) (added bool, err error)
}

// AppCatalog resolves normalised app names to packages. *store.Store
// satisfies it.
type AppCatalog interface {
	LookupApp(key string) (pkg string, found bool, err error)
}

// NotificationLog lists logged notifications. *store.Store satisfies it.
type NotificationLog interface {
	RecentNotifications(limit int) ([]store.Notification, error)
}

// Proposer researches new skills. *learning.Researcher satisfies it.
type Proposer interface {
	Propose(ctx context.Context, skillName, userQuery string) (learning.Proposal, error)
}

// Deps are the collaborators skills act through.
type Deps struct {
	Device        device.Runner
	Search        search.Searcher
	Vision        ScreenAnalyzer
	Facts         FactSaver
	Apps          AppCatalog
	Notifications NotificationLog
	Research      Proposer

	// TextTimeout bounds wait_for_text. Zero means 15s.
	TextTimeout time.Duration
	// PollInterval separates wait_for_text checks. Zero means 1s.
	PollInterval time.Duration
	// Now stamps screenshot names. Nil means time.Now.
	Now func() time.Time
}

func (d *Deps) defaults() {
	if d.TextTimeout <= 0 {
		d.TextTimeout = 15 * time.Second
	}
	if d.PollInterval <= 0 {
		d.PollInterval = time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// All returns every skill deps can support, in a stable order.
func All(deps Deps) []skills.Skill {
	deps.defaults()
	var out []skills.Skill
	add := func(ok bool, group string, ss ...skills.Skill) {
		if !ok {
			slog.Debug("skill group disabled: missing dependency", "group", group)
			return
		}
		out = append(out, ss...)
	}

	add(deps.Search != nil, "search", silentWebSearch(deps))
	add(deps.Device != nil, "device browser", visibleWebSearch(deps))
	add(deps.Vision != nil, "vision", analyzeScreen(deps))
	add(deps.Device != nil, "device info", batteryStats(deps), getBrightness(deps))
	add(deps.Device != nil, "navigation",
		accClick(deps), accType(deps), pressBack(deps), pressHome(deps), openNotifications(deps), lockDevice(deps))
	add(deps.Device != nil, "device",
		takeScreenshot(deps), createFolder(deps), moveFile(deps), typeText(deps), sendKeyevent(deps),
		forceStopApp(deps), clearAppData(deps), setBrightness(deps), rebootDevice(deps))
	add(deps.Device != nil && deps.Apps != nil, "apps", openApp(deps))
	add(deps.Facts != nil, "memory", saveFact(deps))
	add(true, "timing", wait())
	add(deps.Device != nil, "screen text", waitForText(deps))
	add(deps.Device != nil, "class mode", classModeOn(deps), classModeOff(deps))
	add(deps.Notifications != nil, "notifications", recentNotifications(deps))
	add(deps.Research != nil, "learning", researchNewSkill(deps))
	return out
}

// Register adds All(deps) to b.
func Register(b *skills.Builder, deps Deps) error {
	for _, s := range All(deps) {
		if err := b.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// shell returns a Func that runs a fixed device command.
func shell(d Deps, command string) skills.Func {
	return func(ctx context.Context, _ skills.Args) (string, error) {
		return d.Device.Shell(ctx, command)
	}
}

func str(name, description string) skills.Param {
	return skills.Param{Name: name, Type: skills.String, Description: description, Required: true}
}
