package skillset

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bdobrica/jarvis/internal/jarvis/device"
	"github.com/bdobrica/jarvis/internal/jarvis/skills"
)

// Result strings.
const (
	FactSaved     = "Fact saved successfully."
	FactKnown     = "I already knew that fact."
	TextFound     = "Text found."
	TextNotFound  = "Text not found."
	NoLoggedNotes = "No important notifications have been logged."
)

// MaxWait caps the wait skill. It stays below the default skill timeout.
const MaxWait = 30 * time.Second

var classMode = map[bool][]string{
	true: {
		"cmd audio set_ringer_mode 1",
		"media volume --stream 3 --set 0",
		"media volume --stream 1 --set 0",
	},
	false: {
		"cmd audio set_ringer_mode 2",
		"media volume --stream 3 --set 7",
		"media volume --stream 1 --set 4",
	},
}

func openApp(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "open_app",
		Description: "Opens an installed app by its common name, e.g. 'YouTube' or 'WhatsApp'.",
		Params:      []skills.Param{str("app_name", "The app's name.")},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			name, err := args.RequireString("app_name")
			if err != nil {
				return "", err
			}
			pkg, found, err := d.Apps.LookupApp(device.NormalizeAppName(name))
			if err != nil {
				return "", fmt.Errorf("app catalog: %w", err)
			}
			if !found {
				return fmt.Sprintf("App '%s' not found", name), nil
			}
			if _, err := d.Device.Shell(ctx, device.LaunchCommand(pkg)); err != nil {
				return "", err
			}
			return fmt.Sprintf("Opened %s (%s).", name, pkg), nil
		},
	}
}

func saveFact(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "save_fact_to_memory",
		Description: "Remembers a fact about the user permanently, e.g. their name or preferences.",
		Params:      []skills.Param{str("fact", "The fact, as a short sentence.")},
		Tags:        []skills.Tag{skills.TagMemory},
		Invoke: func(_ context.Context, args skills.Args) (string, error) {
			fact, err := args.RequireString("fact")
			if err != nil {
				return "", err
			}
			added, err := d.Facts.Save(fact)
			if err != nil {
				return "", fmt.Errorf("failed to save fact: %w", err)
			}
			if !added {
				return FactKnown, nil
			}
			return FactSaved, nil
		},
	}
}

func wait() skills.Skill {
	return skills.Skill{
		Name:        "wait",
		Description: "Pauses for a number of seconds, e.g. to let an app load.",
		Params: []skills.Param{{
			Name:        "seconds",
			Type:        skills.Number,
			Description: "How long to wait, up to " + strconv.Itoa(int(MaxWait.Seconds())) + " seconds.",
			Required:    true,
			Minimum:     skills.Bound(0),
			Maximum:     skills.Bound(MaxWait.Seconds()),
		}},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			secs, err := args.RequireFloat("seconds")
			if err != nil {
				return "", err
			}
			t := time.NewTimer(time.Duration(secs * float64(time.Second)))
			defer t.Stop()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-t.C:
			}
			return fmt.Sprintf("Waited %s seconds.", strconv.FormatFloat(secs, 'f', -1, 64)), nil
		},
	}
}

func waitForText(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "wait_for_text",
		Description: "Waits up to " + d.TextTimeout.String() + " for the given text to appear on screen.",
		Params:      []skills.Param{str("text_to_find", "The text to wait for.")},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			want, err := args.RequireString("text_to_find")
			if err != nil {
				return "", err
			}
			ctx, cancel := context.WithTimeout(ctx, d.TextTimeout)
			defer cancel()
			tick := time.NewTicker(d.PollInterval)
			defer tick.Stop()
			for {
				if nodes, err := device.DumpUI(ctx, d.Device); err == nil {
					if _, ok := device.FindNode(nodes, want); ok {
						return TextFound, nil
					}
				}
				select {
				case <-ctx.Done():
					if errors.Is(ctx.Err(), context.DeadlineExceeded) {
						return TextNotFound, nil
					}
					return "", ctx.Err()
				case <-tick.C:
				}
			}
		},
	}
}

func classModeSkill(d Deps, on bool) skills.Skill {
	name, desc, done := "class_mode_off", "Restores the ringer and media volumes after class mode.", "Class mode disabled."
	if on {
		name, desc, done = "class_mode_on", "Silences the phone for class: vibrate ringer, media and system sounds muted.", "Class mode enabled."
	}
	return skills.Skill{
		Name:        name,
		Description: desc,
		Invoke: func(ctx context.Context, _ skills.Args) (string, error) {
			var errs []error
			for _, cmd := range classMode[on] {
				if _, err := d.Device.Shell(ctx, cmd); err != nil {
					errs = append(errs, err)
				}
			}
			if err := errors.Join(errs...); err != nil {
				return "", err
			}
			return done, nil
		},
	}
}

func classModeOn(d Deps) skills.Skill  { return classModeSkill(d, true) }
func classModeOff(d Deps) skills.Skill { return classModeSkill(d, false) }

func recentNotifications(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "recent_notifications",
		Description: "Lists the most recent important notifications (messages, calls, payments).",
		Params: []skills.Param{{
			Name:        "limit",
			Type:        skills.Integer,
			Description: "How many to return (default 5).",
			Minimum:     skills.Bound(1),
			Maximum:     skills.Bound(50),
		}},
		Invoke: func(_ context.Context, args skills.Args) (string, error) {
			limit, ok := args.Int("limit")
			if !ok {
				limit = 5
			}
			notes, err := d.Notifications.RecentNotifications(limit)
			if err != nil {
				return "", fmt.Errorf("notification log: %w", err)
			}
			if len(notes) == 0 {
				return NoLoggedNotes, nil
			}
			lines := make([]string, len(notes))
			for i, n := range notes {
				lines[i] = fmt.Sprintf("- [%s] %s", n.CreatedAt.Format("Jan 2 15:04"), n.Body)
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}

func researchNewSkill(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "research_new_skill",
		Description: "When no existing tool can do what the user asks, researches a device command that could. The proposal is not executed.",
		Params: []skills.Param{
			str("skill_name", "Short snake_case name of the missing capability."),
			str("user_query", "The user's original request."),
		},
		Tags: []skills.Tag{skills.TagSearch},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			name, err := args.RequireString("skill_name")
			if err != nil {
				return "", err
			}
			query, err := args.RequireString("user_query")
			if err != nil {
				return "", err
			}
			p, err := d.Research.Propose(ctx, name, query)
			if err != nil {
				return "", fmt.Errorf("I could not work out how to do that: %w", err)
			}
			return p.Summary(), nil
		},
	}
}
