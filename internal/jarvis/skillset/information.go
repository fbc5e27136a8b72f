package skillset

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/bdobrica/jarvis/internal/jarvis/device"
	"github.com/bdobrica/jarvis/internal/jarvis/search"
	"github.com/bdobrica/jarvis/internal/jarvis/skills"
)

func silentWebSearch(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "silent_web_search",
		Description: "Searches the web in the background and returns a short answer. Use for facts, news, weather and anything you do not know.",
		Params:      []skills.Param{str("query", "The search query.")},
		Tags:        []skills.Tag{skills.TagSearch},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			q, err := args.RequireString("query")
			if err != nil {
				return "", err
			}
			answer, err := d.Search.Search(ctx, q)
			if err != nil {
				slog.Warn("web search failed", "err", err)
				return search.ConnectionFailure, nil
			}
			return answer, nil
		},
	}
}

func visibleWebSearch(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "visible_web_search",
		Description: "Opens a Google search for the query in the device's browser so the user can see the results.",
		Params:      []skills.Param{str("query", "The search query.")},
		Tags:        []skills.Tag{skills.TagSearch},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			q, err := args.RequireString("query")
			if err != nil {
				return "", err
			}
			u := "https://www.google.com/search?q=" + url.QueryEscape(q)
			return d.Device.Shell(ctx, "am start -a android.intent.action.VIEW -d "+device.ShellQuote(u))
		},
	}
}

func analyzeScreen(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "analyze_screen",
		Description: "Takes a screenshot and answers a question about what is currently on the device screen.",
		Params:      []skills.Param{str("question", "What to find out about the screen.")},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			q, err := args.RequireString("question")
			if err != nil {
				return "", err
			}
			answer, err := d.Vision.Analyze(ctx, q)
			if err != nil {
				return "", fmt.Errorf("I encountered an error analyzing the screen: %w", err)
			}
			return answer, nil
		},
	}
}

func batteryStats(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "battery_stats",
		Description: "Returns the device battery status (level, charging state, temperature).",
		Invoke:      shell(d, "dumpsys battery"),
	}
}

func getBrightness(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "get_brightness",
		Description: "Returns the current screen brightness level (0-255).",
		Invoke:      shell(d, "settings get system screen_brightness"),
	}
}
