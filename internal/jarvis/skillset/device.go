package skillset

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bdobrica/jarvis/internal/jarvis/device"
	"github.com/bdobrica/jarvis/internal/jarvis/skills"
)

var (
	packagePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)+$`)
	keycodePattern = regexp.MustCompile(`^(KEYCODE_[A-Z0-9_]+|[0-9]{1,3})$`)
)

// inputTextCommand types text with "input text", which reads %s as a space.
func inputTextCommand(text string) string {
	return "input text " + device.ShellQuote(strings.ReplaceAll(text, " ", "%s"))
}

func packageArg(args skills.Args) (string, error) {
	pkg, err := args.RequireString("package_name")
	if err != nil {
		return "", err
	}
	if !packagePattern.MatchString(pkg) {
		return "", fmt.Errorf("'%s' is not a valid package name", pkg)
	}
	return pkg, nil
}

func takeScreenshot(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "take_screenshot",
		Description: "Saves a screenshot to the device's Pictures folder.",
		Invoke: func(ctx context.Context, _ skills.Args) (string, error) {
			path := fmt.Sprintf("/sdcard/Pictures/screenshot_%d.png", d.Now().Unix())
			if _, err := d.Device.Shell(ctx, "screencap -p "+path); err != nil {
				return "", err
			}
			return "Screenshot saved to " + path + ".", nil
		},
	}
}

func createFolder(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "create_folder",
		Description: "Creates a folder (and any missing parents) on the device storage.",
		Params:      []skills.Param{str("folder_path", "Absolute path, e.g. /sdcard/Documents/Notes.")},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			p, err := args.RequireString("folder_path")
			if err != nil {
				return "", err
			}
			return d.Device.Shell(ctx, "mkdir -p "+device.ShellQuote(p))
		},
	}
}

func moveFile(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "move_file",
		Description: "Moves or renames a file on the device storage.",
		Params: []skills.Param{
			str("source_path", "Current absolute path."),
			str("destination_path", "New absolute path or target folder."),
		},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			src, err := args.RequireString("source_path")
			if err != nil {
				return "", err
			}
			dst, err := args.RequireString("destination_path")
			if err != nil {
				return "", err
			}
			return d.Device.Shell(ctx, "mv "+device.ShellQuote(src)+" "+device.ShellQuote(dst))
		},
	}
}

func typeText(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "type_text",
		Description: "Types text into the currently focused input field.",
		Params:      []skills.Param{str("text_to_type", "The text to type.")},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			text, err := args.RequireString("text_to_type")
			if err != nil {
				return "", err
			}
			return d.Device.Shell(ctx, inputTextCommand(text))
		},
	}
}

func sendKeyevent(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "send_keyevent",
		Description: "Sends an Android key event, e.g. KEYCODE_ENTER, KEYCODE_VOLUME_UP or a numeric key code.",
		Params:      []skills.Param{str("keycode", "KEYCODE_* name or numeric code.")},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			code, err := args.RequireString("keycode")
			if err != nil {
				return "", err
			}
			code = strings.ToUpper(strings.TrimSpace(code))
			if !keycodePattern.MatchString(code) {
				return "", fmt.Errorf("'%s' is not a valid key code", code)
			}
			return d.Device.Shell(ctx, "input keyevent "+code)
		},
	}
}

func forceStopApp(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "force_stop_app",
		Description: "Force-stops an app by package name.",
		Params:      []skills.Param{str("package_name", "Package name, e.g. com.whatsapp.")},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			pkg, err := packageArg(args)
			if err != nil {
				return "", err
			}
			return d.Device.Shell(ctx, "am force-stop "+pkg)
		},
	}
}

func clearAppData(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "clear_app_data",
		Description: "Deletes all data of an app by package name. Destructive: confirm with the user first.",
		Params:      []skills.Param{str("package_name", "Package name, e.g. com.whatsapp.")},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			pkg, err := packageArg(args)
			if err != nil {
				return "", err
			}
			return d.Device.Shell(ctx, "pm clear "+pkg)
		},
	}
}

func setBrightness(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "set_brightness",
		Description: "Sets the screen brightness.",
		Params: []skills.Param{{
			Name:        "level",
			Type:        skills.Integer,
			Description: "Brightness from 0 (darkest) to 255 (brightest).",
			Required:    true,
			Minimum:     skills.Bound(0),
			Maximum:     skills.Bound(255),
		}},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			level, err := args.RequireInt("level")
			if err != nil {
				return "", err
			}
			if _, err := d.Device.Shell(ctx, "settings put system screen_brightness "+strconv.Itoa(level)); err != nil {
				return "", err
			}
			return fmt.Sprintf("Brightness set to %d.", level), nil
		},
	}
}

func rebootDevice(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "reboot_device",
		Description: "Reboots the device. The assistant loses the device until it restarts.",
		Invoke: func(ctx context.Context, _ skills.Args) (string, error) {
			if _, err := d.Device.Exec(ctx, "reboot"); err != nil {
				return "", err
			}
			return "The device is rebooting.", nil
		},
	}
}
