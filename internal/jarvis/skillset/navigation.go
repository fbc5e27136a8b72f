package skillset

import (
	"context"
	"fmt"

	"github.com/bdobrica/jarvis/internal/jarvis/device"
	"github.com/bdobrica/jarvis/internal/jarvis/skills"
)

// findOnScreen dumps the UI and locates the element labelled label.
func findOnScreen(ctx context.Context, d Deps, label string) (device.Node, error) {
	nodes, err := device.DumpUI(ctx, d.Device)
	if err != nil {
		return device.Node{}, err
	}
	n, ok := device.FindNode(nodes, label)
	if !ok {
		return device.Node{}, fmt.Errorf("no element labelled '%s' is visible on screen", label)
	}
	return n, nil
}

func accClick(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "acc_click",
		Description: "Taps the on-screen element whose text or description matches text_of_element.",
		Params:      []skills.Param{str("text_of_element", "Visible text or description of the element to tap.")},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			label, err := args.RequireString("text_of_element")
			if err != nil {
				return "", err
			}
			n, err := findOnScreen(ctx, d, label)
			if err != nil {
				return "", err
			}
			if _, err := d.Device.Shell(ctx, device.TapCommand(n.Bounds)); err != nil {
				return "", err
			}
			return fmt.Sprintf("Clicked '%s'.", label), nil
		},
	}
}

func accType(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "acc_type",
		Description: "Focuses the input field labelled text_of_field and types text_to_type into it.",
		Params: []skills.Param{
			str("text_of_field", "Visible text, hint or description of the input field."),
			str("text_to_type", "The text to enter."),
		},
		Invoke: func(ctx context.Context, args skills.Args) (string, error) {
			field, err := args.RequireString("text_of_field")
			if err != nil {
				return "", err
			}
			text, err := args.RequireString("text_to_type")
			if err != nil {
				return "", err
			}
			n, err := findOnScreen(ctx, d, field)
			if err != nil {
				return "", err
			}
			if _, err := d.Device.Shell(ctx, device.TapCommand(n.Bounds)); err != nil {
				return "", err
			}
			if _, err := d.Device.Shell(ctx, inputTextCommand(text)); err != nil {
				return "", err
			}
			return fmt.Sprintf("Typed into '%s'.", field), nil
		},
	}
}

func keyevent(d Deps, name, description, keycode string) skills.Skill {
	return skills.Skill{
		Name:        name,
		Description: description,
		Invoke:      shell(d, "input keyevent "+keycode),
	}
}

func pressBack(d Deps) skills.Skill {
	return keyevent(d, "press_back", "Presses the Android back button.", "KEYCODE_BACK")
}

func pressHome(d Deps) skills.Skill {
	return keyevent(d, "press_home", "Goes to the home screen.", "KEYCODE_HOME")
}

func lockDevice(d Deps) skills.Skill {
	return keyevent(d, "lock_device", "Turns the screen off and locks the device.", "KEYCODE_SLEEP")
}

func openNotifications(d Deps) skills.Skill {
	return skills.Skill{
		Name:        "open_notifications",
		Description: "Pulls down the notification shade.",
		Invoke:      shell(d, "cmd statusbar expand-notifications"),
	}
}
