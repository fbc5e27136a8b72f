package device

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DumpPath is where uiautomator writes the window hierarchy on the device.
const DumpPath = "/sdcard/window_dump.xml"

// ErrNoHierarchy is returned when a dump contains no XML document.
var ErrNoHierarchy = errors.New("device: empty ui hierarchy")

// Rect is a screen rectangle in pixels.
type Rect struct {
	Left, Top, Right, Bottom int
}

// Center returns the rectangle's midpoint.
func (r Rect) Center() (x, y int) {
	return (r.Left + r.Right) / 2, (r.Top + r.Bottom) / 2
}

// Node is one element of the window hierarchy.
type Node struct {
	Text        string
	ContentDesc string
	ResourceID  string
	Class       string
	Package     string
	Clickable   bool
	Focused     bool
	Bounds      Rect
}

type xmlNode struct {
	Text        string    `xml:"text,attr"`
	ContentDesc string    `xml:"content-desc,attr"`
	ResourceID  string    `xml:"resource-id,attr"`
	Class       string    `xml:"class,attr"`
	Package     string    `xml:"package,attr"`
	Clickable   string    `xml:"clickable,attr"`
	Focused     string    `xml:"focused,attr"`
	Bounds      string    `xml:"bounds,attr"`
	Children    []xmlNode `xml:"node"`
}

type xmlHierarchy struct {
	Nodes []xmlNode `xml:"node"`
}

// ParseHierarchy flattens a uiautomator dump into document order. Text
// before the XML declaration (adb status lines) is ignored.
func ParseHierarchy(data []byte) ([]Node, error) {
	start := bytes.Index(data, []byte("<?xml"))
	if start < 0 {
		start = bytes.Index(data, []byte("<hierarchy"))
	}
	if start < 0 {
		return nil, ErrNoHierarchy
	}
	var h xmlHierarchy
	if err := xml.Unmarshal(data[start:], &h); err != nil {
		return nil, fmt.Errorf("parse ui hierarchy: %w", err)
	}
	var out []Node
	var walk func([]xmlNode)
	walk = func(nodes []xmlNode) {
		for _, n := range nodes {
			out = append(out, Node{
				Text:        n.Text,
				ContentDesc: n.ContentDesc,
				ResourceID:  n.ResourceID,
				Class:       n.Class,
				Package:     n.Package,
				Clickable:   n.Clickable == "true",
				Focused:     n.Focused == "true",
				Bounds:      parseBounds(n.Bounds),
			})
			walk(n.Children)
		}
	}
	walk(h.Nodes)
	return out, nil
}

// parseBounds reads "[l,t][r,b]". Malformed input yields the zero Rect.
func parseBounds(s string) Rect {
	s = strings.NewReplacer("][", ",", "[", "", "]", "").Replace(s)
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Rect{}
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Rect{}
		}
		v[i] = n
	}
	return Rect{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}
}

// FindNode returns the first node whose text or content description matches
// label, case-insensitively. Exact matches win over substring matches.
func FindNode(nodes []Node, label string) (Node, bool) {
	want := strings.ToLower(strings.TrimSpace(label))
	if want == "" {
		return Node{}, false
	}
	for _, n := range nodes {
		if strings.ToLower(n.Text) == want || strings.ToLower(n.ContentDesc) == want {
			return n, true
		}
	}
	for _, n := range nodes {
		if strings.Contains(strings.ToLower(n.Text), want) || strings.Contains(strings.ToLower(n.ContentDesc), want) {
			return n, true
		}
	}
	return Node{}, false
}

// DumpUI captures the current window hierarchy.
func DumpUI(ctx context.Context, r Runner) ([]Node, error) {
	out, err := r.Shell(ctx, "uiautomator dump "+DumpPath+" >/dev/null && cat "+DumpPath)
	if err != nil {
		return nil, fmt.Errorf("dump ui: %w", err)
	}
	return ParseHierarchy([]byte(out))
}

// TapCommand taps the centre of r.
func TapCommand(r Rect) string {
	x, y := r.Center()
	return fmt.Sprintf("input tap %d %d", x, y)
}

// Screenshot returns the current screen as PNG bytes.
func Screenshot(ctx context.Context, r Runner) ([]byte, error) {
	png, err := r.Exec(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, fmt.Errorf("screencap: %w", err)
	}
	if len(png) == 0 {
		return nil, errors.New("screencap: empty image")
	}
	return png, nil
}
