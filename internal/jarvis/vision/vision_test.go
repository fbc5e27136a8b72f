package vision_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bdobrica/jarvis/internal/jarvis/device"
	"github.com/bdobrica/jarvis/internal/jarvis/device/devicetest"
	"github.com/bdobrica/jarvis/internal/jarvis/llm"
	"github.com/bdobrica/jarvis/internal/jarvis/llm/llmtest"
	"github.com/bdobrica/jarvis/internal/jarvis/vision"
)

func TestAnalyze_SendsScreenshotAsImage(t *testing.T) {
	fake := devicetest.New().OnExec("exec-out screencap -p", []byte("png-bytes"))
	provider := llmtest.New(llmtest.Text("  The screen shows the settings app.  "))
	a := vision.NewAnalyzer(provider, fake, "")

	got, err := a.Analyze(context.Background(), "What is on screen?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "The screen shows the settings app." {
		t.Errorf("got %q", got)
	}

	reqs := provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if reqs[0].Model != vision.DefaultModel {
		t.Errorf("model = %q", reqs[0].Model)
	}
	msg := reqs[0].Messages[0]
	if msg.Role != llm.RoleUser || msg.Content != "What is on screen?" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if len(msg.Images) != 1 || msg.Images[0] != vision.DataURL([]byte("png-bytes")) {
		t.Errorf("unexpected images: %v", msg.Images)
	}
	if !strings.HasPrefix(msg.Images[0], "data:image/png;base64,") {
		t.Errorf("not a data URL: %s", msg.Images[0])
	}
}

func TestAnalyze_ScreenshotFailure(t *testing.T) {
	fake := devicetest.New().Fail("adb exec-out", device.ErrNoDevice)
	provider := llmtest.New()
	_, err := vision.NewAnalyzer(provider, fake, "m").Analyze(context.Background(), "q")
	if !errors.Is(err, device.ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
	if len(provider.Requests()) != 0 {
		t.Error("model should not be called without a screenshot")
	}
}

func TestDescribe_EmptyAnswer(t *testing.T) {
	provider := llmtest.New(llmtest.Text("   "))
	_, err := vision.NewAnalyzer(provider, devicetest.New(), "m").Describe(context.Background(), "q", []byte("x"))
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}
