// Package main provides a desktop notification plugin.
// It posts a reminder to blink when the screen is fully dimmed and clears it
// once a blink lifts the overlay, via osascript on macOS and notify-send elsewhere.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	jsoniter "github.com/json-iterator/go"

	"github.com/ayusman/neurablink/internal/plugin"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// params mirrors what the app sends with stare events.
type params struct {
	Opacity    int     `json:"opacity"`
	BlinkTimer float64 `json:"blink_timer"`
}

// actionHandler defines a function type for handling specific actions.
type actionHandler func(req *plugin.Request, p params) error

// actionHandlers maps action names to their handler functions.
var actionHandlers = map[string]actionHandler{
	"remind": remind,
	"clear":  clearReminder,
}

func main() {
	var req plugin.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(plugin.Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}

	handler, ok := actionHandlers[req.Action]
	if !ok {
		writeResponse(plugin.Response{Error: fmt.Sprintf("unknown action: %s", req.Action)})
		return
	}

	var p params
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			writeResponse(plugin.Response{Error: fmt.Sprintf("invalid params: %v", err)})
			return
		}
	}

	if err := handler(&req, p); err != nil {
		writeResponse(plugin.Response{Error: fmt.Sprintf("action %s failed: %v", req.Action, err)})
		return
	}
	writeResponse(plugin.Response{Success: true})
}

func writeResponse(resp plugin.Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}

// remind posts the notification. On a "recovered" event it does nothing so
// that one action can be bound to both events.
func remind(req *plugin.Request, p params) error {
	if req.Event == plugin.EventRecovered {
		return nil
	}
	msg := "Time to blink"
	if p.BlinkTimer > 0 {
		msg = fmt.Sprintf("No blink for more than %.0f seconds. Time to blink.", p.BlinkTimer)
	}
	return notify("NeuraBlink", msg)
}

// clearReminder posts a short confirmation once the user blinked again.
func clearReminder(req *plugin.Request, _ params) error {
	if req.Event != plugin.EventRecovered {
		return nil
	}
	return notify("NeuraBlink", "Blink detected, screen restored.")
}

func notify(title, msg string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("osascript", "-e", fmt.Sprintf("display notification %q with title %q", msg, title))
	default:
		cmd = exec.Command("notify-send", "--app-name=neurablink", title, msg)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
