package cliutil

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
)

var (
	execCommand = exec.Command
	runtimeGOOS = runtime.GOOS
)

// OpenURL hands url to the desktop's default handler.
func OpenURL(url string) error {
	if url == "" {
		return errors.New("url is empty")
	}
	var cmd *exec.Cmd
	switch runtimeGOOS {
	case "darwin":
		cmd = execCommand("open", url)
	case "linux":
		cmd = execCommand("xdg-open", url)
	case "windows":
		cmd = execCommand("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return errors.New("unsupported platform")
	}
	return cmd.Start()
}

// hyperlinkEnv lists variables set by terminals that render OSC 8 links.
var hyperlinkEnv = []string{
	"WT_SESSION",
	"VTE_VERSION",
	"KONSOLE_VERSION",
	"KITTY_WINDOW_ID",
	"WEZTERM_EXECUTABLE",
	"DOMTERM",
	"TERM_PROGRAM",
}

func supportsHyperlinks() bool {
	switch os.Getenv("TERM") {
	case "", "dumb", "alacritty":
		return false
	}
	for _, key := range hyperlinkEnv {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

// Link renders label as a clickable link when the terminal supports it.
func Link(label string, url string) string {
	if url == "" {
		return label
	}
	if label == "" {
		label = url
	}
	if !supportsHyperlinks() {
		return label
	}
	return "\x1b]8;;" + url + "\x1b\\" + label + "\x1b]8;;\x1b\\"
}
