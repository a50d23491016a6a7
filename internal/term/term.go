// Package term discovers a usable terminal emulator and knows each
// emulator's "run this command inside me" argument form.
package term

import "os/exec"

// known lists the supported terminal emulators in preference order.
var known = []string{
	"gnome-terminal",
	"konsole",
	"xterm",
	"xfce4-terminal",
	"alacritty",
}

// Candidates returns the terminal search order. A preference other than
// "auto" moves to the front, whether or not it is a known emulator.
func Candidates(preferred string) []string {
	if preferred == "" || preferred == "auto" {
		return append([]string(nil), known...)
	}
	candidates := []string{preferred}
	for _, t := range known {
		if t != preferred {
			candidates = append(candidates, t)
		}
	}
	return candidates
}

// CommandArgs builds the argv that makes the given terminal run command with
// args inside itself. gnome-terminal takes the command after "--"; every
// other supported emulator uses "-e".
func CommandArgs(terminal, command string, args []string) []string {
	switch terminal {
	case "gnome-terminal":
		return append([]string{"--", command}, args...)
	default:
		return append([]string{"-e", command}, args...)
	}
}

// Exists reports whether the terminal is executable via the process search
// path.
func Exists(terminal string) bool {
	_, err := exec.LookPath(terminal)
	return err == nil
}
