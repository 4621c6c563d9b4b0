package clipboard

import "fmt"

// backend maps clipboard operations to tool invocations.
type backend interface {
	name() string
	binary() string
	read(sel Selection, mime string) (string, []string, error)
	write(sel Selection, mime string) (string, []string, error)
	targets(sel Selection) (string, []string, error)
}

func backendByName(name string) (backend, bool) {
	switch name {
	case "xclip":
		return xclip{}, true
	case "xsel":
		return xsel{}, true
	case "wl-clipboard", "wayland":
		return wlClipboard{}, true
	}
	return nil, false
}

type xclip struct{}

func (xclip) name() string  { return "xclip" }
func (xclip) binary() string { return "xclip" }

func (xclip) read(sel Selection, mime string) (string, []string, error) {
	args := []string{"-selection", sel.String(), "-o"}
	if mime != MIMEText {
		args = append(args, "-t", mime)
	}
	return "xclip", args, nil
}

func (xclip) write(sel Selection, mime string) (string, []string, error) {
	args := []string{"-selection", sel.String(), "-i"}
	if mime != MIMEText {
		args = append(args, "-t", mime)
	}
	return "xclip", args, nil
}

func (xclip) targets(sel Selection) (string, []string, error) {
	return "xclip", []string{"-selection", sel.String(), "-t", "TARGETS", "-o"}, nil
}

// xsel only handles text.
type xsel struct{}

func (xsel) name() string  { return "xsel" }
func (xsel) binary() string { return "xsel" }

func (xsel) flag(sel Selection) string {
	if sel == SelectionPrimary {
		return "--primary"
	}
	return "--clipboard"
}

func (x xsel) read(sel Selection, mime string) (string, []string, error) {
	if mime != MIMEText {
		return "", nil, fmt.Errorf("%w: xsel cannot read %s", ErrUnsupported, mime)
	}
	return "xsel", []string{x.flag(sel), "--output"}, nil
}

func (x xsel) write(sel Selection, mime string) (string, []string, error) {
	if mime != MIMEText {
		return "", nil, fmt.Errorf("%w: xsel cannot write %s", ErrUnsupported, mime)
	}
	return "xsel", []string{x.flag(sel), "--input"}, nil
}

func (xsel) targets(Selection) (string, []string, error) {
	return "", nil, fmt.Errorf("%w: xsel cannot list targets", ErrUnsupported)
}

type wlClipboard struct{}

func (wlClipboard) name() string  { return "wl-clipboard" }
func (wlClipboard) binary() string { return "wl-copy" }

func (wlClipboard) read(sel Selection, mime string) (string, []string, error) {
	args := []string{"--no-newline"}
	if sel == SelectionPrimary {
		args = append(args, "--primary")
	}
	if mime != MIMEText {
		args = append(args, "--type", mime)
	}
	return "wl-paste", args, nil
}

func (wlClipboard) write(sel Selection, mime string) (string, []string, error) {
	var args []string
	if sel == SelectionPrimary {
		args = append(args, "--primary")
	}
	if mime != MIMEText {
		args = append(args, "--type", mime)
	}
	return "wl-copy", args, nil
}

func (wlClipboard) targets(sel Selection) (string, []string, error) {
	args := []string{"--list-types"}
	if sel == SelectionPrimary {
		args = append(args, "--primary")
	}
	return "wl-paste", args, nil
}
