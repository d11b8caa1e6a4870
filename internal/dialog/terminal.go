package dialog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// cancelWord typed alone on a line cancels the dialog.
const cancelWord = ":q"

// TerminalPresenter renders requests as line prompts. Passwords are read
// without echo when the input is a terminal.
type TerminalPresenter struct {
	in    *bufio.Reader
	out   io.Writer
	fd    int
	isTTY bool
}

func NewTerminal(in io.Reader, out io.Writer) *TerminalPresenter {
	p := &TerminalPresenter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.isTTY = true
	}
	return p
}

var errCancelled = errors.New("cancelled")

func (p *TerminalPresenter) Present(ctx context.Context, s *Service, req *Request) error {
	fmt.Fprintf(p.out, "\n== %s ==\n", req.Title)
	if req.Text != "" {
		fmt.Fprintln(p.out, req.Text)
	}

	for {
		value, err := p.read(req)
		if errors.Is(err, errCancelled) || errors.Is(err, io.EOF) {
			return s.Cancel(req.ID)
		}
		if err != nil {
			return err
		}
		err = s.Submit(req.ID, value)
		if err == nil || errors.Is(err, ErrNotActive) {
			return err
		}
		fmt.Fprintf(p.out, "! %v\n", err)
		if ctx.Err() != nil {
			return s.Cancel(req.ID)
		}
	}
}

func (p *TerminalPresenter) read(req *Request) (any, error) {
	switch req.Kind {
	case KindConfirm:
		line, err := p.line("Confirm? [y/N]: ")
		if err != nil {
			return nil, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	case KindPrompt:
		if req.InputType == InputPassword {
			return p.password("Password: ")
		}
		label := "> "
		if req.Default != "" {
			label = fmt.Sprintf("[%s] > ", req.Default)
		}
		line, err := p.line(label)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return req.Default, nil
		}
		return line, nil
	case KindTextarea:
		return p.textarea(req.Default)
	case KindMapping:
		prefix, err := p.field("Prefix", req.Mapping.Prefix)
		if err != nil {
			return nil, err
		}
		target, err := p.field("Target URL", req.Mapping.TargetURL)
		if err != nil {
			return nil, err
		}
		return MappingInput{Prefix: prefix, TargetURL: target}, nil
	case KindAccessKey:
		return p.accessKey(req)
	}
	return nil, fmt.Errorf("unsupported dialog kind %s", req.Kind)
}

func (p *TerminalPresenter) accessKey(req *Request) (any, error) {
	in := req.AccessKey
	var err error
	if in.Name, err = p.field("Name", in.Name); err != nil {
		return nil, err
	}
	if in.UsageLimit, err = p.field("Usage limit (empty = unlimited)", in.UsageLimit); err != nil {
		return nil, err
	}
	if in.ExpiresInHours, err = p.field("Expires in hours (empty = never)", in.ExpiresInHours); err != nil {
		return nil, err
	}
	if ResetDailyEnabled(in.UsageLimit) {
		if in.ResetDaily, err = p.toggle("Reset usage daily", in.ResetDaily); err != nil {
			return nil, err
		}
	} else {
		in.ResetDaily = false
	}
	if req.Editing {
		if in.IsActive, err = p.toggle("Active", in.IsActive); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (p *TerminalPresenter) field(label, current string) (string, error) {
	prompt := label + ": "
	if current != "" {
		prompt = fmt.Sprintf("%s [%s]: ", label, current)
	}
	line, err := p.line(prompt)
	if err != nil {
		return "", err
	}
	if line == "" {
		return current, nil
	}
	if line == "-" {
		return "", nil
	}
	return line, nil
}

func (p *TerminalPresenter) toggle(label string, current bool) (bool, error) {
	hint := "y/N"
	if current {
		hint = "Y/n"
	}
	line, err := p.line(fmt.Sprintf("%s? [%s]: ", label, hint))
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "":
		return current, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// textarea reads lines until a lone "." and returns them newline-joined.
func (p *TerminalPresenter) textarea(initial string) (string, error) {
	if initial != "" {
		fmt.Fprintln(p.out, "Current:")
		fmt.Fprintln(p.out, initial)
		fmt.Fprintln(p.out, "(enter a lone '.' right away to keep it)")
	}
	fmt.Fprintf(p.out, "Enter one entry per line, finish with '.', '%s' cancels:\n", cancelWord)
	var lines []string
	for {
		line, err := p.line("")
		if err != nil {
			if errors.Is(err, io.EOF) && len(lines) > 0 {
				break
			}
			return "", err
		}
		if line == "." {
			break
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return initial, nil
	}
	return strings.Join(lines, "\n"), nil
}

func (p *TerminalPresenter) password(prompt string) (string, error) {
	if !p.isTTY {
		return p.line(prompt)
	}
	fmt.Fprint(p.out, prompt)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	pw := string(b)
	if pw == cancelWord {
		return "", errCancelled
	}
	return pw, nil
}

func (p *TerminalPresenter) line(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(p.out, prompt)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == cancelWord {
		return "", errCancelled
	}
	return line, nil
}
