package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"codejudge/internal/cli/command"
	httpclient "codejudge/internal/cli/http"
	"codejudge/internal/cli/state"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const prompt = "judgecli> "

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	tokenState *state.TokenState
	statePath  string
	prettyJSON bool
	rl         *readline.Instance
	out        io.Writer
}

func New(client *httpclient.Client, commands map[string]command.Command, tokenState *state.TokenState, statePath, historyPath string, prettyJSON bool) (*Session, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyPath,
		AutoComplete:    completer(commands),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("init readline failed: %w", err)
	}
	return &Session{
		client:     client,
		commands:   commands,
		tokenState: tokenState,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		rl:         rl,
		out:        rl.Stdout(),
	}, nil
}

// Run reads commands until exit, EOF or context cancellation.
func (s *Session) Run(ctx context.Context) {
	defer func() { _ = s.rl.Close() }()
	for {
		if ctx.Err() != nil {
			return
		}
		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.printLine("read input failed: %v", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if done, handled := s.handleSystemCommand(line); handled {
			if done {
				return
			}
			continue
		}

		if err := s.handleCommand(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) handleSystemCommand(line string) (done bool, handled bool) {
	switch line {
	case "exit", "quit":
		s.printLine("bye")
		return true, true
	case "help":
		s.printHelp()
		return false, true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return false, true
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return false, true
	}
	return false, false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|token|timeout")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8080")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 10s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "token":
		if len(parts) < 2 {
			s.printLine("usage: set token <access_token>")
			return
		}
		s.tokenState.AccessToken = parts[1]
		s.tokenState.UpdatedAt = time.Now()
		if err := state.Save(s.statePath, *s.tokenState); err != nil {
			s.printLine("save token failed: %v", err)
			return
		}
		s.printLine("token updated")
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "token":
		if s.tokenState.AccessToken == "" {
			s.printLine("token: <empty>")
			return
		}
		token := s.tokenState.AccessToken
		if len(token) > 12 {
			token = token[:6] + "..." + token[len(token)-4:]
		}
		if s.tokenState.Expired(time.Now()) {
			token += " (expired)"
		}
		s.printLine("token: %s", token)
	case "config":
		s.printLine("baseURL: %s", s.client.BaseURL())
		s.printLine("tokenStatePath: %s", s.statePath)
	default:
		s.printLine("usage: show token|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	cmd, params, err := parseLine(s.commands, line)
	if err != nil {
		return err
	}
	if cmd.RequiresAuth && s.tokenState.AccessToken == "" {
		return fmt.Errorf("%s %s requires a token, use: set token <access_token>", cmd.Service, cmd.Action)
	}

	applyFileShortcuts(params)
	if err := s.promptMissing(&cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return nil
}

// parseLine splits a shell-quoted line into a command and its key=value params.
func parseLine(commands map[string]command.Command, line string) (command.Command, command.Params, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return command.Command{}, nil, fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return command.Command{}, nil, fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	key := fmt.Sprintf("%s %s", tokens[0], tokens[1])
	cmd, ok := commands[key]
	if !ok {
		return command.Command{}, nil, fmt.Errorf("unknown command: %s", key)
	}
	params := command.Params{}
	for _, token := range tokens[2:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return command.Command{}, nil, fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}
	params.Canonicalize(cmd.Fields)
	return cmd, params, nil
}

func applyFileShortcuts(params command.Params) {
	if params.Get("source_file") != "" && params.Get("source_code") == "" {
		params.Set("source_code", command.FilePlaceholder)
	}
	if params.Get("cases_file") != "" && params.Get("test_cases") == "" {
		params.Set("test_cases", command.FilePlaceholder)
	}
}

func (s *Session) promptMissing(cmd *command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required {
			continue
		}
		if params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(label string) (string, error) {
	s.rl.SetPrompt(label + ": ")
	defer s.rl.SetPrompt(prompt)
	line, err := s.rl.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("%s", statusLine(resp))
	if len(resp.Body) == 0 {
		return
	}
	s.printLine("%s", formatBody(resp.Body, s.prettyJSON))
}

// statusLine summarizes a response, adding the API code and trace id when
// the body is an envelope.
func statusLine(resp httpclient.ResponseInfo) string {
	line := fmt.Sprintf("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	env := resp.Envelope
	if env == nil {
		return line
	}
	line += fmt.Sprintf(" code=%d", env.Code)
	if resp.Failed() && env.Message != "" {
		line += fmt.Sprintf(" message=%q", env.Message)
	}
	if env.TraceID != "" {
		line += " trace_id=" + env.TraceID
	}
	return line
}

func formatBody(body []byte, pretty bool) string {
	if pretty {
		var raw interface{}
		if err := json.Unmarshal(body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			return string(formatted)
		}
	}
	return string(body)
}

func completer(commands map[string]command.Command) *readline.PrefixCompleter {
	byService := map[string][]string{}
	for _, cmd := range commands {
		byService[cmd.Service] = append(byService[cmd.Service], cmd.Action)
	}
	services := make([]string, 0, len(byService))
	for service := range byService {
		services = append(services, service)
	}
	sort.Strings(services)

	items := make([]readline.PrefixCompleterInterface, 0, len(services)+4)
	for _, service := range services {
		actions := byService[service]
		sort.Strings(actions)
		children := make([]readline.PrefixCompleterInterface, 0, len(actions))
		for _, action := range actions {
			children = append(children, readline.PcItem(action))
		}
		items = append(items, readline.PcItem(service, children...))
	}
	items = append(items,
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("token")),
		readline.PcItem("show", readline.PcItem("token"), readline.PcItem("config")),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | set base|timeout|token | show token|config")
	s.printLine("examples:")
	s.printLine("  language list")
	s.printLine("  judge run language_id=python source_file=./solution.py cases_file=./cases.json")
	s.printLine("  submission create problem_id=1 language_id=cpp source_file=./main.cpp async=true")
	s.printLine("  submission get id=<submission_id>")
	s.printLine("  submission list problem_id=1 language_id=cpp")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
