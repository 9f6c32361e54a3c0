package acme

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const manualDNSFlag = "--yes-I-know-dns-manual-mode-enough-go-ahead-please"

var (
	alreadyExistsMarkers = []string{
		"already have a cert",
		"domains not changed",
		"skip, next renewal time",
	}
	propagationPendingMarkers = []string{
		"incorrect txt record",
		"no txt record found",
		"dns problem: nxdomain looking up txt",
	}
)

// Runner executes one command and returns its combined output and exit code
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (output string, exitCode int, err error)
}

// ExecRunner runs commands with os/exec; the process is killed when ctx ends
type ExecRunner struct{}

// Run implements Runner
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := strings.TrimSpace(stdout.String() + "\n" + stderr.String())

	if ctx.Err() != nil {
		return output, -1, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, exitErr.ExitCode(), nil
	}
	if err != nil {
		return output, -1, err
	}
	return output, 0, nil
}

// ShellConfig configures the acme.sh adapter
type ShellConfig struct {
	Path    string        // acme.sh executable
	Server  string        // --server value, e.g. letsencrypt
	Timeout time.Duration // hard limit per invocation
}

// Shell implements Tool by invoking acme.sh
type Shell struct {
	config ShellConfig
	runner Runner
	logger *logrus.Entry
}

// NewShell creates an acme.sh adapter
func NewShell(config ShellConfig, runner Runner, logger *logrus.Entry) *Shell {
	if runner == nil {
		runner = ExecRunner{}
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	return &Shell{
		config: config,
		runner: runner,
		logger: logger.WithField("component", "acme-shell"),
	}
}

// Generate implements Tool
func (s *Shell) Generate(ctx context.Context, domains []string) Outcome {
	args := []string{"--issue", "--dns"}
	args = append(args, domainArgs(domains)...)
	args = append(args, s.serverArgs()...)
	args = append(args, manualDNSFlag)

	output, code, err := s.run(ctx, args)
	return classifyGenerate(output, code, err)
}

// Renew implements Tool
func (s *Shell) Renew(ctx context.Context, domains []string) Outcome {
	args := []string{"--renew"}
	args = append(args, domainArgs(domains)...)
	args = append(args, s.serverArgs()...)
	args = append(args, manualDNSFlag)

	output, code, err := s.run(ctx, args)
	return classifyRenew(output, code, err)
}

// Install implements Tool
func (s *Shell) Install(ctx context.Context, domain string, files Files) Outcome {
	if err := os.MkdirAll(files.Dir, 0o755); err != nil {
		return Outcome{Kind: KindFailure, Message: fmt.Sprintf("failed to create export dir: %v", err)}
	}

	args := []string{
		"--install-cert",
		"-d", domain,
		"--key-file", files.Key,
		"--fullchain-file", files.Fullchain,
		"--cert-file", files.Cert,
		"--ca-file", files.CA,
	}

	output, code, err := s.run(ctx, args)
	return classifyPlain(output, code, err)
}

// Remove implements Tool
func (s *Shell) Remove(ctx context.Context, domains []string) Outcome {
	if len(domains) == 0 {
		return Outcome{Kind: KindSuccess}
	}
	output, code, err := s.run(ctx, []string{"--remove", "-d", domains[0]})
	return classifyPlain(output, code, err)
}

func (s *Shell) serverArgs() []string {
	if s.config.Server == "" {
		return nil
	}
	return []string{"--server", s.config.Server}
}

func (s *Shell) run(ctx context.Context, args []string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	output, code, err := s.runner.Run(ctx, s.config.Path, args...)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("acme.sh timed out after %s", s.config.Timeout)
	}

	s.logger.WithFields(logrus.Fields{
		"args":     strings.Join(args, " "),
		"exitCode": code,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("acme.sh finished")

	return output, code, err
}

func domainArgs(domains []string) []string {
	args := make([]string, 0, len(domains)*2)
	for _, d := range domains {
		args = append(args, "-d", d)
	}
	return args
}

func classifyGenerate(output string, code int, err error) Outcome {
	if err != nil {
		return failure(output, err.Error())
	}
	if ch, ok := ExtractChallenge(output); ok {
		return Outcome{Kind: KindChallengeIssued, Host: ch.Host, Values: ch.Values, Output: output}
	}
	if containsAny(output, alreadyExistsMarkers) {
		return Outcome{Kind: KindAlreadyExists, Output: output}
	}
	if code == 0 {
		return failure(output, "no DNS challenge found in acme.sh output")
	}
	return failure(output, "")
}

func classifyRenew(output string, code int, err error) Outcome {
	if err != nil {
		return failure(output, err.Error())
	}
	if containsAny(output, propagationPendingMarkers) {
		return Outcome{Kind: KindPropagationPending, Output: output}
	}
	if code == 0 {
		if containsAny(output, alreadyExistsMarkers) {
			return Outcome{Kind: KindAlreadyExists, Output: output}
		}
		return Outcome{Kind: KindSuccess, Output: output}
	}
	if containsAny(output, alreadyExistsMarkers) {
		return Outcome{Kind: KindAlreadyExists, Output: output}
	}
	return failure(output, "")
}

func classifyPlain(output string, code int, err error) Outcome {
	if err != nil {
		return failure(output, err.Error())
	}
	if code == 0 {
		return Outcome{Kind: KindSuccess, Output: output}
	}
	return failure(output, "")
}

func failure(output, message string) Outcome {
	if message == "" {
		message = lastLine(output)
	}
	if message == "" {
		message = "acme.sh failed without output"
	}
	return Outcome{Kind: KindFailure, Message: truncate(message, 300), Output: output}
}

func containsAny(output string, markers []string) bool {
	lower := strings.ToLower(output)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
