package steps

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/cucumber/godog"

	"github.com/kubev2v/flowharness/internal/infra"
	"github.com/kubev2v/flowharness/pkg/wait"
)

func (s *steps) registerChecking(ctx *godog.ScenarioContext) {
	ctx.Step(`^the Minifi logs(?: of the "([^"]*)" MiNiFi)? contain the following message: "([^"]*)" in less than (.+)$`, s.logsContain)
	ctx.Step(`^the Minifi logs(?: of the "([^"]*)" MiNiFi)? contain the following message: "([^"]*)" (\d+) times after (.+)$`, s.logsContainTimes)
	ctx.Step(`^the Minifi logs(?: of the "([^"]*)" MiNiFi)? do not contain the following message: "([^"]*)" after (.+)$`, s.logsDoNotContain)
	ctx.Step(`^the Minifi logs(?: of the "([^"]*)" MiNiFi)? match the following regex: "([^"]*)" in less than (.+)$`, s.logsMatch)
	ctx.Step(`^a file with the content "([^"]*)" is placed in "([^"]*)" in less than (.+)$`, s.fileIsPlaced)
	ctx.Step(`^(\d+) files? (?:is|are) placed in "([^"]*)" in less than (.+)$`, s.filesArePlaced)
	ctx.Step(`^no files are placed in "([^"]*)" after (.+)$`, s.noFilesArePlaced)
	ctx.Step(`^the MiNiFi instance exits with code (\d+) in less than (.+)$`, s.minifiExits)
}

func (s *steps) logsContain(ctx context.Context, name, message, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	return waitForLogs(ctx, s.agentService(name), fmt.Sprintf("log contains %q", message), timeout, func(logs string) bool {
		return strings.Contains(logs, message)
	})
}

func (s *steps) logsContainTimes(ctx context.Context, name, message, times, after string) error {
	d, err := duration(after)
	if err != nil {
		return err
	}
	want, err := strconv.Atoi(times)
	if err != nil {
		return err
	}
	if err := sleep(ctx, d); err != nil {
		return err
	}
	logs, err := s.agentService(name).Logs(ctx)
	if err != nil {
		return err
	}
	if got := strings.Count(logs, message); got != want {
		return fmt.Errorf("expected %q %d times in the logs, found it %d times", message, want, got)
	}
	return nil
}

func (s *steps) logsDoNotContain(ctx context.Context, name, message, after string) error {
	d, err := duration(after)
	if err != nil {
		return err
	}
	if err := sleep(ctx, d); err != nil {
		return err
	}
	logs, err := s.agentService(name).Logs(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(logs, message) {
		return fmt.Errorf("unexpected message %q in the logs", message)
	}
	return nil
}

func (s *steps) logsMatch(ctx context.Context, name, pattern, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid log pattern %q: %w", pattern, err)
	}
	return waitForLogs(ctx, s.agentService(name), fmt.Sprintf("log matches %q", pattern), timeout, re.MatchString)
}

func (s *steps) fileIsPlaced(ctx context.Context, content, dir, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	want := unescapeNewlines(content)
	m := s.minifi("")
	return m.WaitFor(ctx, fmt.Sprintf("file with %q in %s", want, dir), timeout, func(ctx context.Context) (bool, error) {
		contents, err := m.FileContents(ctx, dir)
		if err != nil {
			return false, err
		}
		return slices.Contains(contents, want), nil
	})
}

func (s *steps) filesArePlaced(ctx context.Context, count, dir, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	want, err := strconv.Atoi(count)
	if err != nil {
		return err
	}
	m := s.minifi("")
	return m.WaitFor(ctx, fmt.Sprintf("%d files in %s", want, dir), timeout, func(ctx context.Context) (bool, error) {
		names, err := m.ListFiles(ctx, dir)
		if err != nil {
			return false, err
		}
		return len(names) == want, nil
	})
}

func (s *steps) noFilesArePlaced(ctx context.Context, dir, after string) error {
	d, err := duration(after)
	if err != nil {
		return err
	}
	if err := sleep(ctx, d); err != nil {
		return err
	}
	names, err := s.minifi("").ListFiles(ctx, dir)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return fmt.Errorf("expected no files in %s, found %v", dir, names)
	}
	return nil
}

func (s *steps) minifiExits(ctx context.Context, code, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	want, err := strconv.Atoi(code)
	if err != nil {
		return err
	}
	m := s.minifi(infra.DefaultMinifiName)
	return wait.ForCondition(ctx, timeout, func(ctx context.Context) (bool, error) {
		got, exited := m.ExitCode(ctx)
		if !exited {
			return false, nil
		}
		if got != want {
			return false, fmt.Errorf("%s exited with code %d", m.Name(), got)
		}
		return true, nil
	}, wait.WithName(fmt.Sprintf("%s exits with code %d", m.Name(), want)))
}
