package steps

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/cucumber/godog"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/kubev2v/flowharness/internal/infra"
)

const randomContentAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func (s *steps) registerCore(ctx *godog.ScenarioContext) {
	ctx.Step(`^(?:both|all) instances start up$`, s.allInstancesStartUp)
	ctx.Step(`^the MiNiFi instance starts up$`, s.minifiStartsUp)
	ctx.Step(`^the "([^"]*)" MiNiFi instance starts up$`, s.namedMinifiStartsUp)
	ctx.Step(`^a directory at "([^"]*)" has a file with the size "([^"]*)"$`, s.directoryHasFileWithSize)
	ctx.Step(`^a file with filename "([^"]*)" and content "([^"]*)" is present in "([^"]*)"$`, s.fileIsPresent)
	ctx.Step(`^a file with the content "([^"]*)" is present in "([^"]*)"$`, s.fileWithContentIsPresent)
	ctx.Step(`^a host resource file "([^"]*)" is bound to the "([^"]*)" path in the MiNiFi container(?: "([^"]*)")?$`, s.hostResourceFileIsBound)
}

func (s *steps) allInstancesStartUp(ctx context.Context) error {
	return s.sc.DeployAll(ctx)
}

func (s *steps) minifiStartsUp(ctx context.Context) error {
	return s.sc.Deploy(ctx, s.defaultService())
}

func (s *steps) namedMinifiStartsUp(ctx context.Context, name string) error {
	return s.sc.Deploy(ctx, s.agentService(name))
}

func (s *steps) directoryHasFileWithSize(dir, size string) error {
	n, err := humanize.ParseBytes(size)
	if err != nil {
		return err
	}
	s.minifi("").AddDirectory(dir, map[string]string{"input.txt": randomContent(int(n))})
	return nil
}

func randomContent(n int) string {
	var b strings.Builder
	b.Grow(n)
	for range n {
		b.WriteByte(randomContentAlphabet[rand.IntN(len(randomContentAlphabet))])
	}
	return b.String()
}

// unescapeNewlines turns the two character sequence \n of a step text into a newline.
func unescapeNewlines(text string) string {
	return strings.ReplaceAll(text, `\n`, "\n")
}

func (s *steps) fileIsPresent(name, content, dir string) error {
	s.minifi("").AddFile(dir, name, unescapeNewlines(content))
	return nil
}

func (s *steps) fileWithContentIsPresent(content, dir string) error {
	return s.fileIsPresent(uuid.NewString(), content, dir)
}

func (s *steps) hostResourceFileIsBound(file, containerPath, containerName string) error {
	if containerName == "" {
		containerName = infra.DefaultMinifiName
	}
	s.minifi(containerName).AddHostFile(s.sc.Resource(file), containerPath)
	return nil
}
