package agent

import (
	"fmt"
	"strings"
)

// Project is the packaged result of a run.
type Project struct {
	Reply string     `json:"reply"`
	Files []CodeFile `json:"code"`
}

// AssembleProject re-normalizes every path with g (nil means DefaultGuesser),
// drops empty entries and strips a fence wrapped around a whole body. It
// makes no model call. Pass the coder's guesser so paths it already placed
// stay put.
func AssembleProject(name string, files []CodeFile, g DirectoryGuesser) Project {
	out := make([]CodeFile, 0, len(files))
	for _, f := range files {
		path := NormalizePathWith(f.Path, g)
		content := unwrapFence(f.Content)
		if path == "" || content == "" {
			continue
		}
		out = append(out, CodeFile{Path: path, Content: content})
	}
	return Project{
		Reply: fmt.Sprintf("Created project structure for %s with %d files", name, len(out)),
		Files: out,
	}
}

// unwrapFence removes an opening ```lang line and a closing ``` when they
// wrap the whole body.
func unwrapFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, Fence) || !strings.HasSuffix(s, Fence) || len(s) < 2*len(Fence) {
		return s
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, Fence), Fence)
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 && !strings.ContainsAny(inner[:nl], " \t") {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}
