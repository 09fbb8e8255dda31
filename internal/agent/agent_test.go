package agent

import (
	"context"
	"sync"
)

// scriptedClient replies with replies in order, repeating the last one.
type scriptedClient struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []string
}

func script(replies ...string) *scriptedClient {
	return &scriptedClient{replies: replies}
}

func (c *scriptedClient) Infer(_ context.Context, p string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, p)
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "", nil
	}
	r := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	return r, nil
}

func (c *scriptedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}
