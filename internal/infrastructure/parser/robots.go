package parser

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// robotsPolicy caches one robots.txt group per host. A robots file that
// cannot be fetched or parsed allows everything.
type robotsPolicy struct {
	client    *http.Client
	userAgent string
	agent     string

	mu     sync.Mutex
	groups map[string]*robotstxt.Group
}

func newRobotsPolicy(client *http.Client, userAgent, agent string) *robotsPolicy {
	return &robotsPolicy{
		client:    client,
		userAgent: userAgent,
		agent:     agent,
		groups:    map[string]*robotstxt.Group{},
	}
}

// Allowed reports whether the page path may be fetched.
func (p *robotsPolicy) Allowed(ctx context.Context, page *url.URL) bool {
	group := p.group(ctx, page)
	if group == nil {
		return true
	}
	path := page.EscapedPath()
	if page.RawQuery != "" {
		path += "?" + page.RawQuery
	}
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (p *robotsPolicy) group(ctx context.Context, page *url.URL) *robotstxt.Group {
	host := page.Scheme + "://" + page.Host

	p.mu.Lock()
	group, ok := p.groups[host]
	p.mu.Unlock()
	if ok {
		return group
	}

	group = p.load(ctx, host)

	p.mu.Lock()
	p.groups[host] = group
	p.mu.Unlock()
	return group
}

func (p *robotsPolicy) load(ctx context.Context, host string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data.FindGroup(p.agent)
}
