package proxy

import (
	"math/rand"
	"net/url"
	"strings"
	"sync"
)

const urlPlaceholder = "{url}"

// Strategy is one way of reaching a page: through a proxy endpoint or directly.
type Strategy struct {
	Name     string
	Template string // empty for a direct request
}

// Target returns the URL to request for rawURL under this strategy.
func (s Strategy) Target(rawURL string) string {
	if s.Template == "" {
		return rawURL
	}
	escaped := url.QueryEscape(rawURL)
	if strings.Contains(s.Template, urlPlaceholder) {
		return strings.ReplaceAll(s.Template, urlPlaceholder, escaped)
	}
	return s.Template + escaped
}

// Direct reports whether the strategy hits the origin without a proxy.
func (s Strategy) Direct() bool { return s.Template == "" }

// Manager hands out fetch strategies and rotates user agents.
type Manager struct {
	strategies []Strategy
	userAgents []string
	mu         sync.Mutex
	rnd        *rand.Rand
}

// NewManager builds the ordered strategy list: every proxy template, then direct.
func NewManager(templates, userAgents []string) *Manager {
	m := &Manager{userAgents: userAgents, rnd: rand.New(rand.NewSource(rand.Int63()))}
	for _, t := range templates {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		m.strategies = append(m.strategies, Strategy{Name: "proxy:" + hostOf(t), Template: t})
	}
	m.strategies = append(m.strategies, Strategy{Name: "direct"})
	return m
}

// Strategies returns a copy of the ordered strategy list.
func (m *Manager) Strategies() []Strategy {
	return append([]Strategy(nil), m.strategies...)
}

// GetUserAgent returns a random user agent string.
func (m *Manager) GetUserAgent() string {
	if len(m.userAgents) == 0 {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userAgents[m.rnd.Intn(len(m.userAgents))]
}

func hostOf(template string) string {
	u, err := url.Parse(strings.ReplaceAll(template, urlPlaceholder, ""))
	if err != nil || u.Host == "" {
		return template
	}
	return u.Host
}
