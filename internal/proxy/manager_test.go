package proxy

import "testing"

func TestStrategiesOrderProxiesThenDirect(t *testing.T) {
	m := NewManager([]string{"https://a.test/raw?url={url}", " ", "https://b.test/?"}, nil)
	s := m.Strategies()
	if len(s) != 3 {
		t.Fatalf("expected 3 strategies, got %d", len(s))
	}
	if s[0].Name != "proxy:a.test" || s[1].Name != "proxy:b.test" {
		t.Fatalf("unexpected names %q %q", s[0].Name, s[1].Name)
	}
	if !s[2].Direct() || s[2].Name != "direct" {
		t.Fatalf("last strategy should be direct, got %+v", s[2])
	}
}

func TestStrategyTarget(t *testing.T) {
	page := "https://shop.test/p?id=1&x=2"
	tests := []struct {
		s    Strategy
		want string
	}{
		{Strategy{Template: "https://a.test/raw?url={url}"}, "https://a.test/raw?url=https%3A%2F%2Fshop.test%2Fp%3Fid%3D1%26x%3D2"},
		{Strategy{Template: "https://b.test/?"}, "https://b.test/?https%3A%2F%2Fshop.test%2Fp%3Fid%3D1%26x%3D2"},
		{Strategy{}, page},
	}
	for _, tt := range tests {
		if got := tt.s.Target(page); got != tt.want {
			t.Errorf("Target(%q) = %q, want %q", tt.s.Template, got, tt.want)
		}
	}
}

func TestGetUserAgent(t *testing.T) {
	if ua := NewManager(nil, nil).GetUserAgent(); ua != "" {
		t.Fatalf("expected empty user agent, got %q", ua)
	}
	m := NewManager(nil, []string{"ua-1", "ua-2"})
	for i := 0; i < 10; i++ {
		if ua := m.GetUserAgent(); ua != "ua-1" && ua != "ua-2" {
			t.Fatalf("unexpected user agent %q", ua)
		}
	}
}
