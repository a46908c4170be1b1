package domain

// Notice is a one-off message for the admin UI, such as a permission warning.
type Notice struct {
	Key     string `json:"key"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Notices collects notices for one response, showing each key once.
type Notices struct {
	seen  map[string]bool
	items []Notice
}

// Add records n unless a notice with the same key was already added.
func (ns *Notices) Add(n Notice) bool {
	if ns.seen == nil {
		ns.seen = make(map[string]bool)
	}
	if ns.seen[n.Key] {
		return false
	}
	ns.seen[n.Key] = true
	ns.items = append(ns.items, n)
	return true
}

func (ns *Notices) List() []Notice {
	if ns == nil || len(ns.items) == 0 {
		return []Notice{}
	}
	return append([]Notice(nil), ns.items...)
}
