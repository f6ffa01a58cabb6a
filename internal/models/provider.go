package models

type ProviderDomain struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type ProviderWebhook struct {
	Event string   `json:"event"`
	URLs  []string `json:"urls"`
}

// HasURL reports whether url is already one of the webhook targets.
func (w *ProviderWebhook) HasURL(url string) bool {
	for _, u := range w.URLs {
		if u == url {
			return true
		}
	}
	return false
}

type ProviderRoute struct {
	ID          string   `json:"id"`
	Priority    int      `json:"priority"`
	Description string   `json:"description"`
	Expression  string   `json:"expression"`
	Actions     []string `json:"actions"`
}
