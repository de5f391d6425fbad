package classify

import "strings"

type keywordRule struct {
	label    string
	keywords []string
	// browserOnly rules only apply to titles that mention a browser
	browserOnly bool
}

const keywordConfidence = 0.25

var browserKeywords = []string{"firefox", "chrome", "chromium", "edge", "safari", "brave"}

var keywordRules = []keywordRule{
	{label: "Email", keywords: []string{"gmail", "mail", "inbox", "outlook", "thunderbird"}},
	{label: "Documents", keywords: []string{"google docs", "document", "docs", "notion"}, browserOnly: true},
	{label: "Scheduling", keywords: []string{"calendar"}},
	{label: "Video", keywords: []string{"youtube", "video", "netflix", "vimeo"}},
	{label: "Chat", keywords: []string{"chat", "slack", "discord", "telegram", "whatsapp"}},
	{label: "Meeting", keywords: []string{"meeting", "zoom", "teams", "meet -", "webex"}},
	{label: "Terminal", keywords: []string{"terminal", "console", "bash", "zsh", "alacritty", "kitty", "tmux"}},
	{label: "Programming", keywords: []string{"code", "vscode", "intellij", "goland", "vim", "emacs", "github"}},
	{label: "Office", keywords: []string{"libreoffice", "calc", "writer", "excel", "word", "powerpoint", "sheets"}},
	{label: "Graphics", keywords: []string{"gimp", "photoshop", "illustrator", "inkscape", "figma", "krita"}},
}

const browsingLabel = "Browsing"

// keywordLabels returns the labels of every rule matching one of titles, in
// rule order. A browser title matching no rule is labelled as browsing.
func keywordLabels(titles []string) []string {
	var labels []string

	seen := make(map[string]bool)

	for _, title := range titles {
		t := strings.ToLower(title)
		browser := containsAny(t, browserKeywords)
		matched := false

		for _, rule := range keywordRules {
			if rule.browserOnly && !browser {
				continue
			}

			if !containsAny(t, rule.keywords) {
				continue
			}

			matched = true

			if !seen[rule.label] {
				seen[rule.label] = true
				labels = append(labels, rule.label)
			}
		}

		if browser && !matched && !seen[browsingLabel] {
			seen[browsingLabel] = true
			labels = append(labels, browsingLabel)
		}
	}

	return labels
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}

	return false
}
