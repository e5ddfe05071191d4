// Package convstate tracks what a conversation is about: topic
// categories, stated user preferences, and salient keywords. The state
// survives restarts through a SQLite-backed store.
package convstate

import (
	"sort"
	"strings"
)

// topicKeywords maps a topic category to the words that signal it.
var topicKeywords = map[string][]string{
	"file_management": {"file", "folder", "directory", "document", "save", "delete", "copy", "move", "rename"},
	"applications":    {"app", "application", "program", "launch", "open", "close", "quit", "software"},
	"system":          {"system", "cpu", "memory", "disk", "battery", "performance", "process", "usage"},
	"network":         {"network", "wifi", "internet", "connection", "ethernet", "online", "offline"},
	"time":            {"time", "date", "clock", "calendar", "schedule", "reminder", "alarm"},
	"email":           {"email", "mail", "inbox", "message", "send", "reply", "compose"},
	"web_search":      {"search", "google", "lookup", "find", "web", "browse", "website"},
	"coding":          {"code", "programming", "debug", "script", "function", "compile", "repository"},
	"music":           {"music", "song", "play", "playlist", "volume", "audio", "artist"},
	"video":           {"video", "movie", "watch", "stream", "youtube", "screen"},
}

var stopWords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {}, "will": {},
	"your": {}, "what": {}, "when": {}, "where": {}, "which": {}, "about": {},
	"would": {}, "could": {}, "should": {}, "there": {}, "their": {}, "them": {},
	"then": {}, "than": {}, "some": {}, "just": {}, "like": {}, "please": {},
	"want": {}, "need": {}, "make": {}, "take": {}, "know": {}, "think": {},
}

// DetectTopics returns the topic categories whose keywords appear in
// the text, most-hits first.
func DetectTopics(text string) []string {
	words := tokenize(text)
	if len(words) == 0 {
		return nil
	}
	present := make(map[string]struct{}, len(words))
	for _, w := range words {
		present[w] = struct{}{}
	}

	hits := make(map[string]int)
	for topic, keywords := range topicKeywords {
		for _, kw := range keywords {
			if _, ok := present[kw]; ok {
				hits[topic]++
			}
		}
	}

	topics := make([]string, 0, len(hits))
	for t := range hits {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		if hits[topics[i]] != hits[topics[j]] {
			return hits[topics[i]] > hits[topics[j]]
		}
		return topics[i] < topics[j]
	})
	return topics
}

// ExtractPreferences finds explicitly stated preferences in the text.
// Later statements win over earlier ones.
func ExtractPreferences(text string) map[string]string {
	lower := strings.ToLower(text)
	prefs := make(map[string]string)

	if strings.Contains(lower, "theme") || strings.Contains(lower, "mode") {
		if strings.Contains(lower, "dark") {
			prefs["theme"] = "dark"
		} else if strings.Contains(lower, "light") {
			prefs["theme"] = "light"
		}
	}
	if strings.Contains(lower, "notification") {
		if strings.Contains(lower, "quiet") || strings.Contains(lower, "silent") || strings.Contains(lower, "mute") {
			prefs["notifications"] = "quiet"
		} else if strings.Contains(lower, "loud") || strings.Contains(lower, "enable") {
			prefs["notifications"] = "loud"
		}
	}
	if strings.Contains(lower, "speak slower") || strings.Contains(lower, "talk slower") {
		prefs["speech_rate"] = "slow"
	} else if strings.Contains(lower, "speak faster") || strings.Contains(lower, "talk faster") {
		prefs["speech_rate"] = "fast"
	}
	if len(prefs) == 0 {
		return nil
	}
	return prefs
}

// ExtractKeywords returns the salient words of the text: longer than
// three characters and not a stop word, in order of first appearance.
func ExtractKeywords(text string) []string {
	var keywords []string
	seen := make(map[string]struct{})
	for _, w := range tokenize(text) {
		if len(w) <= 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
	}
	return keywords
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}
