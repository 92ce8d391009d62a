package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "solbox"

// Topics builds the relay's MQTT topic names under a common prefix.
//
//	topics := mqtt.NewTopics("home/solar")
//	topics.Reading("temp_kollektor") // "home/solar/temp_kollektor"
//	topics.Status()                  // "home/solar/status"
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder. Surrounding slashes are trimmed and an
// empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Reading returns the topic a series' readings are published on.
//
// Example: solbox/temp_kollektor
func (t Topics) Reading(seriesKey string) string {
	return t.prefix + "/" + seriesKey
}

// Status returns the retained online/offline topic.
//
// Example: solbox/status
func (t Topics) Status() string {
	return t.prefix + "/status"
}
