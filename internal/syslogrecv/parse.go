package syslogrecv

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/leodido/go-syslog/v4/rfc3164"
	"github.com/leodido/go-syslog/v4/rfc5424"
)

// priRe extracts the PRI value from the start of a frame: "<PRI>rest".
var priRe = regexp.MustCompile(`^<(\d{1,3})>(\d)?`)

// topicSplitRe matches the "topic, body" convention described in §6:
// a lowercase comma-separated prefix followed by whitespace.
var topicSplitRe = regexp.MustCompile(`^([a-z,]+)\s`)

// knownTopics is the device-specific topic vocabulary §6 requires at
// least one comma-part to match before a message is split.
var knownTopics = map[string]struct{}{
	"system": {}, "interface": {}, "firewall": {}, "dhcp": {}, "wireless": {},
	"routing": {}, "ppp": {}, "script": {}, "manager": {}, "critical": {}, "error": {},
}

// Frame is one parsed syslog datagram (§6 wire protocol).
type Frame struct {
	Facility  int
	Severity  int
	Host      string
	Topic     string
	Body      string
	Timestamp time.Time
}

var rfc3164Parser = rfc3164.NewParser(rfc3164.WithBestEffort())
var rfc5424Parser = rfc5424.NewParser(rfc5424.WithBestEffort())

// ParseFrame decodes one UDP datagram. It auto-detects RFC 5424 by the
// version digit immediately after PRI, falling back to RFC 3164, and
// falls further back to a PRI-only parse if both structured parsers
// fail. The facility/severity split (facility·8 + severity) always
// comes from the PRI itself, per §6.
func ParseFrame(data []byte, now time.Time) Frame {
	m := priRe.FindSubmatch(data)
	frame := Frame{Timestamp: now}
	if m == nil {
		frame.Body = splitTopic(&frame, string(data))
		return frame
	}

	pri, _ := strconv.Atoi(string(m[1]))
	frame.Facility = pri / 8
	frame.Severity = pri % 8

	isRFC5424 := len(m) > 2 && len(m[2]) > 0

	if isRFC5424 {
		if msg, err := rfc5424Parser.Parse(data); err == nil {
			if sm, ok := msg.(*rfc5424.SyslogMessage); ok {
				applyRFC5424(&frame, sm)
				return frame
			}
		}
	} else {
		if msg, err := rfc3164Parser.Parse(data); err == nil {
			if sm, ok := msg.(*rfc3164.SyslogMessage); ok {
				applyRFC3164(&frame, sm)
				return frame
			}
		}
	}

	frame.Body = splitTopic(&frame, string(data[len(m[0]):]))
	return frame
}

func applyRFC3164(frame *Frame, sm *rfc3164.SyslogMessage) {
	if sm.Hostname != nil {
		frame.Host = *sm.Hostname
	}
	if sm.Timestamp != nil {
		frame.Timestamp = *sm.Timestamp
	}
	body := ""
	if sm.Message != nil {
		body = *sm.Message
	}
	frame.Body = splitTopic(frame, body)
}

func applyRFC5424(frame *Frame, sm *rfc5424.SyslogMessage) {
	if sm.Hostname != nil {
		frame.Host = *sm.Hostname
	}
	if sm.Timestamp != nil {
		frame.Timestamp = *sm.Timestamp
	}
	body := ""
	if sm.Message != nil {
		body = *sm.Message
	}
	frame.Body = splitTopic(frame, body)
}

// splitTopic implements §6's "topic/message split": if the prefix
// matches the comma-separated lowercase pattern and at least one part
// is a known topic word, split into topic/body; else topic=unknown.
func splitTopic(frame *Frame, message string) string {
	m := topicSplitRe.FindStringSubmatch(message)
	if m == nil {
		frame.Topic = "unknown"
		return message
	}

	parts := strings.Split(m[1], ",")
	matched := false
	for _, p := range parts {
		if _, ok := knownTopics[p]; ok {
			matched = true
			break
		}
	}
	if !matched {
		frame.Topic = "unknown"
		return message
	}

	frame.Topic = strings.TrimRight(m[1], ",")
	return strings.TrimPrefix(message, m[0])
}
