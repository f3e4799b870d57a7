package twitch

import (
	"errors"
	"strings"
)

// Line is one parsed IRC message: @tags :prefix COMMAND params :trailing.
type Line struct {
	Tags    map[string]string
	Prefix  string
	Command string
	Params  []string
}

var errEmptyLine = errors.New("empty irc line")

// ParseLine parses a single raw IRC line (IRCv3 message-tags dialect used by
// Twitch). The trailing parameter joins Params without its leading colon.
func ParseLine(raw string) (Line, error) {
	raw = strings.TrimRight(raw, "\r\n")
	if raw == "" {
		return Line{}, errEmptyLine
	}

	var line Line

	if strings.HasPrefix(raw, "@") {
		cut, rest, ok := splitSpace(raw[1:])
		if !ok {
			return Line{}, errors.New("irc line has tags but no command")
		}
		line.Tags = parseTags(cut)
		raw = rest
	}

	if strings.HasPrefix(raw, ":") {
		cut, rest, ok := splitSpace(raw[1:])
		if !ok {
			return Line{}, errors.New("irc line has prefix but no command")
		}
		line.Prefix = cut
		raw = rest
	}

	for raw != "" {
		if strings.HasPrefix(raw, ":") {
			line.Params = append(line.Params, raw[1:])
			break
		}
		cut, rest, _ := splitSpace(raw)
		if line.Command == "" {
			line.Command = strings.ToUpper(cut)
		} else {
			line.Params = append(line.Params, cut)
		}
		raw = rest
	}

	if line.Command == "" {
		return Line{}, errors.New("irc line has no command")
	}
	return line, nil
}

// Nick extracts the sender nick from a nick!user@host prefix.
func (l Line) Nick() string {
	if i := strings.IndexByte(l.Prefix, '!'); i >= 0 {
		return l.Prefix[:i]
	}
	return l.Prefix
}

// DisplayName prefers the display-name tag over the prefix nick.
func (l Line) DisplayName() string {
	if name := l.Tags["display-name"]; name != "" {
		return name
	}
	return l.Nick()
}

// Trailing returns the last parameter, the message text for PRIVMSG.
func (l Line) Trailing() string {
	if len(l.Params) == 0 {
		return ""
	}
	return l.Params[len(l.Params)-1]
}

func parseTags(s string) map[string]string {
	tags := make(map[string]string)
	for _, pair := range strings.Split(s, ";") {
		key, value, _ := strings.Cut(pair, "=")
		tags[key] = unescapeTag(value)
	}
	return tags
}

// unescapeTag reverses the IRCv3 tag value escaping.
func unescapeTag(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func splitSpace(s string) (head, rest string, found bool) {
	head, rest, found = strings.Cut(s, " ")
	return head, strings.TrimLeft(rest, " "), found
}
