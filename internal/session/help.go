package session

import "regexp"

var (
	helpCall     = regexp.MustCompile(`(help\("?([\w\d.]+)"?\))\s*;?\s?`)
	questionHelp = regexp.MustCompile(`^\s*\?\s*([\w\d.]+)\s*$`)
)

// parseHelp finds a help request in a script. It returns the topic and the
// script with the help call removed.
func parseHelp(script string) (topic, rest string, ok bool) {
	if m := questionHelp.FindStringSubmatch(script); m != nil {
		return m[1], "", true
	}
	loc := helpCall.FindStringSubmatchIndex(script)
	if loc == nil {
		return "", script, false
	}
	topic = script[loc[4]:loc[5]]
	rest = script[:loc[0]] + script[loc[1]:]
	return topic, rest, true
}
