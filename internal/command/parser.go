package command

import (
	"regexp"
	"strconv"
	"strings"
)

// Operator chat commands. A duration argument is [HH:]MM:SS; ?setbasetime
// takes plain seconds. Anything that doesn't match yields no command and no
// error back to the room.

var (
	startRe       = regexp.MustCompile(`^\?start ((\d+:)?\d{2}:\d{2})`)
	forceTimerRe  = regexp.MustCompile(`^\?forcetimer ((\d+:)?\d{2}:\d{2})`)
	setBaseTimeRe = regexp.MustCompile(`^\?setbasetime (\d+)`)
)

// Command is the closed set of recognized operator commands.
type Command interface {
	command()
}

// Start begins the countdown with the given initial duration.
type Start struct {
	Seconds int
}

// ForceTimer overrides the remaining duration.
type ForceTimer struct {
	Seconds int
}

// SetBaseTime changes the baseline seconds granted per tier-1 sub.
type SetBaseTime struct {
	Seconds int
}

func (Start) command()       {}
func (ForceTimer) command()  {}
func (SetBaseTime) command() {}

// Parse recognizes an operator command in a chat line. Returns nil when the
// text is not a well-formed command.
func Parse(text string) Command {
	if m := startRe.FindStringSubmatch(text); m != nil {
		return Start{Seconds: clockSeconds(m[1])}
	}
	if m := forceTimerRe.FindStringSubmatch(text); m != nil {
		return ForceTimer{Seconds: clockSeconds(m[1])}
	}
	if m := setBaseTimeRe.FindStringSubmatch(text); m != nil {
		seconds, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		return SetBaseTime{Seconds: seconds}
	}
	return nil
}

// clockSeconds converts a matched MM:SS or HH:MM:SS string to seconds. The
// regexes guarantee the shape, so parse errors cannot occur here.
func clockSeconds(s string) int {
	fields := strings.Split(s, ":")
	if len(fields) == 3 {
		hours, _ := strconv.Atoi(fields[0])
		minutes, _ := strconv.Atoi(fields[1])
		seconds, _ := strconv.Atoi(fields[2])
		return ((hours*60)+minutes)*60 + seconds
	}
	minutes, _ := strconv.Atoi(fields[0])
	seconds, _ := strconv.Atoi(fields[1])
	return minutes*60 + seconds
}
