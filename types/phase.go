package types

import (
	"fmt"
	"strings"
)

type Phase uint8

const (
	Water Phase = iota
	Oil
	Gas
	NumPhases = 3
)

var PhaseNameMap = map[string]Phase{
	"water": Water,
	"wat":   Water,
	"oil":   Oil,
	"gas":   Gas,
}

func (p Phase) String() string {
	switch p {
	case Water:
		return "Water"
	case Oil:
		return "Oil"
	case Gas:
		return "Gas"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

func NewPhase(label string) (p Phase, err error) {
	var ok bool
	if p, ok = PhaseNameMap[strings.ToLower(strings.TrimSpace(label))]; !ok {
		err = fmt.Errorf("unknown phase %q", label)
	}
	return
}
