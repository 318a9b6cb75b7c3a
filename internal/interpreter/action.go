package interpreter

import (
	"strings"

	"github.com/v0xg/replaybot/internal/instruction"
)

// Kind enumerates the recognized action categories.
type Kind int

const (
	KindSkip Kind = iota
	KindNavigate
	KindFillInput
	KindFillTextarea
	KindClick
)

func (k Kind) String() string {
	switch k {
	case KindNavigate:
		return "navigate"
	case KindFillInput:
		return "fill input"
	case KindFillTextarea:
		return "fill textarea"
	case KindClick:
		return "click"
	default:
		return "skip"
	}
}

// Action is an instruction classified into a closed set of variants.
type Action struct {
	Kind        Kind
	Key         string // original relative key-path
	URL         string // navigate target
	Placeholder string // fill locator text
	Value       string // fill text, or the button name for clicks
}

// Classify parses an instruction's key-path into an Action. The first
// segment selects the category by case-sensitive prefix match. Fills act
// only when the second segment starts with "placeholder" and take the
// third segment as the placeholder text; anything else is a skip. Clicks
// target the button whose name equals the instruction value; qualifier
// segments after the category are not consulted for buttons.
func Classify(in instruction.Instruction) Action {
	segs := strings.Split(in.Key, ".")

	switch {
	case strings.HasPrefix(segs[0], "url"):
		return Action{Kind: KindNavigate, Key: in.Key, URL: in.Value}
	case strings.HasPrefix(segs[0], "input"):
		return classifyFill(KindFillInput, segs, in)
	case strings.HasPrefix(segs[0], "textarea"):
		return classifyFill(KindFillTextarea, segs, in)
	case strings.HasPrefix(segs[0], "button"):
		return Action{Kind: KindClick, Key: in.Key, Value: in.Value}
	default:
		return Action{Kind: KindSkip, Key: in.Key}
	}
}

func classifyFill(kind Kind, segs []string, in instruction.Instruction) Action {
	if len(segs) < 3 || !strings.HasPrefix(segs[1], "placeholder") {
		return Action{Kind: KindSkip, Key: in.Key}
	}
	return Action{Kind: kind, Key: in.Key, Placeholder: segs[2], Value: in.Value}
}

// Selector builds the page locator for the action, empty for navigates
// and skips.
func (a Action) Selector() string {
	switch a.Kind {
	case KindFillInput:
		return "input[placeholder='" + a.Placeholder + "']"
	case KindFillTextarea:
		return "textarea[placeholder='" + a.Placeholder + "']"
	case KindClick:
		return "button[name='" + a.Value + "']"
	default:
		return ""
	}
}

// Target is what the action acts on: the URL for navigates, the selector
// otherwise.
func (a Action) Target() string {
	if a.Kind == KindNavigate {
		return a.URL
	}
	return a.Selector()
}
