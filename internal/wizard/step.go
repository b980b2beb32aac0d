package wizard

import "fmt"

// Checkout wizard state machine.
//
// Step is where the customer is in the flow. The flow is chosen once, when
// the session starts, from the presence of a fast-track label token:
//
// standard:   email ---> format ---> label ---> confirm ---> (completed)
//
// fast-track:            format ------------->  confirm ---> (completed)
//
// advance follows the arrows when the current step is complete, retreat
// walks them backwards without clearing anything, and only a successful
// commit at confirm reaches completed.
type Step int

const (
	NoStep Step = iota
	EmailStep
	FormatStep
	LabelStep
	ConfirmStep
	CompletedStep
)

func (s Step) String() string {
	return [...]string{"", "email", "format", "label", "confirm", "completed"}[s]
}

func ParseStep(s string) (Step, error) {
	for step := EmailStep; step <= CompletedStep; step++ {
		if step.String() == s {
			return step, nil
		}
	}
	return NoStep, fmt.Errorf("unknown step %q", s)
}

type Flow int

const (
	StandardFlow Flow = iota
	FastTrackFlow
)

func (f Flow) String() string {
	return [...]string{"standard", "fast_track"}[f]
}

func ParseFlow(s string) (Flow, error) {
	switch s {
	case "standard":
		return StandardFlow, nil
	case "fast_track":
		return FastTrackFlow, nil
	default:
		return StandardFlow, fmt.Errorf("unknown flow %q", s)
	}
}

type edges struct {
	next Step
	prev Step
}

var initialStep = map[Flow]Step{
	StandardFlow:  EmailStep,
	FastTrackFlow: FormatStep,
}

var transitions = map[Flow]map[Step]edges{
	StandardFlow: {
		EmailStep:   {next: FormatStep, prev: NoStep},
		FormatStep:  {next: LabelStep, prev: EmailStep},
		LabelStep:   {next: ConfirmStep, prev: FormatStep},
		ConfirmStep: {next: NoStep, prev: LabelStep},
	},
	FastTrackFlow: {
		FormatStep:  {next: ConfirmStep, prev: NoStep},
		ConfirmStep: {next: NoStep, prev: FormatStep},
	},
}

// Steps lists the flow's steps in order, excluding the completed marker.
func (f Flow) Steps() []Step {
	steps := make([]Step, 0, len(transitions[f]))
	for s := initialStep[f]; s != NoStep; s = transitions[f][s].next {
		steps = append(steps, s)
	}
	return steps
}

func (f Flow) Initial() Step {
	return initialStep[f]
}

func (f Flow) Contains(s Step) bool {
	_, ok := transitions[f][s]
	return ok || s == CompletedStep
}
