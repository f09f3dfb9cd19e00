package decider

import (
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// ActionType discriminates the closed set of decisions the pipeline can
// attach to a message.
type ActionType int

const (
	// ActionAcknowledge removes the message from the queue.
	ActionAcknowledge ActionType = iota
	// ActionRequeue reschedules the message for redelivery after a delay.
	ActionRequeue
)

// Action is the decision attached to a single message: acknowledge it or
// requeue it with a delay.
type Action struct {
	Type ActionType
	// DelaySeconds is the redelivery delay for ActionRequeue. It is always
	// zero for ActionAcknowledge.
	DelaySeconds int32
}

// Acknowledge returns the action that removes the message from the queue.
func Acknowledge() Action {
	return Action{Type: ActionAcknowledge}
}

// RequeueWithDelay returns the action that makes the message visible again
// after the given number of seconds. Negative delays are clamped to zero.
func RequeueWithDelay(seconds int32) Action {
	if seconds < 0 {
		seconds = 0
	}

	return Action{Type: ActionRequeue, DelaySeconds: seconds}
}

// Decision pairs a computed action with the original, unmodified message
// it was derived from.
type Decision struct {
	Message sqstypes.Message
	Action  Action
}

// Outcome is the handler's report for a successfully processed message.
// A plain Success leaves the action to the pipeline's policy; an
// ExplicitAction vetoes the automatic acknowledgment and is passed through
// unchanged.
type Outcome struct {
	override *Action
}

// Success reports plain success; the configured policy picks the action.
func Success() Outcome {
	return Outcome{}
}

// ExplicitAction reports success together with the action to emit, e.g.
// RequeueWithDelay to postpone a message that was handled but is not ready
// to be acknowledged yet.
func ExplicitAction(a Action) Outcome {
	return Outcome{override: &a}
}

// Override returns the explicit action and whether one was set.
func (o Outcome) Override() (Action, bool) {
	if o.override == nil {
		return Action{}, false
	}

	return *o.override, true
}
