package decider

import (
	"strconv"

	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const attrApproximateReceiveCount = "ApproximateReceiveCount"

// ReceiveCount parses the ApproximateReceiveCount attribute of a message.
// A missing or unparsable attribute counts as the first delivery, so the
// result is always at least 1.
func ReceiveCount(msg sqstypes.Message) int32 {
	attr, ok := msg.Attributes[attrApproximateReceiveCount]
	if !ok {
		return 1
	}

	count, err := strconv.ParseInt(attr, 10, 32)
	if err != nil || count < 1 {
		return 1
	}

	return int32(count)
}

// exceedsRetryLimit reports whether a message has been delivered too many
// times to stay in the pipeline. Messages at or over the limit are dropped
// without an action; dead-letter handling is the queue's responsibility.
func exceedsRetryLimit(msg sqstypes.Message, maxRetries int32) bool {
	return ReceiveCount(msg) >= maxRetries
}
