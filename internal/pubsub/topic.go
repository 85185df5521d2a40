package pubsub

import (
	"context"
	"sync"

	"github.com/bahsim/catalog-import-service/pkg/logger"
)

// Attributes carries message attributes used for subscription filtering.
// Values are strings or float64 numbers.
type Attributes map[string]interface{}

// Publisher is the publish half of a topic, the only part the pipeline
// components depend on.
type Publisher interface {
	Publish(ctx context.Context, message string, attrs Attributes) error
}

// NumericRange matches a numeric attribute within [Min, Max]; a nil bound
// is open.
type NumericRange struct {
	Min *float64
	Max *float64
}

// Condition filters one attribute. Equals matches string attributes
// against any listed value; Numeric matches number attributes against a
// range. A zero Condition only requires the attribute to be present.
type Condition struct {
	Equals  []string
	Numeric *NumericRange
}

// FilterPolicy maps attribute names to conditions. A message is delivered
// to a subscription only when every condition is satisfied.
type FilterPolicy map[string]Condition

// Subscriber receives matching messages. Errors are a subscriber concern;
// delivery is fire-and-forget from the publisher's point of view.
type Subscriber func(ctx context.Context, message string, attrs Attributes) error

type subscription struct {
	policy FilterPolicy
	fn     Subscriber
}

// Topic is an in-process fan-out topic with attribute-based subscription
// filtering.
type Topic struct {
	name   string
	logger *logger.Logger
	mu     sync.RWMutex
	subs   []subscription
}

func NewTopic(name string, log *logger.Logger) *Topic {
	return &Topic{
		name:   name,
		logger: log,
	}
}

// Subscribe registers a subscriber. A nil policy receives every message.
func (t *Topic) Subscribe(policy FilterPolicy, fn Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, subscription{policy: policy, fn: fn})
}

func (t *Topic) Publish(ctx context.Context, message string, attrs Attributes) error {
	t.mu.RLock()
	subs := make([]subscription, len(t.subs))
	copy(subs, t.subs)
	t.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if !matches(sub.policy, attrs) {
			continue
		}
		delivered++

		if err := sub.fn(ctx, message, attrs); err != nil {
			// Subscriber failures stay on the subscriber side.
			t.logger.Error(ctx, "Topic subscriber failed",
				"topic", t.name,
				"error", err,
			)
		}
	}

	t.logger.Debug(ctx, "Message published",
		"topic", t.name,
		"subscribers_matched", delivered,
	)

	return nil
}

func matches(policy FilterPolicy, attrs Attributes) bool {
	for name, cond := range policy {
		value, ok := attrs[name]
		if !ok {
			return false
		}

		if len(cond.Equals) > 0 {
			s, ok := value.(string)
			if !ok || !containsString(cond.Equals, s) {
				return false
			}
		}

		if cond.Numeric != nil {
			n, ok := value.(float64)
			if !ok {
				return false
			}
			if cond.Numeric.Min != nil && n < *cond.Numeric.Min {
				return false
			}
			if cond.Numeric.Max != nil && n > *cond.Numeric.Max {
				return false
			}
		}
	}

	return true
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
