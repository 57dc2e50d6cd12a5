package domain

// Outcome is a payment result reported by the processor, through either the
// webhook or the buyer's return confirmation.
type Outcome string

const (
	OutcomePaid     Outcome = "paid"
	OutcomeFailed   Outcome = "failed"
	OutcomeRefunded Outcome = "refunded"
)

// Decision describes what applying an outcome to an order amounts to.
type Decision string

const (
	// DecisionApply means the order must move to the returned StatusChange.
	DecisionApply Decision = "applied"
	// DecisionNoop means the order already reflects the outcome.
	DecisionNoop Decision = "noop"
	// DecisionDiscard means the outcome conflicts with a state that must not be
	// overwritten, such as a failure arriving after a recorded payment.
	DecisionDiscard Decision = "discarded"
)

// StatusChange is the set of mutable fields a reconciliation may write.
type StatusChange struct {
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentIntentID string
}

// Resolve computes how an outcome affects the order. It is pure: the caller
// persists the change with a write gated on the order's current payment
// status, so concurrent resolutions for the same order converge.
//
// Rules:
//   - paid wins over every unpaid state and is a no-op once paid or refunded;
//   - failed only applies while payment is still pending;
//   - refunded only applies to paid orders and leaves the order status alone.
func (o Order) Resolve(outcome Outcome, paymentIntentID string) (StatusChange, Decision) {
	switch outcome {
	case OutcomePaid:
		switch o.PaymentStatus {
		case PaymentPaid, PaymentRefunded:
			return StatusChange{}, DecisionNoop
		}
		intent := paymentIntentID
		if intent == "" {
			intent = o.PaymentIntentID
		}
		return StatusChange{
			Status:          StatusCompleted,
			PaymentStatus:   PaymentPaid,
			PaymentIntentID: intent,
		}, DecisionApply

	case OutcomeFailed:
		switch o.PaymentStatus {
		case PaymentFailed:
			return StatusChange{}, DecisionNoop
		case PaymentPaid, PaymentRefunded:
			return StatusChange{}, DecisionDiscard
		}
		return StatusChange{
			Status:          StatusFailed,
			PaymentStatus:   PaymentFailed,
			PaymentIntentID: o.PaymentIntentID,
		}, DecisionApply

	case OutcomeRefunded:
		switch o.PaymentStatus {
		case PaymentRefunded:
			return StatusChange{}, DecisionNoop
		case PaymentPaid:
			return StatusChange{
				Status:          o.Status,
				PaymentStatus:   PaymentRefunded,
				PaymentIntentID: o.PaymentIntentID,
			}, DecisionApply
		}
		return StatusChange{}, DecisionDiscard
	}

	return StatusChange{}, DecisionDiscard
}

// Cancel computes the change for an administrative cancellation. Only orders
// that have not settled can be cancelled.
func (o Order) Cancel() (StatusChange, bool) {
	if o.PaymentStatus != PaymentPending {
		return StatusChange{}, false
	}
	if o.Status != StatusPending && o.Status != StatusProcessing {
		return StatusChange{}, false
	}
	return StatusChange{
		Status:          StatusCancelled,
		PaymentStatus:   o.PaymentStatus,
		PaymentIntentID: o.PaymentIntentID,
	}, true
}

// With returns a copy of the order with change applied.
func (o Order) With(change StatusChange) Order {
	o.Status = change.Status
	o.PaymentStatus = change.PaymentStatus
	if change.PaymentIntentID != "" {
		o.PaymentIntentID = change.PaymentIntentID
	}
	return o
}
