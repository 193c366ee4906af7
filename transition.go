package campaignflow

import "fmt"

// Transition is the guard's verdict on a requested status change.
// A denial is advisory; the guard never retries or writes anything.
type Transition struct {
	Allowed bool
	Reason  string
	// InProgress is set when the denial is caused by running generation
	InProgress bool
}

// Err converts a denied transition into a conflict error
func (t Transition) Err() error {
	if t.Allowed {
		return nil
	}
	return NewConflictError(t.Reason)
}

var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusPlanned:         {CampaignStatusGenerating},
	CampaignStatusGenerating:      {CampaignStatusPendingApproval, CampaignStatusFailed},
	CampaignStatusPendingApproval: {CampaignStatusCompleted, CampaignStatusGenerating},
	CampaignStatusFailed:          {CampaignStatusGenerating},
	CampaignStatusCompleted:       nil,
	CampaignStatusCancelled:       nil,
}

var postTransitions = map[PostStatus][]PostStatus{
	PostStatusPlanned:     {PostStatusGenerating, PostStatusSkipped},
	PostStatusGenerating:  {PostStatusCompleted, PostStatusFailed, PostStatusSkipped, PostStatusNeedsReview},
	PostStatusFailed:      {PostStatusGenerating, PostStatusSkipped},
	PostStatusNeedsReview: {PostStatusGenerating, PostStatusSkipped},
	PostStatusCompleted:   nil,
	PostStatusSkipped:     nil,
}

// CheckTransition decides whether an entity of the given kind may move
// from current to requested. Requesting the current status is allowed.
func CheckTransition(kind EntityKind, current, requested string) Transition {
	switch kind {
	case EntityKindCampaign:
		return CheckCampaignTransition(CampaignStatus(current), CampaignStatus(requested))
	case EntityKindPost:
		return CheckPostTransition(PostStatus(current), PostStatus(requested))
	default:
		return deny("unknown entity kind %q", kind)
	}
}

// CheckCampaignTransition applies the campaign state machine. Cancellation
// is permitted from every state except generating.
func CheckCampaignTransition(current, requested CampaignStatus) Transition {
	if !current.IsValid() {
		return deny("unknown campaign status %q", current)
	}
	if !requested.IsValid() {
		return deny("unknown campaign status %q", requested)
	}
	if current == requested {
		return allow()
	}

	if requested == CampaignStatusCancelled {
		if current == CampaignStatusGenerating {
			return Transition{
				Reason:     "campaign generation in progress; cancel after generation finishes",
				InProgress: true,
			}
		}
		return allow()
	}

	for _, next := range campaignTransitions[current] {
		if next == requested {
			return allow()
		}
	}
	return deny("campaign cannot move from %s to %s", current, requested)
}

// CheckPostTransition applies the post state machine
func CheckPostTransition(current, requested PostStatus) Transition {
	if !current.IsValid() {
		return deny("unknown post status %q", current)
	}
	if !requested.IsValid() {
		return deny("unknown post status %q", requested)
	}
	if current == requested {
		return allow()
	}

	for _, next := range postTransitions[current] {
		if next == requested {
			return allow()
		}
	}
	if current == PostStatusGenerating {
		return Transition{
			Reason:     fmt.Sprintf("post generation in progress; cannot move to %s", requested),
			InProgress: true,
		}
	}
	return deny("post cannot move from %s to %s", current, requested)
}

func allow() Transition {
	return Transition{Allowed: true}
}

func deny(format string, args ...any) Transition {
	return Transition{Reason: fmt.Sprintf(format, args...)}
}
