package greybot

import (
	"log/slog"
	"strings"
	"time"
)

// EngagementReason tags why the classifier decided to respond (or not).
type EngagementReason string

const (
	ReasonDirectMention     EngagementReason = "direct_mention"
	ReasonQuestion          EngagementReason = "question"
	ReasonHelpRequest       EngagementReason = "help_request"
	ReasonDelayedUnresolved EngagementReason = "delayed_unresolved"
	ReasonNone              EngagementReason = "none"
)

// EngagementDecision is the classifier's verdict for a single
// message. It's computed fresh per message and never stored.
type EngagementDecision struct {
	Respond bool             `json:"respond"`
	Reason  EngagementReason `json:"reason"`
}

func (d EngagementDecision) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("respond", d.Respond),
		slog.String("reason", string(d.Reason)),
	)
}

// Classifier decides, per inbound message, whether the bot should
// respond. The decision policy is a fixed priority order; the
// question/help heuristics are data (configurable lexicons) rather
// than hard-coded branching.
type Classifier struct {
	questionWords      []string
	helpPhrases        []string
	currentInfoMarkers []string
	unresolvedDelay    time.Duration

	// now is swappable for tests
	now func() time.Time
}

// NewClassifier creates a Classifier from the engagement config.
func NewClassifier(config *EngagementConfig) *Classifier {
	return &Classifier{
		questionWords:      config.QuestionWords,
		helpPhrases:        config.HelpPhrases,
		currentInfoMarkers: config.CurrentInfoMarkers,
		unresolvedDelay:    config.UnresolvedDelay,
		now:                time.Now,
	}
}

// Classify evaluates the decision policy for msg, given the
// conversation's retained window and the time of the bot's last
// reply in it. First match wins:
//
//  1. the message mentions the bot
//  2. the message looks like a question
//  3. the message looks like a help request
//  4. the message is the newest in its conversation, the unresolved
//     delay has elapsed with no further activity, and the bot hasn't
//     replied since it arrived
//
// Anything else - including empty/whitespace-only content for rules
// 2-4 - is ReasonNone. Classification never fails: malformed input
// degrades to ReasonNone.
func (c *Classifier) Classify(
	msg Message,
	recent []Message,
	lastBotReply time.Time,
) EngagementDecision {
	if msg.Bot {
		return EngagementDecision{Respond: false, Reason: ReasonNone}
	}

	if msg.MentionsBot {
		return EngagementDecision{Respond: true, Reason: ReasonDirectMention}
	}

	if strings.TrimSpace(msg.Content) == "" {
		return EngagementDecision{Respond: false, Reason: ReasonNone}
	}

	if msg.IsQuestion {
		return EngagementDecision{Respond: true, Reason: ReasonQuestion}
	}

	if msg.IsHelpRequest {
		return EngagementDecision{Respond: true, Reason: ReasonHelpRequest}
	}

	if c.unresolved(msg, recent, lastBotReply) {
		return EngagementDecision{Respond: true, Reason: ReasonDelayedUnresolved}
	}

	return EngagementDecision{Respond: false, Reason: ReasonNone}
}

// unresolved implements rule 4. "No further activity" means msg is
// still the newest retained message; "not already answered" means
// the bot's last reply predates msg's arrival.
func (c *Classifier) unresolved(
	msg Message,
	recent []Message,
	lastBotReply time.Time,
) bool {
	if c.unresolvedDelay <= 0 || len(recent) == 0 {
		return false
	}
	newest := recent[len(recent)-1]
	if newest.ID != msg.ID {
		return false
	}
	if c.now().Sub(msg.Timestamp) < c.unresolvedDelay {
		return false
	}
	return lastBotReply.Before(msg.Timestamp)
}

// IsQuestion reports whether text matches the question heuristic:
// it ends with "?", or begins with a word from the interrogative
// lexicon.
func (c *Classifier) IsQuestion(text string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	if trimmed == "" {
		return false
	}
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	first, _, _ := strings.Cut(trimmed, " ")
	first = strings.Trim(first, ".,!?:;")
	for _, w := range c.questionWords {
		if first == w {
			return true
		}
	}
	return false
}

// IsHelpRequest reports whether text contains any phrase from the
// help lexicon.
func (c *Classifier) IsHelpRequest(text string) bool {
	lowered := strings.ToLower(text)
	if strings.TrimSpace(lowered) == "" {
		return false
	}
	for _, phrase := range c.helpPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// NeedsCurrentInfo reports whether text suggests the response needs
// fresh information (triggering the search path, when enabled).
func (c *Classifier) NeedsCurrentInfo(text string) bool {
	lowered := strings.ToLower(text)
	for _, marker := range c.currentInfoMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
