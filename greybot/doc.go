// Package greybot implements Grey, a Discord bot that engages
// conversations selectively rather than answering every message.
//
// Incoming messages flow through a fixed pipeline: each message is
// recorded into a bounded per-channel context window
// (ConversationStore), evaluated against an ordered decision policy
// (Classifier), and, when the policy says to engage, answered by a
// chat completion built from the retained window (Orchestrator).
// The policy responds to direct mentions, questions, help requests,
// and messages left unanswered past a configurable delay, in that
// priority order.
//
// Supplementary integrations:
//
//   - Web search (Brave Search API) enriches prompts when a message
//     asks for current information, and backs the !search command.
//   - Image lookup (Pexels API) backs the !image command.
//   - A small gin HTTP server exposes health, stats, and redacted
//     configuration endpoints.
//
// Replies are only recorded into the context window when the
// completion succeeds, so upstream failures never leave phantom
// turns in later prompts. All state is in-memory; restarting the
// bot starts every conversation fresh.
package greybot
