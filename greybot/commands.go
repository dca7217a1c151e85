package greybot

import (
	"context"
	"fmt"
	"strings"

	"github.com/lmittmann/tint"
)

const (
	commandPing     = "ping"
	commandImage    = "image"
	commandSearch   = "search"
	commandClear    = "clear"
	commandStats    = "stats"
	commandCommands = "commands"
)

// parseCommand splits a prefixed message into a command name and its
// argument string. Returns ok=false if the content isn't a command
// invocation for the given prefix.
func parseCommand(content string, prefix string) (
	name string,
	args string,
	ok bool,
) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(content, prefix)
	if rest == "" || rest[0] == ' ' {
		return "", "", false
	}
	name, args, _ = strings.Cut(rest, " ")
	return strings.ToLower(name), strings.TrimSpace(args), true
}

// handleCommand dispatches a parsed prefix command and returns the
// reply to send. Unknown command names are ignored (empty reply), so
// casual prefix collisions don't produce noise.
func (g *GreyBot) handleCommand(
	ctx context.Context,
	channelID string,
	name string,
	args string,
) string {
	logger := g.logger.With("command", name, "channel_id", channelID)

	var reply string
	switch name {
	case commandPing:
		reply = "Pong!"
	case commandImage:
		reply = g.commandImage(ctx, args)
	case commandSearch:
		reply = g.commandSearch(ctx, args)
	case commandClear:
		g.store.Clear(channelID)
		reply = "Conversation context cleared."
	case commandStats:
		reply = g.commandStats()
	case commandCommands:
		reply = g.commandHelp()
	default:
		logger.DebugContext(ctx, "ignoring unknown command")
		return ""
	}

	g.stats.RecordCommand(name)
	logger.InfoContext(ctx, "handled command")
	return reply
}

func (g *GreyBot) commandImage(ctx context.Context, query string) string {
	if g.images == nil {
		return "Image lookup isn't configured."
	}
	if query == "" {
		return fmt.Sprintf(
			"Usage: %s%s <what to look for>",
			g.config.CommandPrefix,
			commandImage,
		)
	}
	url, err := g.images.Lookup(ctx, query)
	if err != nil {
		g.stats.RecordUpstreamFailure(upstreamPexels)
		g.logger.ErrorContext(ctx, "image lookup failed", tint.Err(err))
		return g.config.Discord.ErrorMessage
	}
	if url == "" {
		return fmt.Sprintf("No images found for: %s", query)
	}
	return url
}

func (g *GreyBot) commandSearch(ctx context.Context, query string) string {
	if g.search == nil {
		return "Web search isn't configured."
	}
	if query == "" {
		return fmt.Sprintf(
			"Usage: %s%s <query>",
			g.config.CommandPrefix,
			commandSearch,
		)
	}
	results, err := g.search.Search(ctx, query)
	if err != nil {
		g.stats.RecordUpstreamFailure(upstreamBrave)
		g.logger.ErrorContext(ctx, "search command failed", tint.Err(err))
		return g.config.Discord.ErrorMessage
	}
	return formatSearchResults(query, results)
}

func (g *GreyBot) commandStats() string {
	s := g.stats.Summary()
	lines := []string{
		fmt.Sprintf("Uptime: %s", s.Uptime),
		fmt.Sprintf("Messages seen: %d", s.MessagesSeen),
		fmt.Sprintf("Replies sent: %d", s.RepliesSent),
		fmt.Sprintf("Commands run: %d", s.CommandsRun),
		fmt.Sprintf("Active users: %d", s.ActiveUsers),
	}
	if s.BusiestHour >= 0 {
		lines = append(
			lines,
			fmt.Sprintf("Busiest hour: %02d:00", s.BusiestHour),
		)
	}
	return strings.Join(lines, "\n")
}

func (g *GreyBot) commandHelp() string {
	p := g.config.CommandPrefix
	lines := []string{
		"Available commands:",
		fmt.Sprintf("%s%s - check that I'm alive", p, commandPing),
		fmt.Sprintf("%s%s <query> - search the web", p, commandSearch),
		fmt.Sprintf("%s%s <query> - find an image", p, commandImage),
		fmt.Sprintf("%s%s - forget this channel's conversation", p, commandClear),
		fmt.Sprintf("%s%s - activity stats", p, commandStats),
		fmt.Sprintf("%s%s - this message", p, commandCommands),
	}
	return strings.Join(lines, "\n")
}
