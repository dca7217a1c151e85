package greybot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/arcward/greybot/greybot.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var (
	defaultLogWriter io.Writer = os.Stdout
)

// GreyBot is the main application struct. It owns the Discord
// session, the conversation store, the engagement classifier, the
// response orchestrator, the upstream clients, and the status API,
// and coordinates their lifecycles.
type GreyBot struct {
	config     *Config
	logger     *slog.Logger
	logHandler slog.Handler

	discord      *Discord
	store        *ConversationStore
	classifier   *Classifier
	openai       *OpenAI
	search       *SearchClient
	images       *ImageClient
	orchestrator *Orchestrator
	stats        *Stats
	api          *API

	// runMu prevents concurrent runs
	runMu      sync.Mutex
	startedAt  time.Time
	signalStop chan struct{}

	// pending tracks scheduled unresolved-message re-checks, so
	// shutdown doesn't strand goroutines mid-timer
	pending sync.WaitGroup
}

// New creates a GreyBot instance from the given config. The config
// isn't validated here; Run does that before connecting anywhere.
func New(config *Config) (*GreyBot, error) {
	var errs []error

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	g := &GreyBot{
		config:     config,
		signalStop: make(chan struct{}, 1),
	}

	g.logHandler = tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     config.LogLevel,
			AddSource: true,
		},
	)
	g.logger = slog.New(g.logHandler)
	slog.SetDefault(g.logger)

	g.stats = newStats()
	g.store = NewConversationStore(
		config.Engagement.WindowSize,
		config.Engagement.MaxAge,
		g.logger,
	)
	g.classifier = NewClassifier(config.Engagement)
	g.openai = newOpenAI(config.OpenAI, config.HTTPClient)
	g.search = newSearchClient(config.Search, config.HTTPClient)
	g.images = newImageClient(config.Image, config.HTTPClient)

	config.Discord.httpClient = config.HTTPClient
	disc, err := newDiscord(config.Discord)
	if err != nil {
		errs = append(errs, err)
	}

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	disc.logger = slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "discord")

	g.discord = disc
	disc.bot = g

	g.orchestrator = newOrchestrator(
		g.store,
		g.classifier,
		g.openai,
		g.search,
		config.Discord.ApplicationID,
		config.BotName,
		g.logger,
	)

	api, err := newAPI(g, config.API)
	if err != nil {
		errs = append(errs, err)
	}
	g.api = api

	return g, errors.Join(errs...)
}

// ValidateConfig validates the loaded configuration, returning a
// ConfigurationError describing the first offending field.
func (g *GreyBot) ValidateConfig() error {
	err := structValidator.Struct(g.config)
	if err == nil {
		return nil
	}
	return NewConfigurationError("config", err.Error())
}

// Run starts the bot and blocks until ctx is canceled or startup
// fails. On return, the Discord session is closed and the status API
// has shut down.
func (g *GreyBot) Run(ctx context.Context) error {
	g.runMu.Lock()
	defer g.runMu.Unlock()

	g.startedAt = time.Now()
	logger := g.logger

	if err := g.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	ctx = WithLogger(ctx, logger)
	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", g.config))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-g.signalStop:
			logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(
		func() error {
			httpErr := g.api.Serve(egCtx)
			if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
				logger.ErrorContext(
					egCtx,
					"error serving api HTTP",
					tint.Err(httpErr),
				)
				return httpErr
			}
			return nil
		},
	)

	startCtx, startCancel := context.WithTimeout(ctx, g.config.StartupTimeout)
	defer startCancel()

	if err := g.initDiscordSession(startCtx, ctx); err != nil {
		logger.ErrorContext(ctx, "error starting discord session", tint.Err(err))
		cancel()
		_ = g.shutdown(context.Background())
		return err
	}

	logger.InfoContext(ctx, "ready")

	<-ctx.Done()

	shutdownErr := g.shutdown(context.Background())
	egErr := eg.Wait()
	if egErr != nil && !errors.Is(egErr, context.Canceled) {
		return errors.Join(shutdownErr, egErr)
	}
	return shutdownErr
}

// Stop triggers a graceful shutdown of a running bot.
func (g *GreyBot) Stop() {
	select {
	case g.signalStop <- struct{}{}:
	default:
	}
}

// initDiscordSession creates and opens the gateway session. The
// startup context bounds the open; handlers are bound to the runtime
// context, which outlives it.
func (g *GreyBot) initDiscordSession(
	startCtx context.Context,
	ctx context.Context,
) error {
	session, err := g.discord.newSession()
	if err != nil {
		return err
	}
	g.discord.session = session

	g.discord.discordgoRemoveHandlerFuncs = []func(){
		session.AddHandler(g.discord.handlerReady()),
		session.AddHandler(g.discord.handlerConnect()),
		session.AddHandler(g.discord.handlerDisconnect()),
		session.AddHandler(g.handlerMessageCreate(ctx)),
	}

	openCh := make(chan error, 1)
	go func() {
		openCh <- session.Open()
	}()
	select {
	case <-startCtx.Done():
		return startCtx.Err()
	case err = <-openCh:
		if err != nil {
			return err
		}
	}

	if botUser := session.BotUser(); botUser != nil {
		g.orchestrator.botUserID = botUser.ID
	}
	return nil
}

func (g *GreyBot) shutdown(ctx context.Context) error {
	logger := g.logger
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	var errs []error

	if g.discord.session != nil {
		for _, removeHandler := range g.discord.discordgoRemoveHandlerFuncs {
			removeHandler()
		}
		if err := g.discord.session.Close(); err != nil {
			logger.Error("error closing discord session", tint.Err(err))
			errs = append(errs, err)
		}
	}

	// let in-flight unresolved re-checks notice the closed session
	done := make(chan struct{})
	go func() {
		g.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("timed out waiting for pending work")
	}

	if g.api != nil && g.api.httpServer != nil {
		if err := g.api.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down api server", tint.Err(err))
			errs = append(errs, err)
		}
	}

	logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// handlerMessageCreate returns the gateway handler for incoming
// messages. Each message is processed on its own goroutine so slow
// upstream calls never block the gateway.
func (g *GreyBot) handlerMessageCreate(ctx context.Context) func(
	s *discordgo.Session,
	m *discordgo.MessageCreate,
) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil {
			return
		}

		var botUserID string
		if s.State != nil && s.State.User != nil {
			botUserID = s.State.User.ID
		}
		if m.Author.ID == botUserID {
			return
		}

		go g.handleMessage(ctx, botUserID, m.Message)
	}
}

// handleMessage is the engagement pipeline for one incoming message:
// command dispatch, context recording, classification, and (maybe) a
// generated reply.
func (g *GreyBot) handleMessage(
	ctx context.Context,
	botUserID string,
	m *discordgo.Message,
) {
	msg := newMessage(m, botUserID, g.config.BotName, g.classifier)
	channelID := m.ChannelID
	logger := g.logger.With("channel_id", channelID, "message_id", msg.ID)
	ctx = WithLogger(ctx, logger)

	if name, args, ok := parseCommand(msg.Content, g.config.CommandPrefix); ok {
		if reply := g.handleCommand(ctx, channelID, name, args); reply != "" {
			g.send(ctx, channelID, reply)
		}
		return
	}

	// messages from other bots are recorded as context but never
	// trigger engagement
	g.store.Append(channelID, msg)
	if msg.Bot {
		return
	}
	g.stats.RecordMessage(channelID, msg.AuthorID)

	decision := g.classifier.Classify(
		msg,
		g.store.Recent(channelID),
		g.store.LastBotReply(channelID),
	)
	logger.DebugContext(ctx, "classified message", "decision", decision)

	if decision.Respond {
		g.respondAndSend(ctx, channelID, msg, decision)
		return
	}

	g.scheduleUnresolvedCheck(ctx, channelID, msg)
}

// scheduleUnresolvedCheck re-evaluates a passed-over message after
// the unresolved delay. If it's still the newest message in the
// conversation and nobody (including the bot) has answered, it
// becomes a delayed engagement.
func (g *GreyBot) scheduleUnresolvedCheck(
	ctx context.Context,
	channelID string,
	msg Message,
) {
	delay := g.config.Engagement.UnresolvedDelay
	if delay <= 0 {
		return
	}

	g.pending.Add(1)
	go func() {
		defer g.pending.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		decision := g.classifier.Classify(
			msg,
			g.store.Recent(channelID),
			g.store.LastBotReply(channelID),
		)
		if !decision.Respond {
			return
		}
		g.respondAndSend(ctx, channelID, msg, decision)
	}()
}

// respondAndSend generates a reply via the orchestrator and sends it
// to the channel. Upstream failures fall back to the configured
// error message rather than silence, since at this point the bot has
// already committed to engaging.
func (g *GreyBot) respondAndSend(
	ctx context.Context,
	channelID string,
	msg Message,
	decision EngagementDecision,
) {
	logger := g.logger.With("channel_id", channelID, "reason", decision.Reason)

	if err := g.discord.session.ChannelTyping(channelID); err != nil {
		logger.DebugContext(ctx, "unable to send typing indicator", tint.Err(err))
	}

	reply, err := g.orchestrator.Respond(ctx, channelID, msg, decision)
	if err != nil {
		var upstreamErr *UpstreamError
		if errors.As(err, &upstreamErr) {
			g.stats.RecordUpstreamFailure(upstreamErr.Service)
		}
		logger.ErrorContext(ctx, "error generating response", tint.Err(err))
		if g.config.Discord.ErrorMessage != "" {
			g.send(ctx, channelID, g.config.Discord.ErrorMessage)
		}
		return
	}
	if reply == "" {
		logger.WarnContext(ctx, "empty reply, nothing to send")
		return
	}

	g.send(ctx, channelID, reply)
	g.stats.RecordReply(decision.Reason)
}

func (g *GreyBot) send(ctx context.Context, channelID string, content string) {
	if err := g.discord.channelMessageSend(channelID, content); err != nil {
		g.logger.ErrorContext(
			ctx,
			"error sending message",
			tint.Err(err),
			"channel_id", channelID,
		)
	}
}
