//nolint:lll // struct tags can't be split
package greybot

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
)

const (
	EnvvarSetEnvPrefix = "GREYBOT_ENV_PREFIX"
	DefaultEnvPrefix   = "GREY"

	DefaultBotName       = "Grey"
	DefaultCommandPrefix = "!"

	DefaultLogLevel        = slog.LevelInfo
	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultContextWindowSize = 10
	DefaultContextMaxAge     = 24 * time.Hour
	DefaultUnresolvedDelay   = time.Minute

	DefaultOpenAIModel          = "gpt-4o-mini"
	DefaultOpenAIRequestTimeout = 60 * time.Second
	DefaultOpenAIMaxTokens      = 512
	DefaultOpenAILogLevel       = slog.LevelInfo

	DefaultSearchMaxResults     = 5
	DefaultSearchRequestTimeout = 10 * time.Second
	DefaultImageRequestTimeout  = 10 * time.Second

	DefaultDiscordLogLevel      = slog.LevelWarn
	DefaultDiscordgoLogLevel    = slog.LevelWarn
	DefaultDiscordErrorMessage  = "sorry, something went wrong!"
	DefaultDiscordCustomStatus  = "lurking until someone needs me"
	DefaultDiscordGatewayIntent = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	// discordMaxMessageLength is the per-message size the bot will
	// send. Discord's hard cap is 2000 - keep headroom for the
	// odd mention expansion.
	discordMaxMessageLength = 1900

	DefaultAPIListen         = "127.0.0.1:5000"
	defaultListenNetwork     = "tcp"
	DefaultAPILogLevel       = slog.LevelInfo
	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second
)

// DefaultSystemInstruction is the fixed system prompt sent as the
// first turn of every completion request.
const DefaultSystemInstruction = `You are a helpful community assistant named Grey that engages only when necessary.
Respond selectively: answer questions, help when users need assistance, and acknowledge mentions.
Maintain conversation context and build on existing topics.
Keep responses short (1-2 sentences), direct, and friendly.
Adapt to the channel's culture and keep professionalism.`

var (
	// DefaultQuestionWords are the interrogative openers that mark a
	// message as a question (in addition to a trailing "?").
	DefaultQuestionWords = []string{
		"what", "how", "why", "when", "where", "who",
		"can", "could", "should", "would", "is", "are", "does", "do",
	}

	// DefaultHelpPhrases are substrings that mark a message as a
	// request for help.
	DefaultHelpPhrases = []string{
		"help", "assist", "support", "trouble", "issue", "problem",
		"how to", "how do i", "can someone", "guide", "tutorial",
	}

	// DefaultCurrentInfoMarkers are substrings suggesting the message
	// needs fresh information, triggering a web search (when enabled)
	// before the completion request.
	DefaultCurrentInfoMarkers = []string{
		"latest", "news", "today", "current", "right now",
		"price of", "weather",
	}
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}

// Config is the main configuration struct for the GreyBot bot.
// It's populated via viper in the cmd package (env vars, .env files),
// and validated once at startup.
type Config struct {
	// BotName is the display name the bot answers to. A message
	// containing this name (case-insensitive) counts as a mention.
	BotName string `yaml:"bot_name" mapstructure:"bot_name" json:"bot_name" binding:"required"`

	// CommandPrefix introduces explicit commands (ex: "!image sunset")
	CommandPrefix string `yaml:"command_prefix" mapstructure:"command_prefix" json:"command_prefix" binding:"required"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has
	// to initialize. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown.
	// After this elapses, the bot will force close all connections
	// and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// Discord configures the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// OpenAI configures the completion service integration
	OpenAI *OpenAIConfig `yaml:"openai" mapstructure:"openai" json:"openai"`

	// Search configures the (optional) web search integration
	Search *SearchConfig `yaml:"search" mapstructure:"search" json:"search"`

	// Image configures the (optional) image lookup integration
	Image *ImageConfig `yaml:"image" mapstructure:"image" json:"image"`

	// Engagement configures the context window and decision policy
	Engagement *EngagementConfig `yaml:"engagement" mapstructure:"engagement" json:"engagement"`

	// API configures the status/stats HTTP server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the discord connection.
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in
	// the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// CustomStatus is shown as the bot user's status while connected
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	// ErrorMessage is sent to the channel when a response fails
	// upstream. Empty disables the fallback message (silent no-op).
	ErrorMessage string `yaml:"error_message" mapstructure:"error_message" json:"error_message"`

	// GatewayIntents to request on connect.
	// See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	httpClient *http.Client
}

// OpenAIConfig configures the completion service.
type OpenAIConfig struct {
	// OpenAI API token
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Model used for chat completions
	Model string `yaml:"model" mapstructure:"model" json:"model" binding:"required"`

	// SystemInstruction is the fixed first turn of every prompt
	SystemInstruction string `yaml:"system_instruction" mapstructure:"system_instruction" json:"system_instruction"`

	// MaxTokens caps the completion size. 0=provider default
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens" json:"max_tokens"`

	// RequestTimeout bounds each completion call - exceeding it is
	// surfaced as an UpstreamError
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" json:"request_timeout" binding:"min=1s"`

	// OpenAI base log level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// SearchConfig configures web search retrieval.
type SearchConfig struct {
	// Enabled turns the implicit current-information search path on
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// Brave Search API key
	APIKey string `yaml:"api_key" mapstructure:"api_key" json:"api_key" log:"[redacted]" binding:"required_if=Enabled true"`

	// MaxResults per query (1-10)
	MaxResults int `yaml:"max_results" mapstructure:"max_results" json:"max_results" binding:"min=0,max=10"`

	// RequestTimeout bounds each search call
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" json:"request_timeout"`
}

// ImageConfig configures image lookup.
type ImageConfig struct {
	// Pexels API key. Empty disables the `!image` command.
	APIKey string `yaml:"api_key" mapstructure:"api_key" json:"api_key" log:"[redacted]"`

	// RequestTimeout bounds each lookup call
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" json:"request_timeout"`
}

// EngagementConfig configures the context window and the
// classifier's decision policy. The word/phrase lexicons are data so
// the policy can be tuned (and tested) without touching logic.
type EngagementConfig struct {
	// WindowSize is the per-conversation message retention cap
	WindowSize int `yaml:"window_size" mapstructure:"window_size" json:"window_size" binding:"min=1"`

	// MaxAge is the per-message retention age cap
	MaxAge time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age" binding:"min=1m"`

	// UnresolvedDelay is how long a message may sit unanswered, with
	// no further channel activity, before the bot re-engages
	UnresolvedDelay time.Duration `yaml:"unresolved_delay" mapstructure:"unresolved_delay" json:"unresolved_delay" binding:"min=1s"`

	// QuestionWords are interrogative openers marking a question
	QuestionWords []string `yaml:"question_words" mapstructure:"question_words" json:"question_words"`

	// HelpPhrases are substrings marking a help request
	HelpPhrases []string `yaml:"help_phrases" mapstructure:"help_phrases" json:"help_phrases"`

	// CurrentInfoMarkers are substrings triggering web search
	CurrentInfoMarkers []string `yaml:"current_info_markers" mapstructure:"current_info_markers" json:"current_info_markers"`
}

// APIConfig configures the status/stats HTTP server.
type APIConfig struct {
	// The address and port on which the server should listen
	// (e.g., "127.0.0.1:5000")
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required,hostname_port|filepath"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix")
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"required,oneof=tcp tcp4 tcp6 unix"`

	// The logging level for the API server
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Cross-origin configuration
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	// Maximum duration for reading the entire request, including the body
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout" binding:"min=1s"`

	// Amount of time allowed to read request headers
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout" binding:"min=1s"`

	// Maximum duration before timing out writes of the response
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout" binding:"min=1s"`

	// Maximum amount of time to wait for the next request when
	// keep-alives are enabled
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout" binding:"min=1s"`

	// Development enables pprof endpoints and gin debug mode
	Development bool `yaml:"development" mapstructure:"development" json:"development"`
}

// CORSConfig specifies cross-origin resource sharing settings
type CORSConfig struct {
	AllowOrigins []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	MaxAge       time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	openaiLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	openaiLogLevel.Set(DefaultOpenAILogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		BotName:         DefaultBotName,
		CommandPrefix:   DefaultCommandPrefix,
		LogLevel:        mainLogLevel,
		StartupTimeout:  DefaultStartupTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			CustomStatus:      DefaultDiscordCustomStatus,
			ErrorMessage:      DefaultDiscordErrorMessage,
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
		},
		OpenAI: &OpenAIConfig{
			Model:             DefaultOpenAIModel,
			SystemInstruction: DefaultSystemInstruction,
			MaxTokens:         DefaultOpenAIMaxTokens,
			RequestTimeout:    DefaultOpenAIRequestTimeout,
			LogLevel:          openaiLogLevel,
		},
		Search: &SearchConfig{
			MaxResults:     DefaultSearchMaxResults,
			RequestTimeout: DefaultSearchRequestTimeout,
		},
		Image: &ImageConfig{
			RequestTimeout: DefaultImageRequestTimeout,
		},
		Engagement: &EngagementConfig{
			WindowSize:         DefaultContextWindowSize,
			MaxAge:             DefaultContextMaxAge,
			UnresolvedDelay:    DefaultUnresolvedDelay,
			QuestionWords:      append([]string{}, DefaultQuestionWords...),
			HelpPhrases:        append([]string{}, DefaultHelpPhrases...),
			CurrentInfoMarkers: append([]string{}, DefaultCurrentInfoMarkers...),
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			ListenNetwork:     defaultListenNetwork,
			LogLevel:          apiLogLevel,
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
	}
}
