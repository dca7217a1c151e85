package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/arcward/greybot/greybot"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = greybot.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "greybot [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("bot_name", greybot.DefaultBotName)
	viper.SetDefault("command_prefix", greybot.DefaultCommandPrefix)
	viper.SetDefault("log_level", greybot.DefaultLogLevel.String())

	viper.SetDefault("startup_timeout", greybot.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", greybot.DefaultShutdownTimeout)

	// OpenAI config
	viper.SetDefault("openai.log_level", greybot.DefaultOpenAILogLevel.String())
	viper.SetDefault("openai.token", "")
	viper.SetDefault("openai.model", greybot.DefaultOpenAIModel)
	viper.SetDefault("openai.max_tokens", greybot.DefaultOpenAIMaxTokens)
	viper.SetDefault(
		"openai.request_timeout",
		greybot.DefaultOpenAIRequestTimeout,
	)
	viper.SetDefault(
		"openai.system_instruction",
		greybot.DefaultSystemInstruction,
	)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault(
		"discord.custom_status",
		greybot.DefaultDiscordCustomStatus,
	)
	viper.SetDefault(
		"discord.error_message",
		greybot.DefaultDiscordErrorMessage,
	)
	viper.SetDefault(
		"discord.log_level",
		greybot.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		greybot.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		greybot.DefaultDiscordGatewayIntent,
	)

	// Search/image config
	viper.SetDefault("search.enabled", false)
	viper.SetDefault("search.api_key", "")
	viper.SetDefault("search.max_results", greybot.DefaultSearchMaxResults)
	viper.SetDefault(
		"search.request_timeout",
		greybot.DefaultSearchRequestTimeout,
	)
	viper.SetDefault("image.api_key", "")
	viper.SetDefault(
		"image.request_timeout",
		greybot.DefaultImageRequestTimeout,
	)

	// Engagement config
	viper.SetDefault(
		"engagement.window_size",
		greybot.DefaultContextWindowSize,
	)
	viper.SetDefault("engagement.max_age", greybot.DefaultContextMaxAge)
	viper.SetDefault(
		"engagement.unresolved_delay",
		greybot.DefaultUnresolvedDelay,
	)
	viper.SetDefault("engagement.question_words", greybot.DefaultQuestionWords)
	viper.SetDefault("engagement.help_phrases", greybot.DefaultHelpPhrases)
	viper.SetDefault(
		"engagement.current_info_markers",
		greybot.DefaultCurrentInfoMarkers,
	)

	// API config
	viper.SetDefault("api.listen", greybot.DefaultAPIListen)
	viper.SetDefault("api.listen_network", "tcp")
	viper.SetDefault("api.log_level", greybot.DefaultAPILogLevel.String())
	viper.SetDefault("api.read_timeout", greybot.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		greybot.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", greybot.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", greybot.DefaultIdleTimeout)
	viper.SetDefault("api.development", false)

	// API: CORS config
	viper.SetDefault("api.cors.allow_headers", []string{})
	viper.SetDefault("api.cors.allow_methods", []string{})
	viper.SetDefault("api.cors.allow_origins", []string{})
	viper.SetDefault("api.cors.max_age", 0)

	envPrefix := os.Getenv(greybot.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = greybot.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	viper.Set(
		"api.cors.allow_headers",
		viper.GetStringSlice("api.cors.allow_headers"),
	)
	viper.Set(
		"api.cors.allow_origins",
		viper.GetStringSlice("api.cors.allow_origins"),
	)
	viper.Set(
		"api.cors.allow_methods",
		viper.GetStringSlice("api.cors.allow_methods"),
	)
	viper.Set(
		"engagement.question_words",
		viper.GetStringSlice("engagement.question_words"),
	)
	viper.Set(
		"engagement.help_phrases",
		viper.GetStringSlice("engagement.help_phrases"),
	)
	viper.Set(
		"engagement.current_info_markers",
		viper.GetStringSlice("engagement.current_info_markers"),
	)

	for _, key := range []string{
		"log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"openai.log_level",
		"api.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
