package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/peak-dev/Tir/pkg/engine"
	"github.com/peak-dev/Tir/pkg/template"
	"github.com/peak-dev/Tir/pkg/transport"
	"github.com/peak-dev/Tir/pkg/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tir",
		Short: "Coroutine-style web conversation server",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd)
		},
	}
	root.PersistentFlags().String("config", "", "config file (default tir.yaml)")
	root.PersistentFlags().String("log-level", "info", "zerolog level")

	root.AddCommand(newServeCmd())
	return root
}

func initConfig(cmd *cobra.Command) error {
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("tir")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("TIR")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "read config")
		}
	}

	levelName, _ := cmd.Flags().GetString("log-level")
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", levelName)
	}
	zerolog.SetGlobalLevel(level)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return nil
}

func newServeCmd() *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch loop with the built-in demo handler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	flags := serve.Flags()
	flags.String("route", "demo", "route name to resolve from configuration")
	flags.String("routes-db", "", "sqlite routes database")
	flags.String("routes-file", "", "YAML routes file (fallback when no db)")
	flags.String("transport", "memory", "transport backend: memory or redis")
	flags.String("redis-addr", "localhost:6379", "redis address")
	flags.String("redis-group", "tir", "redis consumer group")
	flags.String("redis-consumer", "tir-1", "redis consumer name")
	flags.String("views", "views", "template directory")
	flags.Bool("production", false, "cache compiled views for the process lifetime")
	flags.Bool("debug-pages", true, "serve full diagnostic pages on handler failures")
	_ = viper.BindPFlags(flags)
	return serve
}

func runServe(ctx context.Context) error {
	route, err := resolveRoute()
	if err != nil {
		return err
	}
	log.Info().
		Str("route", route.Name).
		Str("recv_topic", route.RecvTopic).
		Str("send_topic", route.SendTopic).
		Msg("route resolved")

	tr, err := buildTransport(route)
	if err != nil {
		return err
	}
	defer func() { _ = tr.Shutdown() }()

	views := template.NewLoader(viper.GetString("views"), viper.GetBool("production"))
	eng, err := engine.New(tr, engine.Config{
		Handler:    demoHandler,
		Views:      views,
		DebugPages: viper.GetBool("debug-pages"),
		OnDisconnect: func(req *web.Request) {
			log.Debug().Str("conn_id", req.ConnID).Msg("disconnect")
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return eng.Run(ctx) })
	log.Info().Msg("engine running")
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// resolveRoute reads the routing addresses once at startup: sqlite when a
// database is configured, a YAML file otherwise, and a loopback default for
// bare dev runs.
func resolveRoute() (transport.Route, error) {
	name := viper.GetString("route")
	if db := viper.GetString("routes-db"); db != "" {
		return transport.LoadRoute(db, name)
	}
	if file := viper.GetString("routes-file"); file != "" {
		return transport.LoadRouteYAML(file, name)
	}
	return transport.Route{
		Name:      name,
		Path:      "/",
		RecvTopic: "tir." + name + ".requests",
		SendTopic: "tir." + name + ".responses",
	}, nil
}

func buildTransport(route transport.Route) (transport.Transport, error) {
	logger := transport.NewWatermillLogger(log.With().Str("component", "transport").Logger())
	switch kind := viper.GetString("transport"); kind {
	case "redis":
		return transport.NewRedisBroker(route, transport.RedisSettings{
			Addr:     viper.GetString("redis-addr"),
			Group:    viper.GetString("redis-group"),
			Consumer: viper.GetString("redis-consumer"),
		}, logger)
	case "memory":
		return transport.NewBroker(route, logger), nil
	default:
		return nil, errors.Errorf("unknown transport %q", kind)
	}
}

// demoHandler is a small conversation exercising the handler surface: greet,
// prompt for a name, ask for confirmation.
func demoHandler(w *web.Web) error {
	params := w.Request().Params()
	name := params["name"]
	if name == "" {
		form, err := w.Prompt(`<h1>Who are you?</h1>
<form method="POST" action="/hello"><input name="name"><button>Send</button></form>`)
		if err != nil {
			return err
		}
		name = form["name"]
	}

	greeting := fmt.Sprintf("<h1>Hello %s!</h1><p>Visit <a href=\"/bye\">/bye</a> to finish.</p>",
		template.Escape(name))
	if _, err := w.Expect("^/bye$", greeting); err != nil {
		return err
	}
	return w.Send(map[string]string{"goodbye": name})
}
