package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	hub "github.com/salvationdao/hubotel"
	"github.com/salvationdao/hubotel/ext/messagebus"
	hubotel "github.com/salvationdao/hubotel/ext/otel"
	SentryTracer "github.com/salvationdao/hubotel/ext/sentry"
	zerologger "github.com/salvationdao/hubotel/ext/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"nhooyr.io/websocket"
)

const HubKeyWelcome hub.HubCommandKey = "Welcome"

type WelcomePayload struct {
	Message string `json:"message"`
}

var rootCmd = &cobra.Command{
	Use:   "hubserver",
	Short: "Example websocket hub instrumented with OpenTelemetry",
	Long: `Serves a websocket hub on /api/ws with calculator and chat commands. ` +
		`Traces go to stdout or datadog, metrics are served for prometheus on /metrics. ` +
		`Configuration is read from the environment; flags override it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := LoadConfig()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("addr") {
			conf.Server.Addr, _ = flags.GetString("addr")
		}
		if flags.Changed("exporter") {
			conf.Trace.Exporter, _ = flags.GetString("exporter")
		}
		if flags.Changed("isolate") {
			conf.Server.IsolateTraces, _ = flags.GetBool("isolate")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return serve(ctx, conf)
	},
}

func init() {
	rootCmd.Flags().String("addr", ":8080", "listen address")
	rootCmd.Flags().String("exporter", "stdout", "trace exporter: stdout, datadog or none")
	rootCmd.Flags().Bool("isolate", false, "start a new trace for every hub invocation")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(conf LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(conf.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if conf.Console {
		l = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		l = zerolog.New(os.Stderr)
	}
	return l.Level(level).With().Timestamp().Logger()
}

func serve(ctx context.Context, conf *Config) error {
	zl := newLogger(conf.Logging)
	log := zerologger.New(zl)

	tp, shutdownTraces, err := newTracerProvider(conf.Trace, hubotel.Version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTraces(sctx); err != nil {
			log.Err(err).Warnf("trace shutdown")
		}
	}()

	mp, err := newMeterProvider()
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mp.Shutdown(sctx)
	}()

	instConf := &hubotel.Config{
		IsolateTraceContext: conf.Server.IsolateTraces,
		TracerProvider:      tp,
		MeterProvider:       mp,
		Log:                 log,
	}
	if conf.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         conf.Sentry.DSN,
			Environment: conf.Trace.Env,
			Release:     hubotel.Version,
		})
		if err != nil {
			log.Err(err).Errorf("Failed to initialise sentry")
		} else {
			defer sentry.Flush(2 * time.Second)
			instConf.OnException = SentryTracer.New(nil).OnException
		}
	}

	inst, err := hubotel.New(instConf)
	if err != nil {
		return err
	}

	bus := messagebus.NewMessageBus(&zl)
	apiHub := hub.New(&hub.Config{
		Name:           conf.Server.HubName,
		Log:            log,
		LoggingEnabled: true,
		Interceptor:    inst,
		WelcomeMsg: &hub.WelcomeMsg{
			Key:     HubKeyWelcome,
			Payload: WelcomePayload{Message: "Welcome to " + conf.Server.HubName},
		},
		AcceptOptions: &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		},
		ClientOfflineFn:    bus.UnsubAll,
		WebsocketReadLimit: conf.Server.ReadLimit,
	})
	apiHub.Events.AddEventHandler(hub.EventOnline, identify)
	_ = NewCalcController(apiHub)
	_ = NewChatController(apiHub, bus)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Handle("/ws", otelhttp.NewHandler(apiHub, "hub.upgrade",
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
		))
	})
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Handler: r,
		Addr:    conf.Server.Addr,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(sctx)
	}()

	log.Infof("Starting API on %s", conf.Server.Addr)
	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Err(err).Errorf("ListenAndServe failed")
		return err
	}
	return nil
}

// identify names the client after the ?name= query parameter so chat messages and sentry events carry it
func identify(ctx context.Context, hubc *hub.Client) error {
	name := ""
	if hubc.Request != nil {
		name = hubc.Request.URL.Query().Get("name")
	}
	if name == "" {
		name = "guest-" + string(hubc.SessionID)[:8]
	}
	hubc.SetIdentifier(name)
	hub.LoggerFromContext(ctx).Debugf("identified %s as %s", hubc.SessionID, name)
	return nil
}
