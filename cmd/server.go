package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/hon-client/internal/pkg/handlers"
	"github.com/jake-scott/hon-client/internal/pkg/logging"
	"github.com/jake-scott/hon-client/pkg/middlewares"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the appliance control API over HTTP",

	RunE: func(cmd *cobra.Command, args []string) error {
		return doServer()
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkSessionFlags()
	},
}

func init() {
	serverCmd.Flags().Uint16("port", 8080, "HTTP port number")
	serverCmd.Flags().String("tls-cert", "", "TLS certificate file, serve plain HTTP when unset")
	serverCmd.Flags().String("tls-key", "", "TLS key file")
	serverCmd.Flags().StringSlice("cors-origin", nil, "origins allowed to call the API from a browser")
	serverCmd.Flags().Duration("graceful-timeout", time.Second*15, "duration to wait for server to finish, eg. 1m or 10s")
	serverCmd.Flags().Duration("read-timeout", time.Second*15, "duration to wait for request read, eg. 1m or 10s")
	serverCmd.Flags().Duration("write-timeout", time.Second*60, "duration to wait for request write, eg. 1m or 10s")
	serverCmd.Flags().Bool("log-requests", false, "log requests and responses (only in debug mode)")

	errPanic(viper.BindPFlag("http.port", serverCmd.Flags().Lookup("port")))
	errPanic(viper.BindPFlag("http.cert", serverCmd.Flags().Lookup("tls-cert")))
	errPanic(viper.BindPFlag("http.key", serverCmd.Flags().Lookup("tls-key")))
	errPanic(viper.BindPFlag("http.cors-origins", serverCmd.Flags().Lookup("cors-origin")))
	errPanic(viper.BindPFlag("http.graceful-timeout", serverCmd.Flags().Lookup("graceful-timeout")))
	errPanic(viper.BindPFlag("http.read-timeout", serverCmd.Flags().Lookup("read-timeout")))
	errPanic(viper.BindPFlag("http.write-timeout", serverCmd.Flags().Lookup("write-timeout")))
	errPanic(viper.BindPFlag("logging.log-requests", serverCmd.Flags().Lookup("log-requests")))

	rootCmd.AddCommand(serverCmd)
}

func doServer() error {
	wait := viper.GetDuration("http.graceful-timeout")
	port := viper.GetUint("http.port")
	certFile := viper.GetString("http.cert")
	keyFile := viper.GetString("http.key")

	var logRequests bool
	if viper.GetBool("logging.log-requests") {
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logRequests = true
		} else {
			logging.Logger(nil).Warn("log-requests ignored when not in debug mode")
		}
	}

	session, err := newSession(context.Background())
	if err != nil {
		return err
	}
	ah := handlers.NewApplianceHandler(session)

	r := mux.NewRouter()
	r.Use(middlewares.NewCorrelationMw("X-Correlation-Id"))
	r.Use(middlewares.NewLoggingMw(logRequests))
	r.Use(middlewares.NewRecoveryMw())
	ah.Register(r)

	// preflight requests match no route, so CORS wraps the router
	var handler http.Handler = r
	if origins := viper.GetStringSlice("http.cors-origins"); len(origins) > 0 {
		handler = middlewares.NewCorsMw(origins, logRequests)(r)
	}

	s := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		ReadTimeout:  viper.GetDuration("http.read-timeout"),
		WriteTimeout: viper.GetDuration("http.write-timeout"),
		IdleTimeout:  time.Second * 60,
		Handler:      handler,
	}

	logging.Logger(nil).Infof("Serving %d appliances on port %d", len(session.Appliances()), port)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			err = s.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = s.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logging.Logger(nil).WithError(err).Error("running server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	// Block until we receive a signal
	<-c

	// Create a deadline to wait for.
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	logging.Logger(nil).Info("shutting down")
	if err := s.Shutdown(ctx); err != nil {
		logging.Logger(nil).WithError(err).Errorf("shutting down")
	}
	logging.Logger(nil).Info("exiting")
	return nil
}
