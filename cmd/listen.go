package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/korovkin/limiter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/hon-client/internal/pkg/hon"
	"github.com/jake-scott/hon-client/internal/pkg/logging"
	"github.com/jake-scott/hon-client/internal/pkg/pushapi"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Follow pushed appliance telemetry from the MQTT broker",

	RunE: func(cmd *cobra.Command, args []string) error {
		return doListen()
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := checkSessionFlags(); err != nil {
			return err
		}
		return checkRequiredFlags("mqtt.broker")
	},
}

func init() {
	listenCmd.Flags().String("mqtt-broker", "", "MQTT broker URL, eg. tls://host:8883")
	listenCmd.Flags().String("mqtt-username", "", "MQTT user name")
	listenCmd.Flags().String("mqtt-password", "", "MQTT password")
	listenCmd.Flags().String("mobile-id", "hon-client", "mobile ID prefix of the MQTT client ID")
	listenCmd.Flags().Duration("connect-timeout", time.Second*30, "maximum wait for the first connection, eg. 1m or 10s")
	listenCmd.Flags().Duration("refresh-interval", 0, "poll telemetry at this interval as well, 0 disables polling")

	errPanic(viper.BindPFlag("mqtt.broker", listenCmd.Flags().Lookup("mqtt-broker")))
	errPanic(viper.BindPFlag("mqtt.username", listenCmd.Flags().Lookup("mqtt-username")))
	errPanic(viper.BindPFlag("mqtt.password", listenCmd.Flags().Lookup("mqtt-password")))
	errPanic(viper.BindPFlag("mqtt.mobile-id", listenCmd.Flags().Lookup("mobile-id")))
	errPanic(viper.BindPFlag("mqtt.connect-timeout", listenCmd.Flags().Lookup("connect-timeout")))
	errPanic(viper.BindPFlag("hon.refresh-interval", listenCmd.Flags().Lookup("refresh-interval")))

	rootCmd.AddCommand(listenCmd)
}

// refreshLoop polls the telemetry of every appliance until ctx is done
func refreshLoop(ctx context.Context, session *hon.Hon, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Logger(nil).Info("refresh-loop: shutting down")
			return
		case <-ticker.C:
		}

		limit := limiter.NewConcurrencyLimiter(viper.GetInt("hon.concurrency"))
		for _, a := range session.Appliances() {
			a := a
			limit.ExecuteWithTicket(func(ticket int) {
				if _, err := a.Update(ctx, false); err != nil {
					logging.Appliance(ctx, a.MacAddress()).WithError(err).Error("refresh-loop: updating")
				}
			})
		}
		limit.Wait()
		session.Notify()
	}
}

func doListen() error {
	// context to allow us to stop the loops
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := newSession(ctx)
	if err != nil {
		return err
	}
	session.Subscribe(func() {
		logging.Logger(nil).Debug("appliance state updated")
	})

	listener := pushapi.NewListener(session)
	client, err := pushapi.NewClient(pushapi.Config{
		Broker:   viper.GetString("mqtt.broker"),
		Username: viper.GetString("mqtt.username"),
		Password: viper.GetString("mqtt.password"),
		MobileID: viper.GetString("mqtt.mobile-id"),
	}, listener)
	if err != nil {
		return err
	}
	if err := client.Connect(viper.GetDuration("mqtt.connect-timeout")); err != nil {
		return err
	}
	defer client.Close()

	logging.Logger(nil).Infof("listening on %d topics", len(listener.Topics()))

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		client.Run(ctx)
	}()

	if interval := viper.GetDuration("hon.refresh-interval"); interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refreshLoop(ctx, session, interval)
		}()
	}

	// ctrl-c handler
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	// Block until we receive a signal
	<-c
	logging.Logger(nil).Info("main: shutting down")

	cancel()
	wg.Wait()

	logging.Logger(nil).Info("main: exiting")
	return nil
}
