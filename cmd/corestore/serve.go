package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"corestore/pkg/metrics"
	"corestore/pkg/ui"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Prometheus exporter and the buffer pool inspector",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			eng, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.close()

			if cfg.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler(eng.pool))
				srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						eng.log.WithError(err).Error("metrics exporter stopped")
					}
				}()
				defer srv.Close()
				eng.log.WithField("addr", cfg.MetricsAddr).Info("metrics exporter listening")
			}

			return ui.Run(eng.pool)
		},
	}
}
