package cmd

import (
	"context"
	"errors"
	"net/http"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hildam/deep-dive-go/biz/handler"
	"github.com/hildam/deep-dive-go/biz/router"
)

func serveCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			metrics := serveMetrics(a.cfg.Server.MetricsAddr)
			defer func() {
				if metrics != nil {
					_ = metrics.Shutdown(context.Background())
				}
			}()

			h := server.Default(server.WithHostPorts(a.cfg.Server.Addr))
			router.Register(h, handler.New(a.research, a.workflow))
			slog.Info("serve info, listen on %s", a.cfg.Server.Addr)
			h.Spin()
			return nil
		},
	}
}

// serveMetrics 在独立端口暴露 /metrics，地址为空时不启动
func serveMetrics(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("serveMetrics failed, addr = %s, err = %+v", addr, err)
		}
	}()
	slog.Info("serveMetrics info, listen on %s", addr)
	return srv
}
