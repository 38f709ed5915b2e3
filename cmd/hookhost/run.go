// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hookhost/hookhost/internal/config"
	"github.com/hookhost/hookhost/internal/execctx"
	"github.com/hookhost/hookhost/internal/hook"
	"github.com/hookhost/hookhost/internal/host"
	"github.com/hookhost/hookhost/internal/logging"
	"github.com/hookhost/hookhost/internal/observability"
	"github.com/hookhost/hookhost/pkg/errutil"
)

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the host and read operator commands from stdin",
		Long: `Start the host: load scripts from the scripts directory, fire
OnTimer on every tick and read hub commands from stdin as the operator.
Each input line is offered to scripts first, then to the admin commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runHost(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	config.BindFlags(cmd.Flags())
	return cmd
}

// runHost runs until ctx is done. Console input ending does not stop it.
func runHost(ctx context.Context, cfg *config.Config, in io.Reader, out, logOut io.Writer) error {
	logger := logging.Setup("hookhost", version, cfg.Log.Format, cfg.LogLevel(), logOut)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool
	var metrics *observability.Metrics
	var obsServer *observability.Server
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, ready.Load, hook.RegisterMetrics, execctx.RegisterMetrics)
		errCh, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, errCh, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	console := &console{out: out}
	h, err := host.New(cfg,
		host.WithLogger(logger),
		host.WithMessenger(console),
		host.WithMetrics(metrics))
	if err != nil {
		stopServer(obsServer, logger)
		return err
	}
	if err := h.Start(ctx); err != nil {
		errutil.LogError(logger, "autoload failed", err)
	}

	ready.Store(true)
	logger.Info("host ready",
		"mode", cfg.Mode,
		"scripts", len(h.Scripts().Scripts()),
		"tick_interval", cfg.TickInterval)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = h.Run(ctx, cfg.TickInterval)
	}()
	go console.serve(ctx, h, in, operator{nick: "console", class: cfg.OperatorClass})

	<-ctx.Done()
	logger.Info("shutting down...")
	ready.Store(false)
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := h.Close(shutdownCtx); err != nil {
		errutil.LogWarn(logger, "error closing host", err)
	}
	stopServer(obsServer, logger)

	logger.Info("shutdown complete")
	return nil
}

func stopServer(s *observability.Server, logger *slog.Logger) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when the server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}

// operator is the console's session.
type operator struct {
	nick  string
	class int
}

func (o operator) Nick() string { return o.nick }
func (o operator) Class() int   { return o.class }

// console prints replies and messages scripts send.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

// Send implements hostfunc.Messenger.
func (c *console) Send(_ context.Context, nick, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "-> %s: %s\n", nick, message)
	return err
}

func (c *console) println(lines ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range lines {
		fmt.Fprintln(c.out, line)
	}
}

// serve offers each input line to the host as a hub command until in is
// exhausted or ctx is done.
func (c *console) serve(ctx context.Context, h *host.Host, in io.Reader, session operator) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		prefix, command := splitPrefix(strings.TrimSpace(scanner.Text()))
		if command == "" {
			continue
		}
		handled, reply := h.HubCommand(ctx, session, command, false, prefix)
		switch {
		case len(reply.Lines) > 0:
			c.println(reply.Lines...)
		case !handled:
			c.println("Unknown command: " + prefix + command)
		}
	}
}

// splitPrefix separates a leading ! or + from line.
func splitPrefix(line string) (prefix, command string) {
	if line != "" && (line[0] == '!' || line[0] == '+') {
		return line[:1], line[1:]
	}
	return "", line
}
