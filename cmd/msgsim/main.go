package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"msgsim/internal/app"
	"msgsim/internal/config"
	"msgsim/internal/eventbus"
	"msgsim/pkg/systemd"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath  string
		envFile  string
		probe    bool
		probeMax int
		history  int
	)
	flag.StringVar(&cfgPath, "config", "", "path to config (yaml or json); empty uses defaults")
	flag.StringVar(&envFile, "env", ".env", "dotenv file with MSGSIM_* overrides (ignored if missing)")
	flag.BoolVar(&probe, "probe", false, "run the scalability probe instead of a single simulation")
	flag.IntVar(&probeMax, "probe-max", 1024, "largest sender count tried by -probe")
	flag.IntVar(&history, "history", 0, "print the last N recorded runs and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			return 1
		}
	}

	a, err := app.New(app.Options{ConfigPath: cfgPath, Stdout: os.Stdout})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = a.Stop(sctx)
	}()

	if history > 0 {
		return printHistory(ctx, a, history)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		return 1
	}

	sd := systemd.New(a.Logger())
	events, unsub := a.Bus().Subscribe(16)
	defer unsub()
	go func() {
		for e := range events {
			if e.Type == eventbus.TypeRunState {
				if s, ok := e.Data.(string); ok {
					sd.Status(s)
				}
			}
		}
	}()
	sd.Ready()
	defer sd.Stopping()

	if probe {
		steps, err := a.Probe(ctx, probeMax)
		for _, st := range steps {
			fmt.Printf("senders=%d messages=%d elapsed=%.2fs msgs/s=%.1f msgs/s/sender=%.2f\n",
				st.Senders, st.Messages, st.Elapsed.Seconds(), st.Throughput, st.PerSender)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "probe:", err)
			return 1
		}
		return 0
	}

	sum, err := a.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run %s finished with errors:\n%v\n", sum.RunID, err)
		return 1
	}
	return 0
}

func printHistory(ctx context.Context, a *app.App, n int) int {
	runs, err := a.History(ctx, n)
	if err != nil {
		fmt.Fprintln(os.Stderr, "history:", err)
		return 1
	}
	for _, r := range runs {
		status := "ok"
		if r.Errors > 0 {
			status = fmt.Sprintf("%d errors", r.Errors)
		}
		fmt.Printf("%s  %s  producers=%d senders=%d sent=%d failed=%d %.1f msgs/s in %s (%s)\n",
			r.StartedAt.Format(time.RFC3339), r.ID, r.Producers, r.Senders, r.Sent, r.Failed,
			r.Throughput, r.Elapsed().Round(time.Millisecond), status)
	}
	return 0
}
