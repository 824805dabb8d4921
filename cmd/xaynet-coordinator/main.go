// xaynet-coordinator is the coordinator's CLI entrypoint, mirroring the
// teacher's cmd/drand binary: a small urfave/cli/v2 app wrapping start,
// keygen, and show-params subcommands.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	clock "github.com/jonboulle/clockwork"
	json "github.com/nikkolasg/hexjson"
	"github.com/urfave/cli/v2"

	"github.com/xaynetwork/xaynet-coordinator/api/httpapi"
	"github.com/xaynetwork/xaynet-coordinator/codec"
	"github.com/xaynetwork/xaynet-coordinator/common/log"
	"github.com/xaynetwork/xaynet-coordinator/fs"
	"github.com/xaynetwork/xaynet-coordinator/internal/config"
	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/metrics"
	"github.com/xaynetwork/xaynet-coordinator/pet"
	"github.com/xaynetwork/xaynet-coordinator/request"
	"github.com/xaynetwork/xaynet-coordinator/store"
)

// Automatically set through -ldflags, as in the teacher's cmd/drand.
var (
	version   = "dev"
	gitCommit = "none"
	buildDate = "unknown"
)

var configFlag = &cli.StringFlag{
	Name:  "config",
	Value: "xaynet-coordinator.toml",
	Usage: "Path to the coordinator's TOML configuration file.",
}

var identityFlag = &cli.StringFlag{
	Name:  "identity",
	Value: "identity.toml",
	Usage: "Path to the coordinator's long-lived identity key file.",
}

var storeDirFlag = &cli.StringFlag{
	Name:  "store-dir",
	Usage: "Directory for the bbolt-backed dictionary store. Empty uses an in-memory store.",
}

var metricsBindFlag = &cli.StringFlag{
	Name:  "metrics",
	Usage: "Bind address for the Prometheus metrics server. Disabled if unset.",
}

var workersFlag = &cli.IntFlag{
	Name:  "workers",
	Usage: "Size of the decrypt/verify worker pool. Defaults to the number of cores.",
}

func banner() {
	fmt.Printf("xaynet-coordinator %s (date %s, commit %s)\n", version, buildDate, gitCommit)
}

func startCmd(c *cli.Context) error {
	l := log.DefaultLogger()

	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	identity, err := key.LoadIdentity(c.String(identityFlag.Name))
	if err != nil {
		return fmt.Errorf("start: loading identity, run 'keygen' first: %w", err)
	}

	var st store.Store
	if dir := c.String(storeDirFlag.Name); dir != "" {
		st, err = store.NewBoltStore(fs.CreateSecureFolder(dir))
		if err != nil {
			return fmt.Errorf("start: opening store: %w", err)
		}
	} else {
		st = store.NewMemoryStore()
	}

	round := pet.NewRound(l.Named("pet"), clock.NewRealClock(), cfg.Pet, st, identity)

	reassembler, err := codec.NewReassembler(4096, 5*time.Minute)
	if err != nil {
		return fmt.Errorf("start: building reassembler: %w", err)
	}
	pipeline := request.NewPipeline(l.Named("request"), round, reassembler, c.Int(workersFlag.Name))
	server := httpapi.NewServer(l.Named("httpapi"), round, pipeline)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go round.Run(ctx)

	if bind := c.String(metricsBindFlag.Name); bind != "" {
		metrics.Start(bind, http.NotFoundHandler())
	}

	httpServer := &http.Server{Addr: cfg.BindAddress, Handler: server}
	errCh := make(chan error, 1)
	go func() {
		l.Infow("listening", "addr", cfg.BindAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		l.Errorw("http server failed", "err", err)
	}

	round.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

func keygenCmd(c *cli.Context) error {
	path := c.String(identityFlag.Name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("keygen: %s already exists, remove it before generating a new identity", path)
	}

	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond)
	s.Suffix = " generating identity key pair..."
	s.Start()
	kp, err := key.NewSigningKeyPair()
	s.Stop()
	if err != nil {
		return fmt.Errorf("keygen: %w", err)
	}

	if err := key.SaveIdentity(path, kp); err != nil {
		return fmt.Errorf("keygen: %w", err)
	}

	out, err := json.Marshal(map[string]string{"public_key": kp.Public.String()})
	if err != nil {
		return fmt.Errorf("keygen: %w", err)
	}
	fmt.Printf("saved identity to %s\n%s\n", path, out)
	return nil
}

func showParamsCmd(c *cli.Context) error {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return fmt.Errorf("show-params: %w", err)
	}

	out, err := json.Marshal(map[string]interface{}{
		"sum_prob":     cfg.Pet.SumProb,
		"update_prob":  cfg.Pet.UpdateProb,
		"model_length": cfg.Pet.ModelLength,
		"bind_address": cfg.BindAddress,
	})
	if err != nil {
		return fmt.Errorf("show-params: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	app := cli.NewApp()
	cli.VersionPrinter = func(c *cli.Context) { banner() }
	app.Version = version
	app.Usage = "privacy-preserving federated learning coordinator"
	app.Commands = []*cli.Command{
		{
			Name:  "start",
			Usage: "Start the coordinator daemon.",
			Flags: []cli.Flag{configFlag, identityFlag, storeDirFlag, metricsBindFlag, workersFlag},
			Action: func(c *cli.Context) error {
				banner()
				return startCmd(c)
			},
		},
		{
			Name:  "keygen",
			Usage: "Generate the coordinator's long-lived identity key pair.",
			Flags: []cli.Flag{identityFlag},
			Action: func(c *cli.Context) error {
				banner()
				return keygenCmd(c)
			},
		},
		{
			Name:  "show-params",
			Usage: "Print the effective configuration after validation.",
			Flags: []cli.Flag{configFlag},
			Action: func(c *cli.Context) error {
				return showParamsCmd(c)
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
