/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/blnkfinance/pledge"
	"github.com/blnkfinance/pledge/config"
	"github.com/blnkfinance/pledge/database"
	"github.com/blnkfinance/pledge/internal/cache"
	redlock "github.com/blnkfinance/pledge/internal/lock"
	"github.com/blnkfinance/pledge/internal/notification"
	redis_db "github.com/blnkfinance/pledge/internal/redis-db"
	"github.com/blnkfinance/pledge/ledger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	lockTimeout   = 30 * time.Second
	lockWait      = 10 * time.Second
	localCacheTTL = 5 * time.Second
)

// Pledge is the CLI application.
type Pledge struct {
	cmd *cobra.Command
}

// pledgeInstance holds what preRun builds for the subcommands.
type pledgeInstance struct {
	pledge *pledge.Pledge
	queue  *pledge.Queue
	cnf    *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

func preRun(app *pledgeInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			log.Fatal("error loading config ", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		p, q, err := setupPledge(cmd.Context(), cnf)
		if err != nil {
			notification.New(cnf.Notification).NotifyError(err)
			log.Fatal(err)
		}

		app.pledge = p
		app.queue = q
		app.cnf = cnf
		return nil
	}
}

// setupPledge connects the mirror store, the ledger, redis locks, the audit
// cache and the task queue.
func setupPledge(ctx context.Context, cfg *config.Configuration) (*pledge.Pledge, *pledge.Queue, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ds, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting datasource: %v", err)
	}

	gw, err := ledger.Dial(ctx, cfg.Ledger.RPCUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to ledger: %v", err)
	}
	gw.WithPollInterval(cfg.Ledger.ReceiptPollInterval())
	if err := gw.VerifyChain(ctx, cfg.Ledger.ChainID); err != nil {
		return nil, nil, err
	}

	rc, err := redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to redis: %v", err)
	}

	q, err := pledge.NewQueue(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating queue: %v", err)
	}

	opts := pledge.OptionsFromConfig(cfg)
	opts.Cache = cache.NewRedisCache(rc.Client(), localCacheTTL)
	opts.Queue = q

	locker := redlock.NewManager(rc.Client(), "pledge:lock:", lockTimeout, lockWait)
	return pledge.New(ds, gw, locker, opts), q, nil
}

func NewCLI() *Pledge {
	var configFile string
	p := &pledgeInstance{}

	var rootCmd = &cobra.Command{
		Use:   "pledge",
		Short: "Milestone escrow coordinator",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./pledge.json", "configuration file")
	rootCmd.PersistentPreRunE = preRun(p, &configFile)

	rootCmd.AddCommand(serverCommands(p))
	rootCmd.AddCommand(workerCommands(p))
	rootCmd.AddCommand(migrateCommands(p))
	rootCmd.AddCommand(syncCommands(p))
	rootCmd.AddCommand(multisigCommands(p))
	rootCmd.AddCommand(configCommands())

	return &Pledge{cmd: rootCmd}
}

func (w Pledge) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
