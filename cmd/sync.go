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
	"encoding/json"
	"fmt"
	"log"

	"github.com/blnkfinance/pledge"
	"github.com/spf13/cobra"
)

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		log.Fatalf("Error printing result: %v\n", err)
	}
	fmt.Println(string(data))
}

// syncCommands reconciles a project against a mined transaction from the
// command line, inline or through the worker queue.
func syncCommands(b *pledgeInstance) *cobra.Command {
	var (
		txHash    string
		kind      string
		milestone int
		async     bool
	)

	cmd := &cobra.Command{
		Use:   "sync <project-id>",
		Short: "reconcile a project with a mined ledger transaction",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			var idx *int
			if cmd.Flags().Changed("milestone") {
				idx = &milestone
			}

			if async {
				info, err := b.queue.EnqueueSync(ctx, pledge.SyncTask{ProjectID: args[0], TxHash: txHash, Kind: kind, MilestoneIndex: idx})
				if err != nil {
					log.Fatal(err)
				}
				fmt.Printf("queued %s on %s\n", info.ID, info.Queue)
				return
			}

			result, err := b.pledge.SyncProject(ctx, args[0], txHash, pledge.SyncOptions{Kind: kind, MilestoneIndex: idx})
			if err != nil {
				log.Fatal(err)
			}
			printJSON(result)
		},
	}

	cmd.Flags().StringVar(&txHash, "tx-hash", "", "hash of the mined transaction")
	cmd.Flags().StringVar(&kind, "kind", "", "create, deposit, submit, approve or release")
	cmd.Flags().IntVar(&milestone, "milestone", 0, "milestone index the transaction acted on")
	cmd.Flags().BoolVar(&async, "async", false, "queue the reconciliation for the workers")
	_ = cmd.MarkFlagRequired("tx-hash")

	return cmd
}

// multisigCommands inspects the treasury wallet and reconciles its
// transactions.
func multisigCommands(b *pledgeInstance) *cobra.Command {
	var wallet string

	cmd := &cobra.Command{
		Use:   "multisig",
		Short: "inspect and reconcile the multisig treasury",
	}
	cmd.PersistentFlags().StringVar(&wallet, "wallet", "", "wallet address, defaults to the configured treasury")

	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "show owners, threshold, balance and transaction count",
		Run: func(cmd *cobra.Command, args []string) {
			info, err := b.pledge.GetWalletInfo(context.Background(), wallet)
			if err != nil {
				log.Fatal(err)
			}
			printJSON(info)
		},
	})

	var lookback uint64
	audit := &cobra.Command{
		Use:   "audit",
		Short: "list wallet events over the recent block window",
		Run: func(cmd *cobra.Command, args []string) {
			trail, err := b.pledge.GetAuditTrail(context.Background(), wallet, lookback)
			if err != nil {
				log.Fatal(err)
			}
			printJSON(trail)
		},
	}
	audit.Flags().Uint64Var(&lookback, "lookback", 0, "number of blocks to scan back from the head")
	cmd.AddCommand(audit)

	var txHash string
	sync := &cobra.Command{
		Use:   "sync <transaction-id>",
		Short: "reconcile a multisig transaction with the ledger",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			result, err := b.pledge.SyncTransaction(context.Background(), wallet, args[0], txHash)
			if err != nil {
				log.Fatal(err)
			}
			printJSON(result)
		},
	}
	sync.Flags().StringVar(&txHash, "tx-hash", "", "hash of the proposal or execution transaction")
	cmd.AddCommand(sync)

	return cmd
}
