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

package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// EscrowABI is the subset of the milestone escrow contract the service reads
// and encodes against.
const EscrowABI = `[
  {"type":"function","name":"createProject","stateMutability":"nonpayable",
   "inputs":[{"name":"_projectId","type":"string"},{"name":"_ngoAddress","type":"address"},{"name":"_multisigWallet","type":"address"},{"name":"_milestoneAmounts","type":"uint256[]"}],
   "outputs":[{"name":"projectIndex","type":"uint256"}]},
  {"type":"function","name":"depositFunds","stateMutability":"payable",
   "inputs":[{"name":"_projectIndex","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"submitMilestone","stateMutability":"nonpayable",
   "inputs":[{"name":"_projectIndex","type":"uint256"},{"name":"_milestoneIndex","type":"uint256"},{"name":"_proofHash","type":"string"}],"outputs":[]},
  {"type":"function","name":"approveMilestone","stateMutability":"nonpayable",
   "inputs":[{"name":"_projectIndex","type":"uint256"},{"name":"_milestoneIndex","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"releaseFunds","stateMutability":"nonpayable",
   "inputs":[{"name":"_projectIndex","type":"uint256"},{"name":"_milestoneIndex","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getProject","stateMutability":"view",
   "inputs":[{"name":"_projectIndex","type":"uint256"}],
   "outputs":[{"name":"ngoAddress","type":"address"},{"name":"projectId","type":"string"},{"name":"multisigWallet","type":"address"},{"name":"totalFunded","type":"uint256"},{"name":"milestoneCount","type":"uint256"},{"name":"active","type":"bool"}]},
  {"type":"function","name":"getMilestone","stateMutability":"view",
   "inputs":[{"name":"_projectIndex","type":"uint256"},{"name":"_milestoneIndex","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"amount","type":"uint256"},{"name":"fundedAmount","type":"uint256"},{"name":"state","type":"uint8"},{"name":"proofHash","type":"string"},
     {"name":"submissionTime","type":"uint256"},{"name":"approvalTime","type":"uint256"},{"name":"disputeWindowEnd","type":"uint256"},{"name":"released","type":"bool"}]}]},
  {"type":"function","name":"getProjectByProjectId","stateMutability":"view",
   "inputs":[{"name":"_projectId","type":"string"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// WalletABI is the M-of-N treasury wallet.
const WalletABI = `[
  {"type":"function","name":"proposeTransaction","stateMutability":"nonpayable",
   "inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"},{"name":"_data","type":"bytes"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approveTransaction","stateMutability":"nonpayable",
   "inputs":[{"name":"_txId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"executeTransaction","stateMutability":"nonpayable",
   "inputs":[{"name":"_txId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getTransaction","stateMutability":"view",
   "inputs":[{"name":"_txId","type":"uint256"}],
   "outputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"executed","type":"bool"},{"name":"approvalCount","type":"uint256"}]},
  {"type":"function","name":"transactionCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getOwners","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"requiredApprovals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"isApprovedBy","stateMutability":"view",
   "inputs":[{"name":"_txId","type":"uint256"},{"name":"_owner","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"event","name":"TransactionProposed","anonymous":false,
   "inputs":[{"name":"txId","type":"uint256","indexed":true},{"name":"proposer","type":"address","indexed":true},{"name":"to","type":"address","indexed":false},{"name":"value","type":"uint256","indexed":false},{"name":"data","type":"bytes","indexed":false}]},
  {"type":"event","name":"TransactionApproved","anonymous":false,
   "inputs":[{"name":"txId","type":"uint256","indexed":true},{"name":"approver","type":"address","indexed":true},{"name":"approvalCount","type":"uint256","indexed":false},{"name":"requiredApprovals","type":"uint256","indexed":false}]},
  {"type":"event","name":"TransactionExecuted","anonymous":false,
   "inputs":[{"name":"txId","type":"uint256","indexed":true},{"name":"executor","type":"address","indexed":true},{"name":"to","type":"address","indexed":false},{"name":"value","type":"uint256","indexed":false}]},
  {"type":"event","name":"Deposit","anonymous":false,
   "inputs":[{"name":"sender","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false},{"name":"balance","type":"uint256","indexed":false}]}
]`

var (
	escrowABI = mustParseABI(EscrowABI)
	walletABI = mustParseABI(WalletABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
