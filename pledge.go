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

package pledge

import (
	"context"
	"time"

	"github.com/blnkfinance/pledge/config"
	"github.com/blnkfinance/pledge/database"
	"github.com/blnkfinance/pledge/internal/cache"
	"github.com/blnkfinance/pledge/internal/notification"
	"github.com/blnkfinance/pledge/ledger"
	"github.com/blnkfinance/pledge/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("pledge")

// Locker serializes mutations of one entity. Different keys never contend.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// ApprovalPolicy decides whether caller may request a milestone approval
// proposal.
type ApprovalPolicy func(caller model.Caller) bool

// AllowAnyCaller accepts every authenticated caller.
func AllowAnyCaller() ApprovalPolicy {
	return func(model.Caller) bool { return true }
}

// RestrictToOwners accepts callers whose wallet or id is one of owners.
func RestrictToOwners(owners []string) ApprovalPolicy {
	set := make([]string, len(owners))
	copy(set, owners)
	return func(caller model.Caller) bool {
		for _, o := range set {
			if o == "" {
				continue
			}
			if model.SameAddress(o, caller.Wallet) || model.SameAddress(o, caller.ID) {
				return true
			}
		}
		return false
	}
}

// Options is the immutable configuration of the engines.
type Options struct {
	EscrowAddress       string
	MultisigAddress     string
	ReceiptTimeout      time.Duration
	AuditLookbackBlocks uint64
	AuditCacheTTL       time.Duration
	ApprovalPolicy      ApprovalPolicy
	Now                 func() time.Time
	Cache               cache.Cache
	Queue               *Queue
	Notifier            *notification.Notifier
}

// OptionsFromConfig builds Options from a loaded configuration. Cache, Queue
// and Notifier are left for the caller to attach.
func OptionsFromConfig(cfg *config.Configuration) Options {
	policy := RestrictToOwners(cfg.Governance.ProtocolOwners)
	if cfg.Governance.AllowAnyApprover {
		policy = AllowAnyCaller()
	}
	return Options{
		EscrowAddress:       cfg.Ledger.EscrowAddress,
		MultisigAddress:     cfg.Ledger.MultisigAddress,
		ReceiptTimeout:      cfg.Ledger.ReceiptTimeout(),
		AuditLookbackBlocks: cfg.Ledger.AuditLookbackBlocks,
		ApprovalPolicy:      policy,
		Notifier:            notification.New(cfg.Notification),
	}
}

// Pledge holds the lifecycle, multisig coordination and reconciliation
// engines. It is safe for concurrent use.
type Pledge struct {
	datasource database.IDataSource
	gateway    ledger.Gateway
	locker     Locker
	opts       Options
}

// New builds a Pledge over a mirror store, a ledger gateway and a per-entity
// locker. Zero options take the config defaults, and a nil ApprovalPolicy
// accepts any caller with the approver role.
func New(ds database.IDataSource, gw ledger.Gateway, locker Locker, opts Options) *Pledge {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = time.Duration(config.DEFAULT_RECEIPT_TIMEOUT_SEC) * time.Second
	}
	if opts.AuditLookbackBlocks == 0 {
		opts.AuditLookbackBlocks = config.DEFAULT_AUDIT_LOOKBACK_BLOCKS
	}
	if opts.AuditCacheTTL <= 0 {
		opts.AuditCacheTTL = 30 * time.Second
	}
	if opts.ApprovalPolicy == nil {
		opts.ApprovalPolicy = func(caller model.Caller) bool { return caller.Is(model.RoleApprover) }
	}
	return &Pledge{datasource: ds, gateway: gw, locker: locker, opts: opts}
}

func (p *Pledge) now() time.Time {
	return p.opts.Now().UTC()
}

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

func projectLockKey(id string) string {
	return "project:" + id
}

func multisigLockKey(wallet, id string) string {
	return "multisig:" + model.NormalizeAddress(wallet) + ":" + id
}
