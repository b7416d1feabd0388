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

	"github.com/blnkfinance/pledge/model"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MilestoneState is the ledger view of one milestone, or the error that
// prevented reading it.
type MilestoneState struct {
	Index   int                     `json:"index"`
	OnChain *model.OnChainMilestone `json:"on_chain,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

type ProjectState struct {
	Project      *model.Project        `json:"project"`
	OnChainState *model.OnChainProject `json:"on_chain_state"`
	Error        string                `json:"error,omitempty"`
	Milestones   []MilestoneState      `json:"milestones_state"`
}

// GetProjectState returns the mirror next to live ledger reads. Ledger
// failures are reported per entry and never fail the call. Nothing is written.
func (p *Pledge) GetProjectState(ctx context.Context, projectID string) (*ProjectState, error) {
	ctx, span := tracer.Start(ctx, "GetProjectState")
	defer span.End()

	project, err := p.datasource.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	state := &ProjectState{Project: project, Milestones: []MilestoneState{}}
	if !project.OnLedger() {
		return state, nil
	}
	index := *project.OnChainIndex

	onChain, err := p.gateway.ReadProject(ctx, project.EscrowAddress, index)
	if err != nil {
		span.RecordError(err)
		logrus.Errorf("error fetching on-chain state of project %s: %v", projectID, err)
		state.Error = err.Error()
	} else {
		state.OnChainState = onChain
	}

	state.Milestones = make([]MilestoneState, len(project.Milestones))
	var g errgroup.Group
	g.SetLimit(maxParallelReads)
	for i := range project.Milestones {
		i := i
		g.Go(func() error {
			entry := MilestoneState{Index: i}
			m, err := p.gateway.ReadMilestone(ctx, project.EscrowAddress, index, i)
			if err != nil {
				logrus.Errorf("error fetching milestone %d state of project %s: %v", i, projectID, err)
				entry.Error = err.Error()
			} else {
				entry.OnChain = m
			}
			state.Milestones[i] = entry
			return nil
		})
	}
	_ = g.Wait()
	return state, nil
}
