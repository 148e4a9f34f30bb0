// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package cred

import (
	"fmt"

	"github.com/jontk/slurm-cred/internal/gres"
	"github.com/jontk/slurm-cred/internal/hostlist"
)

// Allocation is the per-node slice of a job's global allocation the
// projector produces.
type Allocation struct {
	JobCores     string
	StepCores    string
	JobMemLimit  uint64
	StepMemLimit uint64
	JobGres      []gres.GRES
	StepGres     []gres.GRES
}

// Project localizes args onto node: the core bitmap slice belonging
// to node, the memory limit that applies to it, and its gres lists
// The caller must already hold the
// credential's read lock (e.g. via Verify's release function) for the
// duration of this call; Project itself takes no lock, it only reads
// args and copies what it needs.
func Project(args *JobCredArgs, node string) (*Allocation, error) {
	jobHosts, err := hostlist.Create(args.JobHostlist)
	if err != nil {
		return nil, fmt.Errorf("cred: parse job hostlist: %w", err)
	}
	hostIndex := jobHosts.Find(node)
	if hostIndex < 0 || hostIndex >= int(args.JobNHosts) {
		return nil, fmt.Errorf("cred: node %q not in job hostlist", node)
	}

	iFirst, iLast, err := coreBitRange(args, hostIndex)
	if err != nil {
		return nil, err
	}

	jobCores := ""
	if args.JobCoreBitmap != nil {
		jobCores = args.JobCoreBitmap.Slice(iFirst, iLast).Format()
	}
	stepCores := ""
	if args.StepCoreBitmap != nil {
		stepCores = args.StepCoreBitmap.Slice(iFirst, iLast).Format()
	}

	jobMemLimit, err := projectMem(args.JobMemAlloc, args.JobMemAllocRepCount, uint32(hostIndex), args.Step.IsBatchScript())
	if err != nil {
		return nil, fmt.Errorf("cred: project job memory: %w", err)
	}

	stepHostIndex := hostIndex
	if args.StepHostlist != args.JobHostlist && args.StepHostlist != "" {
		stepHosts, err := hostlist.Create(args.StepHostlist)
		if err != nil {
			return nil, fmt.Errorf("cred: parse step hostlist: %w", err)
		}
		stepHostIndex = stepHosts.Find(node)
		if stepHostIndex < 0 {
			return nil, fmt.Errorf("cred: node %q not in step hostlist", node)
		}
	}

	stepMemLimit, err := projectMem(args.StepMemAlloc, args.StepMemAllocRepCount, uint32(stepHostIndex), args.Step.IsBatchScript())
	if err != nil {
		return nil, fmt.Errorf("cred: project step memory: %w", err)
	}
	if stepMemLimit == 0 {
		stepMemLimit = jobMemLimit
	}

	return &Allocation{
		JobCores:     jobCores,
		StepCores:    stepCores,
		JobMemLimit:  jobMemLimit,
		StepMemLimit: stepMemLimit,
		JobGres:      gres.Project(args.JobGres, hostIndex),
		StepGres:     gres.Project(args.StepGres, hostIndex),
	}, nil
}

// coreBitRange walks the run-length shape arrays to find the
// half-open [first,last) slice of the global core bitmap belonging to
// hostIndex.
func coreBitRange(args *JobCredArgs, hostIndex int) (first, last int, err error) {
	host := hostIndex
	for k, rep := range args.SockCoreRepCount {
		perNode := int(args.SocketsPerNode[k]) * int(args.CoresPerSocket[k])
		if host+1 > int(rep) {
			first += perNode * int(rep)
			host -= int(rep)
			continue
		}
		first += perNode * host
		last = first + perNode
		return first, last, nil
	}
	return 0, 0, fmt.Errorf("cred: host index %d not covered by shape arrays", hostIndex)
}

// projectMem locates the rep-count slot covering nodeIndex and returns
// that slot's allocation value. A batch step always uses slot 0
// regardless of nodeIndex. An empty alloc/repCount pair
// yields 0, the "inherit" sentinel for step limits.
func projectMem(alloc []uint64, repCount []uint32, nodeIndex uint32, isBatch bool) (uint64, error) {
	if len(alloc) == 0 {
		return 0, nil
	}
	if isBatch {
		return alloc[0], nil
	}
	slot, ok := repCountIndex(repCount, nodeIndex)
	if !ok {
		return 0, fmt.Errorf("cred: node index %d not covered by memory rep-count array", nodeIndex)
	}
	if slot >= len(alloc) {
		return 0, fmt.Errorf("cred: memory rep-count slot %d out of range of alloc array", slot)
	}
	return alloc[slot], nil
}
