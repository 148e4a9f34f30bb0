// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package gres projects a generic-resource specification string onto
// the typed list a job or job step credential carries (the
// gres_job_state/gres_step_state fields). A NULL (empty) input always
// yields a NULL (nil) output rather than an empty-but-non-nil slice,
// matching the pack/unpack NULL-in/NULL-out rule used throughout the wire format.
package gres

import (
	"fmt"
	"strconv"
	"strings"
)

// GRES is one generic-resource allocation: a name ("gpu"), an optional
// type qualifier ("tesla"), and a count.
type GRES struct {
	Name  string
	Type  string
	Count uint64
}

// ExtractJob parses a job-level gres specification such as
// "gpu:2,mps:tesla:1" into its typed list. An empty spec returns nil.
func ExtractJob(spec string) ([]GRES, error) {
	return parseList(spec)
}

// ExtractStep parses a step-level gres specification with the same
// grammar as ExtractJob. Steps and jobs share syntax but are kept as
// distinct entry points because a step's list is always a subset the
// caller must separately validate against its job's allocation.
func ExtractStep(spec string) ([]GRES, error) {
	return parseList(spec)
}

func parseList(spec string) ([]GRES, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	entries := strings.Split(spec, ",")
	list := make([]GRES, 0, len(entries))
	for _, entry := range entries {
		g, err := parseEntry(entry)
		if err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, nil
}

// parseEntry accepts "name", "name:count", or "name:type:count".
func parseEntry(entry string) (GRES, error) {
	fields := strings.Split(entry, ":")
	switch len(fields) {
	case 1:
		return GRES{Name: fields[0], Count: 1}, nil
	case 2:
		count, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return GRES{}, fmt.Errorf("gres: invalid count in %q: %w", entry, err)
		}
		return GRES{Name: fields[0], Count: count}, nil
	case 3:
		count, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return GRES{}, fmt.Errorf("gres: invalid count in %q: %w", entry, err)
		}
		return GRES{Name: fields[0], Type: fields[1], Count: count}, nil
	default:
		return GRES{}, fmt.Errorf("gres: malformed entry %q", entry)
	}
}

// Project extracts the slice of list relevant to hostIndex, preserving
// the "NULL inputs yield NULL outputs without error" rule.
// The per-node topology a real gres plugin would narrow this list by
// is an external collaborator this package does not model, so a
// non-empty list currently passes through unchanged; hostIndex is
// accepted for interface fidelity with that external projector and to
// keep the call site identical once one is wired in.
func Project(list []GRES, hostIndex int) []GRES {
	if len(list) == 0 {
		return nil
	}
	return list
}

// Total sums the count of every entry named name across the list,
// used when a job's total gres allocation must be checked against a
// step's requested subset.
func Total(list []GRES, name string) uint64 {
	var total uint64
	for _, g := range list {
		if g.Name == name {
			total += g.Count
		}
	}
	return total
}
