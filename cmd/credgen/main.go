// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jontk/slurm-cred/cred"
	"github.com/jontk/slurm-cred/internal/versioning"
	"github.com/spf13/cobra"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = ""
	Commit    = ""

	signingKey  string
	uid         uint32
	gid         uint32
	jobID       uint32
	stepID      uint32
	jobHostlist string
	nhosts      uint32
	sockets     uint32
	cores       uint32
	repCount    uint32
	memMB       uint64
	outputFmt   string

	rootCmd = &cobra.Command{
		Use:     "credgen",
		Short:   "Create, verify and project Slurm-style job credentials",
		Long:    `A command-line tool for exercising the credential subsystem: create a signed credential, verify one, or project a job's allocation onto a node.`,
		Version: Version,
	}
)

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime)

	rootCmd.PersistentFlags().StringVar(&signingKey, "signing-key", "", "HMAC signing key (env: CREDGEN_SIGNING_KEY)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "json", "Output format: json, raw")

	if env := os.Getenv("CREDGEN_SIGNING_KEY"); env != "" && signingKey == "" {
		signingKey = env
	}

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create and sign a single-shape job credential",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, err := newContext()
		if err != nil {
			return err
		}

		args := &cred.JobCredArgs{
			UID:              uid,
			GID:              gid,
			Step:             cred.StepID{JobID: jobID, StepID: stepID},
			JobHostlist:      jobHostlist,
			StepHostlist:     jobHostlist,
			JobNHosts:        nhosts,
			SocketsPerNode:   []uint32{sockets},
			CoresPerSocket:   []uint32{cores},
			SockCoreRepCount: []uint32{repCount},
			JobMemAlloc:      []uint64{memMB},
			JobMemAllocRepCount: []uint32{nhosts},
		}

		created, err := cred.Create(ctx, args, true, versioning.Latest())
		if err != nil {
			return fmt.Errorf("create: %w", err)
		}

		buf, sig, err := created.Pack(versioning.Latest())
		if err != nil {
			return fmt.Errorf("pack: %w", err)
		}

		return emit(map[string]string{
			"buffer":    base64.StdEncoding.EncodeToString(buf),
			"signature": base64.StdEncoding.EncodeToString(sig),
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <buffer-b64> <signature-b64>",
	Short: "Unpack and verify a packed job credential",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := newContext()
		if err != nil {
			return err
		}

		buf, err := base64.StdEncoding.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("decode buffer: %w", err)
		}
		sig, err := base64.StdEncoding.DecodeString(args[1])
		if err != nil {
			return fmt.Errorf("decode signature: %w", err)
		}

		unpacked, err := cred.Unpack(ctx, buf, sig)
		if err != nil {
			return fmt.Errorf("unpack: %w", err)
		}

		credArgs, release, err := unpacked.Verify(ctx)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		defer release()

		return emit(map[string]any{
			"verified": unpacked.IsVerified(),
			"ctime":    unpacked.CTime().Format(time.RFC3339),
			"uid":      credArgs.UID,
			"gid":      credArgs.GID,
			"job_id":   credArgs.Step.JobID,
		})
	},
}

var projectCmd = &cobra.Command{
	Use:   "project <buffer-b64> <signature-b64> <node>",
	Short: "Project a job's allocation onto one node",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := newContext()
		if err != nil {
			return err
		}

		buf, err := base64.StdEncoding.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("decode buffer: %w", err)
		}
		sig, err := base64.StdEncoding.DecodeString(args[1])
		if err != nil {
			return fmt.Errorf("decode signature: %w", err)
		}

		unpacked, err := cred.Unpack(ctx, buf, sig)
		if err != nil {
			return fmt.Errorf("unpack: %w", err)
		}

		credArgs, release, err := unpacked.Verify(ctx)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		defer release()

		alloc, err := cred.Project(credArgs, args[2])
		if err != nil {
			return fmt.Errorf("project: %w", err)
		}

		return emit(alloc)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Printf("credgen version %s\n", Version)
		if BuildTime != "" {
			fmt.Printf("Build Time: %s\n", BuildTime)
		}
		if Commit != "" {
			fmt.Printf("Commit:     %s\n", Commit)
		}
	},
}

func newContext() (*cred.Context, error) {
	if strings.TrimSpace(signingKey) == "" {
		return nil, fmt.Errorf("--signing-key (or CREDGEN_SIGNING_KEY) is required")
	}
	backend, err := cred.NewJWTBackend([]byte(signingKey))
	if err != nil {
		return nil, err
	}
	ctx := cred.NewContext()
	if err := ctx.Init(backend, "", ""); err != nil {
		return nil, err
	}
	return ctx, nil
}

func emit(v any) error {
	if outputFmt == "raw" {
		fmt.Printf("%+v\n", v)
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	createCmd.Flags().Uint32Var(&uid, "uid", 0, "principal uid")
	createCmd.Flags().Uint32Var(&gid, "gid", 0, "principal gid")
	createCmd.Flags().Uint32Var(&jobID, "job-id", 0, "job id")
	createCmd.Flags().Uint32Var(&stepID, "step-id", 0, "step id")
	createCmd.Flags().StringVar(&jobHostlist, "hostlist", "", "job hostlist, e.g. n[1-4]")
	createCmd.Flags().Uint32Var(&nhosts, "nhosts", 0, "number of nodes in the job")
	createCmd.Flags().Uint32Var(&sockets, "sockets-per-node", 1, "sockets per node")
	createCmd.Flags().Uint32Var(&cores, "cores-per-socket", 1, "cores per socket")
	createCmd.Flags().Uint32Var(&repCount, "rep-count", 1, "sock/core shape run length, in nodes")
	createCmd.Flags().Uint64Var(&memMB, "mem-mb", 0, "memory allocation, megabytes")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
