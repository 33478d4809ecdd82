package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/memorybank/internal/analysis"
	"github.com/odvcencio/memorybank/internal/auth"
	"github.com/odvcencio/memorybank/internal/config"
	"github.com/odvcencio/memorybank/internal/service"
)

func initCmd(configPath *string) *cobra.Command {
	var root, repo, branch string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the memory bank database for a project and repository branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()
			return runInit(cmd.Context(), a, cmd.OutOrStdout(), root, repo, branch)
		},
	}
	cmd.Flags().StringVar(&root, "root", ".", "project root")
	cmd.Flags().StringVar(&repo, "repo", "", "repository name")
	cmd.Flags().StringVar(&branch, "branch", "main", "branch name")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

func runInit(ctx context.Context, a *app, w io.Writer, root, repo, branch string) error {
	root, err := absRoot(root)
	if err != nil {
		return err
	}
	res, err := a.svc.Metadata().InitMemoryBank(ctx, root, repo, branch)
	if err != nil {
		return err
	}
	return writeJSON(w, res)
}

type analyzeFlags struct {
	root, repo, branch string
	projection         string
	nodeKinds          []string
	relKinds           []string
	damping            float64
	maxIterations      int
	tolerance          float64
	k                  int
	maxPhases          int
	start, end         string
	maxHops            int
}

func analyzeCmd(configPath *string) *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze <algorithm>",
		Short: "Run a graph algorithm on one repository branch",
		Long: `Run a graph algorithm on one repository branch and print the tagged result.

Algorithms: pagerank, kcore, louvain, scc, wcc, shortest_path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := f.request(cmd, args[0])
			a, err := loadApp(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()
			return runAnalyze(cmd.Context(), a, cmd.OutOrStdout(), f.root, req)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.root, "root", ".", "project root")
	fl.StringVar(&f.repo, "repo", "", "repository name")
	fl.StringVar(&f.branch, "branch", "main", "branch name")
	fl.StringVar(&f.projection, "projection", "", "projected graph name (generated when empty)")
	fl.StringSliceVar(&f.nodeKinds, "node-kinds", nil, "node tables to project")
	fl.StringSliceVar(&f.relKinds, "rel-kinds", nil, "relationship tables to project")
	fl.Float64Var(&f.damping, "damping", 0, "pagerank damping factor")
	fl.IntVar(&f.maxIterations, "max-iterations", 0, "pagerank and louvain iteration limit")
	fl.Float64Var(&f.tolerance, "tolerance", 0, "pagerank convergence tolerance")
	fl.IntVar(&f.k, "k", 0, "kcore minimum degree (required for kcore)")
	fl.IntVar(&f.maxPhases, "max-phases", 0, "louvain phase limit")
	fl.StringVar(&f.start, "start", "", "shortest path start node id")
	fl.StringVar(&f.end, "end", "", "shortest path end node id")
	fl.IntVar(&f.maxHops, "max-hops", 0, "shortest path hop limit")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

// request builds the service request. Optional tuning values are only set
// when their flag was given so the configured defaults apply otherwise.
func (f *analyzeFlags) request(cmd *cobra.Command, algorithm string) service.BatchRequest {
	req := service.BatchRequest{
		Algorithm: algorithm,
		Scope: analysis.Scope{
			Repository:     f.repo,
			Branch:         f.branch,
			ProjectionName: f.projection,
			NodeKinds:      f.nodeKinds,
			RelKinds:       f.relKinds,
		},
		StartNodeID: f.start,
		EndNodeID:   f.end,
		MaxHops:     f.maxHops,
	}
	fl := cmd.Flags()
	if fl.Changed("damping") {
		req.DampingFactor = &f.damping
	}
	if fl.Changed("max-iterations") {
		req.MaxIterations = &f.maxIterations
	}
	if fl.Changed("tolerance") {
		req.Tolerance = &f.tolerance
	}
	if fl.Changed("max-phases") {
		req.MaxPhases = &f.maxPhases
	}
	if fl.Changed("k") {
		req.K = &f.k
	}
	return req
}

func runAnalyze(ctx context.Context, a *app, w io.Writer, root string, req service.BatchRequest) error {
	root, err := absRoot(root)
	if err != nil {
		return err
	}
	out, err := a.svc.Analysis().Run(ctx, root, req)
	if err != nil {
		return err
	}
	if err := writeJSON(w, out.Result); err != nil {
		return err
	}
	if out.Status == analysis.StatusError {
		return fmt.Errorf("%s failed: %s", out.Algorithm, out.Error)
	}
	return nil
}

func tokenCmd(configPath *string) *cobra.Command {
	var subject string
	var roots []string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token",
		Long: `Issue an API token signed with the configured secret.

Without --root the token covers every project root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runToken(cmd.OutOrStdout(), cfg, subject, roots)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().StringSliceVar(&roots, "root", nil, "project roots the token may access (repeatable)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func runToken(w io.Writer, cfg *config.Config, subject string, roots []string) error {
	if err := cfg.ValidateAuth(); err != nil {
		return err
	}
	dur, err := cfg.TokenDuration()
	if err != nil {
		return err
	}
	for i, root := range roots {
		abs, err := absRoot(root)
		if err != nil {
			return err
		}
		roots[i] = abs
	}
	token, err := auth.NewService(cfg.Auth.JWTSecret, dur).GenerateToken(subject, roots)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

func absRoot(root string) (string, error) {
	if root == "" {
		return os.Getwd()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve project root %q: %w", root, err)
	}
	return abs, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
