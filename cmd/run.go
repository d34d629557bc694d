package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/izwi-audio/izwi-core/engine"
)

var (
	configPath string

	flagBlockSize        int
	flagMaxBlocks        int
	flagMaxBatchSize     int
	flagMaxTokensPerStep int
	flagPolicy           string
	flagEnablePreemption bool
	flagNumRequests      int
	flagArrivalRate      float64
	flagPromptTokensMean int
	flagMaxTokensMean    int
	flagSeed             int64
	flagMaxSteps         int64
	flagLogLevel         string
)

var rootCmd = &cobra.Command{
	Use:   "izwi-core",
	Short: "Request scheduler and paged KV-cache core for audio inference serving",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay a synthetic workload through the scheduling engine",
	RunE:  runRun,
}

// Execute runs the CLI's root command and returns its error; main exits
// non-zero when it is non-nil.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Optional YAML config bundle (kv_cache/schedule/workload sections)")

	runCmd.Flags().IntVar(&flagBlockSize, "block-size", 16, "Tokens per KV cache block")
	runCmd.Flags().IntVar(&flagMaxBlocks, "max-blocks", 256, "Total KV cache blocks in the pool")
	runCmd.Flags().IntVar(&flagMaxBatchSize, "max-batch", 32, "Maximum requests scheduled per step")
	runCmd.Flags().IntVar(&flagMaxTokensPerStep, "max-tokens-per-step", 2048, "Token budget per scheduling step")
	runCmd.Flags().StringVar(&flagPolicy, "policy", engine.PolicyFCFS, "Waiting-queue policy: fcfs or priority")
	runCmd.Flags().BoolVar(&flagEnablePreemption, "enable-preemption", false, "Allow eviction of running requests to admit a new one")
	runCmd.Flags().IntVar(&flagNumRequests, "num-requests", 100, "Number of synthetic requests to generate")
	runCmd.Flags().Float64Var(&flagArrivalRate, "arrival-rate", 0.2, "Poisson arrival rate in requests/step")
	runCmd.Flags().IntVar(&flagPromptTokensMean, "prompt-tokens-mean", 128, "Mean synthetic prompt length")
	runCmd.Flags().IntVar(&flagMaxTokensMean, "max-tokens-mean", 64, "Mean synthetic generation budget")
	runCmd.Flags().Int64Var(&flagSeed, "seed", 1, "Workload RNG seed")
	runCmd.Flags().Int64Var(&flagMaxSteps, "max-steps", 10000, "Upper bound on scheduling steps before giving up")
	runCmd.Flags().StringVar(&flagLogLevel, "log", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	level, err := logrus.ParseLevel(flagLogLevel)
	if err != nil {
		logrus.Fatalf("invalid log level: %s", flagLogLevel)
	}
	logrus.SetLevel(level)

	bundle := &ConfigBundle{}
	if configPath != "" {
		loaded, err := LoadConfigBundle(configPath)
		if err != nil {
			return err
		}
		bundle = loaded
	}

	cfg := bundle.EngineConfig()
	overlayFlags(cmd, &cfg)

	if bundle.Workload.NumRequests == 0 {
		bundle.Workload = flagsToWorkload()
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	metrics := engine.NewMetrics(prometheus.NewRegistry())

	policy := cfg.Policy
	if policy == "" {
		policy = engine.PolicyFCFS
	}
	logrus.Infof("starting run: %d blocks of %d tokens, policy=%s, preemption=%v",
		cfg.MaxBlocks, cfg.BlockSize, policy, cfg.EnablePreemption)

	drive(eng, metrics, bundle.Workload, flagMaxSteps)
	return nil
}

// overlayFlags applies any CLI flag that was explicitly set, so a bundle
// loaded from YAML can still be overridden at the command line.
func overlayFlags(cmd *cobra.Command, cfg *engine.Config) {
	flags := cmd.Flags()
	if flags.Changed("block-size") || cfg.BlockSize == 0 {
		cfg.BlockSize = flagBlockSize
	}
	if flags.Changed("max-blocks") || cfg.MaxBlocks == 0 {
		cfg.MaxBlocks = flagMaxBlocks
	}
	if flags.Changed("max-batch") || cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = flagMaxBatchSize
	}
	if flags.Changed("max-tokens-per-step") || cfg.MaxTokensPerStep == 0 {
		cfg.MaxTokensPerStep = flagMaxTokensPerStep
	}
	if flags.Changed("policy") || cfg.Policy == "" {
		cfg.Policy = flagPolicy
	}
	if flags.Changed("enable-preemption") {
		cfg.EnablePreemption = flagEnablePreemption
	}
	if cfg.NumLayers == 0 {
		cfg.NumLayers = 1
	}
	if cfg.NumHeads == 0 {
		cfg.NumHeads = 1
	}
	if cfg.HeadDim == 0 {
		cfg.HeadDim = 1
	}
	if cfg.DTypeBytes == 0 {
		cfg.DTypeBytes = 2
	}
}

func flagsToWorkload() WorkloadSection {
	return WorkloadSection{
		NumRequests:      flagNumRequests,
		ArrivalRate:      flagArrivalRate,
		PromptTokensMean: flagPromptTokensMean,
		MaxTokensMean:    flagMaxTokensMean,
		Seed:             flagSeed,
	}
}
