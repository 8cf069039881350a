package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/lease-review/internal/model"
)

var runModel string

var runCmd = &cobra.Command{
	Use:   "run <job-id>...",
	Short: "Run the full pipeline for one or more jobs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) > 1 {
			if err := env.Runner.RunBatch(cmd.Context(), args); err != nil {
				return err
			}
			for _, jobID := range args {
				job, err := env.Store.GetJob(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				printRunResult(job)
			}
			return nil
		}

		job, err := env.Runner.RunPipeline(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printRunResult(job)
		return nil
	},
}

var runStageCmd = &cobra.Command{
	Use:   "stage <job-id> <stage>",
	Short: "Run a single pipeline stage",
	Long:  "Runs one stage (stage1, stage2, or stage3) and resets everything downstream of it.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Runner.RunStage(cmd.Context(), args[0], args[1], runModel)
		if err != nil {
			return err
		}
		printRunResult(job)
		return nil
	},
}

func printRunResult(job *model.Job) {
	fmt.Printf("%s: %s\n", job.ID, job.Status)
	for _, stage := range model.Stages {
		st := job.Stage(stage)
		line := fmt.Sprintf("  %s: %s", stage, st.Status)
		if st.Message != "" {
			line += " (" + st.Message + ")"
		}
		fmt.Println(line)
	}
	if job.LLMStatus == model.LLMStatusUnavailable {
		fmt.Println("  llm fallback unavailable, stage 2 output stands")
	}
	if job.LastError != "" {
		fmt.Println("  error: " + job.LastError)
	}
}

func init() {
	runStageCmd.Flags().StringVar(&runModel, "model", "", "LLM model override for stage3")
	runCmd.AddCommand(runStageCmd)
	rootCmd.AddCommand(runCmd)
}
