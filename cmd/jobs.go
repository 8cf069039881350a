package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lease-review/internal/jobfs"
	"github.com/sells-group/lease-review/internal/model"
)

// newJob registers a job, lays out its directory, stores the input
// document when one is supplied, and initializes the working state.
func newJob(ctx context.Context, env *appEnv, name string, input io.Reader) (*model.Job, error) {
	job, err := env.Store.CreateJob(ctx, name)
	if err != nil {
		return nil, err
	}

	paths := jobfs.For(cfg.Jobs.Root, job.ID)
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	if input != nil {
		f, err := os.Create(paths.InputPDF())
		if err != nil {
			return nil, eris.Wrap(err, "write input document")
		}
		if _, err := io.Copy(f, input); err != nil {
			f.Close()
			return nil, eris.Wrap(err, "write input document")
		}
		if err := f.Close(); err != nil {
			return nil, eris.Wrap(err, "write input document")
		}
	}
	if _, err := env.States.Init(job.ID); err != nil {
		return nil, err
	}

	if err := env.Audit.Append(job.ID, model.AuditEvent{
		Action:   "create_job",
		NewValue: name,
		Actor:    "system",
	}); err != nil {
		zap.L().Warn("audit append failed", zap.String("job_id", job.ID), zap.Error(err))
	}

	zap.L().Info("job created", zap.String("job_id", job.ID), zap.String("name", name))
	return job, nil
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage review jobs",
}

var jobsCreateName string

var jobsCreateCmd = &cobra.Command{
	Use:   "create <pdf>",
	Short: "Create a job from a lease PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open input document")
		}
		defer f.Close()

		name := jobsCreateName
		if name == "" {
			name = filepath.Base(args[0])
		}

		job, err := newJob(cmd.Context(), env, name, f)
		if err != nil {
			return err
		}
		fmt.Printf("created job %s (%s)\n", job.ID, job.Name)
		return nil
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		jobs, err := env.Store.ListJobs(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tLLM\tEXPORTED\tUPDATED")
		for _, j := range jobs {
			exported := "-"
			if j.ExportedAt != nil {
				exported = j.ExportedAt.Format("2006-01-02 15:04")
			}
			llmStatus := j.LLMStatus
			if llmStatus == "" {
				llmStatus = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				j.ID, j.Name, j.Status, llmStatus, exported,
				j.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job's stages and review progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Store.GetJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("job:    %s (%s)\n", job.ID, job.Name)
		fmt.Printf("status: %s\n", job.Status)
		if job.LastError != "" {
			fmt.Printf("error:  %s\n", job.LastError)
		}
		for _, stage := range model.Stages {
			st := job.Stage(stage)
			line := fmt.Sprintf("%s: %s", stage, st.Status)
			if st.Message != "" {
				line += " (" + st.Message + ")"
			}
			fmt.Println("  " + line)
		}

		progress, err := env.Gate.Progress(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("review: %d/%d fields reviewed\n", progress.Reviewed, progress.Total)
		return nil
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job and its working directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		jobID := args[0]
		job, err := env.Store.GetJob(cmd.Context(), jobID)
		if err != nil {
			return err
		}
		if job.Status == model.JobStatusRunning {
			return eris.New("job is running")
		}

		if err := jobfs.For(cfg.Jobs.Root, jobID).Remove(); err != nil {
			return err
		}
		if err := env.Store.DeleteJob(cmd.Context(), jobID); err != nil {
			return err
		}
		env.Locks.Forget(jobID)

		fmt.Printf("deleted job %s\n", jobID)
		return nil
	},
}

func init() {
	jobsCreateCmd.Flags().StringVar(&jobsCreateName, "name", "", "job display name (default: file name)")
	jobsCmd.AddCommand(jobsCreateCmd, jobsListCmd, jobsShowCmd, jobsDeleteCmd)
	rootCmd.AddCommand(jobsCmd)
}
