package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"voicestudio/internal/client"
	"voicestudio/internal/domain"
)

type globalFlags struct {
	server  string
	timeout time.Duration
}

func (g *globalFlags) client() *client.Client {
	return client.New(g.server, g.timeout)
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "genctl",
		Short:         "Drive long-form audio generation jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	server := os.Getenv("GENCTL_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	cmd.PersistentFlags().StringVar(&flags.server, "server", server, "API base URL (env GENCTL_SERVER)")
	cmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "per-request timeout")

	cmd.AddCommand(
		newStartCommand(flags),
		newStatusCommand(flags),
		newCancelCommand(flags),
		newQueueCommand(flags),
		newHistoryCommand(flags),
		newWatchCommand(flags),
		newDownloadCommand(flags),
	)
	return cmd
}

func newStartCommand(flags *globalFlags) *cobra.Command {
	var (
		voices  []string
		options string
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "start <project-id>",
		Short: "Start a generation for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := parseVoices(voices)
			if err != nil {
				return err
			}
			req := client.StartRequest{ProjectID: args[0], VoiceMapping: mapping}
			if options != "" {
				if !json.Valid([]byte(options)) {
					return errors.New("--options must be valid JSON")
				}
				req.Options = json.RawMessage(options)
			}

			c := flags.client()
			job, err := c.Start(cmd.Context(), req)
			if existing, ok := client.IsConflict(err); ok {
				return fmt.Errorf("project %s already has an active job %s", args[0], existing)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", job.ID)
			if watch {
				return runWatch(cmd, c, job.ID, time.Second, false)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&voices, "voice", nil, "speaker voice override, e.g. --voice 1=en-Carter_man")
	cmd.Flags().StringVar(&options, "options", "", "engine options as a JSON object")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "follow progress after starting")
	return cmd
}

func newStatusCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := flags.client().Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), job)
			return nil
		},
	}
}

func newCancelCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := flags.client().Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job.Status.Terminal() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", job.ID, job.Status)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancel requested for %s (%s)\n", job.ID, job.Status)
			return nil
		},
	}
}

func newQueueCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show queue depth and estimated wait",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			qs, err := flags.client().Queue(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "queued: %d\nactive: %d\n", qs.QueuedJobs, qs.ActiveJobs)
			if qs.EstimatedWait != nil {
				fmt.Fprintf(out, "estimated wait: %s\n", seconds(*qs.EstimatedWait))
			}
			return nil
		},
	}
}

func newHistoryCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history <project-id>",
		Short: "List a project's generations, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := flags.client().History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB\tSTATUS\tPROGRESS\tCREATED")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%.0f%%\t%s\n", j.ID, j.Status, j.Progress, j.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func newWatchCommand(flags *globalFlags) *cobra.Command {
	var (
		interval time.Duration
		plain    bool
	)
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Follow a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, flags.client(), args[0], interval, plain)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval")
	cmd.Flags().BoolVar(&plain, "plain", false, "print progress lines instead of the interactive view")
	return cmd
}

func newDownloadCommand(flags *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Save a completed job's audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = args[0] + ".wav"
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			n, err := flags.client().Download(cmd.Context(), args[0], f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(output)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default <job-id>.wav)")
	return cmd
}

func runWatch(cmd *cobra.Command, c *client.Client, jobID string, interval time.Duration, plain bool) error {
	var (
		job *client.Job
		err error
	)
	if plain {
		out := cmd.OutOrStdout()
		job, err = c.Watch(cmd.Context(), jobID, interval, func(j *client.Job) {
			fmt.Fprintln(out, progressLine(j))
		})
	} else {
		job, err = watchInteractive(cmd.Context(), c, jobID, interval)
	}
	if err != nil {
		return err
	}
	return jobOutcome(job)
}

func jobOutcome(job *client.Job) error {
	if job == nil {
		return nil
	}
	switch job.Status {
	case domain.JobStatusFailed:
		return fmt.Errorf("job %s failed: %s", job.ID, job.ErrorMessage)
	case domain.JobStatusCancelled:
		return fmt.Errorf("job %s was cancelled", job.ID)
	}
	return nil
}

func printJob(w io.Writer, j *client.Job) {
	fmt.Fprintf(w, "job:      %s\nproject:  %s\nstatus:   %s\nprogress: %.1f%%\n", j.ID, j.ProjectID, j.Status, j.Progress)
	if j.TotalChunks > 0 {
		fmt.Fprintf(w, "chunk:    %d/%d (%.0f%%)\n", min(j.CurrentChunk+1, j.TotalChunks), j.TotalChunks, j.ChunkProgress)
	}
	if eta := j.ETA(); eta > 0 && !j.Status.Terminal() {
		fmt.Fprintf(w, "eta:      %s\n", eta.Round(time.Second))
	}
	if j.CancelRequested && !j.Status.Terminal() {
		fmt.Fprintln(w, "cancel:   requested")
	}
	if j.ErrorMessage != "" {
		fmt.Fprintf(w, "error:    %s\n", j.ErrorMessage)
	}
	if j.AudioDuration != nil {
		fmt.Fprintf(w, "duration: %s\n", time.Duration(*j.AudioDuration)*time.Second)
	}
	if j.DownloadURL != "" {
		fmt.Fprintf(w, "download: %s\n", j.DownloadURL)
	}
}

func progressLine(j *client.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-13s %5.1f%%", j.Status, j.Progress)
	if j.TotalChunks > 0 {
		fmt.Fprintf(&b, "  chunk %d/%d", min(j.CurrentChunk+1, j.TotalChunks), j.TotalChunks)
	}
	if eta := j.ETA(); eta > 0 && !j.Status.Terminal() {
		fmt.Fprintf(&b, "  eta %s", eta.Round(time.Second))
	}
	return b.String()
}

// parseVoices reads "speaker=voice" pairs.
func parseVoices(pairs []string) (domain.VoiceMapping, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(domain.VoiceMapping, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("invalid --voice %q, want speaker=voice", p)
		}
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid speaker id in --voice %q", p)
		}
		out[id] = strings.TrimSpace(v)
	}
	return out, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Second)
}
