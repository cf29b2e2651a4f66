// Package devseed writes demo job timelines into a job store for local development.
package devseed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/domain/model"
)

// Options controls seeding.
type Options struct {
	// Force seeds even when the store already holds jobs.
	Force  bool
	Logger *slog.Logger
	Now    func() time.Time
}

// demoStep is a step plus its offset from the job's start.
type demoStep struct {
	at   time.Duration
	step model.Step
}

type demoJob struct {
	req    model.CreateJobRequest
	steps  []demoStep
	status model.JobStatus
}

// Seed writes the demo jobs and returns their ids. It does nothing when the store already holds
// jobs unless opts.Force is set.
func Seed(ctx context.Context, store core.JobStore, opts Options) ([]model.JobID, error) {
	if store == nil {
		return nil, errors.New("job store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	if !opts.Force {
		existing, err := store.ListJobs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		if len(existing) > 0 {
			logger.InfoContext(ctx, "job store not empty; skipping demo seed", "jobs", len(existing))
			return nil, nil
		}
	}

	start := now().UTC().Add(-2 * time.Hour)
	jobs := demoJobs(start)
	ids := make([]model.JobID, 0, len(jobs))
	for _, dj := range jobs {
		id, err := seedJob(ctx, store, dj, start)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}

	logger.InfoContext(ctx, "seeded demo jobs", "count", len(ids))
	return ids, nil
}

func seedJob(ctx context.Context, store core.JobStore, dj demoJob, start time.Time) (model.JobID, error) {
	req := dj.req
	rec, err := store.CreateJob(ctx, &req)
	if err != nil {
		return 0, fmt.Errorf("create demo job %q: %w", req.Label, err)
	}
	id := rec.Job.ID

	if dj.status != model.JobStatusPending && dj.status != model.JobStatusVoid {
		if err := store.SetJobStatus(ctx, id, model.JobStatusInProgress); err != nil {
			return id, fmt.Errorf("start demo job %s: %w", id, err)
		}
	}
	for _, ds := range dj.steps {
		step := ds.step
		step.Time = start.Add(ds.at)
		if err := store.AppendStep(ctx, id, step); err != nil {
			return id, fmt.Errorf("append demo step %s to job %s: %w", step.ID, id, err)
		}
	}
	if dj.status.Terminal() {
		if err := store.SetJobStatus(ctx, id, dj.status); err != nil {
			return id, fmt.Errorf("finish demo job %s: %w", id, err)
		}
	}
	return id, nil
}

func video(id, label, path string) model.Artifact {
	return model.Artifact{ID: id, Kind: model.ArtifactKindVideo, Label: label, Locator: path}
}

func document(id, label, path string) model.Artifact {
	return model.Artifact{ID: id, Kind: model.ArtifactKindDocument, Label: label, Locator: path}
}

func keyDetails(process, team string, day time.Time) map[string]string {
	return map[string]string{
		model.KeyDetailProcessName:    process,
		model.KeyDetailTeam:           team,
		model.KeyDetailProcessingDate: day.Format(time.DateOnly),
	}
}

// demoJobs mirrors the timelines the dashboard was first demoed with, plus one running and one
// failed job so every status tab has content. Locators point at /artifacts/demo/, which only
// resolves if matching files are placed in the artifact directory.
func demoJobs(start time.Time) []demoJob {
	vatRows := [][]string{
		{"Dec-23", "133539", "-708511"},
		{"Jan-24", "181559", "-686209"},
		{"Feb-24", "154037", "-229196"},
		{"Mar-24", "18592", "-171618"},
		{"Apr-24", "77800", "-928099"},
		{"May-24", "248214", "-946970"},
		{"Jun-24", "169246", "-594458"},
		{"Jul-24", "45233", "-688397"},
		{"Aug-24", "187976", "-598091"},
		{"Sep-24", "110000", "-440000"},
		{"Oct-24", "55000", "-440000"},
		{"Nov-24", "0", "-440000"},
		{"Dec-24", "-110000", "-440000"},
	}

	return []demoJob{
		{
			req: model.CreateJobRequest{
				Label:      "Weekly Cash Position Extraction: 1st to 30th March 2024",
				Name:       "Cash Position",
				Plan:       "cash-position",
				Params:     map[string]string{"start": "2024-03-01", "end": "2024-03-30"},
				KeyDetails: keyDetails("Weekly Cash Position Extraction", "Payouts", start),
			},
			status: model.JobStatusDone,
			steps: []demoStep{
				{0, model.Step{
					ID: "step-01", Status: model.StepStatusSuccess,
					Title: "Received request for Cash Position Data from 1st to 30th March 2024 with Weekly steps",
				}},
				{time.Minute, model.Step{
					ID: "step-02", Status: model.StepStatusSuccess,
					Title:     "Logged into Treasury Portal with OTP Authentication",
					Artifacts: []model.Artifact{video("rec-1", "Session recording", "/artifacts/demo/cash-position.webm")},
				}},
				{time.Minute + 20*time.Second, model.Step{
					ID: "step-03", Status: model.StepStatusSuccess,
					Title:     "Applied Date Filters to extract Cash Position Data: Weekly Steps - 1st to 30 March",
					Artifacts: []model.Artifact{video("rec-1", "Session recording", "/artifacts/demo/cash-position.webm")},
				}},
				{2 * time.Minute, model.Step{
					ID: "step-04", Status: model.StepStatusSuccess,
					Title:     "Successfully downloaded filtered PDF",
					Artifacts: []model.Artifact{document("pdf-1", "Cash Position PDF", "/artifacts/demo/march_weekly_cash_position.pdf")},
				}},
			},
		},
		{
			req: model.CreateJobRequest{
				Label:      "Liquidity Plan Update: Payroll and Customer Receipts 2024",
				Name:       "Liquidity Plan",
				Plan:       "vat-update",
				Params:     map[string]string{"year": "2024", "rows": "Payroll,Customer Receipts"},
				KeyDetails: keyDetails("Liquidity Plan Update", "Payments", start),
			},
			status: model.JobStatusDone,
			steps: []demoStep{
				{10 * time.Minute, model.Step{
					ID: "step-01", Status: model.StepStatusSuccess,
					Title: "Received 2 Emails",
					Artifacts: []model.Artifact{
						{
							ID: "mail-1", Kind: model.ArtifactKindEmailMessage, Label: "AR Email",
							Message: &model.EmailMessage{
								From: "ar@example.com", To: []string{"treasury@example.com"},
								Subject:    "Premium Hosting Program receipts",
								Body:       "Customer receipts are expected to increase following the Premium Hosting Program launch.",
								ReceivedAt: start.Add(9 * time.Minute),
							},
						},
						document("pdf-2", "Payroll Email PDF", "/artifacts/demo/payroll_email.pdf"),
					},
				}},
				{11 * time.Minute, model.Step{
					ID: "step-02", Status: model.StepStatusSuccess,
					Title: "Extracted Information from Emails",
					Description: []string{
						"Change in Payroll due to new Gratuity rules detected.",
						"Increase in Customer Receipts AR due to new Premium Hosting Program initiative",
					},
				}},
				{12 * time.Minute, model.Step{
					ID: "step-03", Status: model.StepStatusSuccess,
					Title:     "Logged into Treasury Portal with OTP Authentication",
					Artifacts: []model.Artifact{video("rec-2", "Session recording", "/artifacts/demo/liquidity-plan.webm")},
				}},
				{12*time.Minute + 40*time.Second, model.Step{
					ID: "step-04", Status: model.StepStatusSuccess,
					Title:     "Made necessary changes to Payroll and Customer Receipts rows for the year 2024 in Liquidity Plan sheet",
					Artifacts: []model.Artifact{video("rec-2", "Session recording", "/artifacts/demo/liquidity-plan.webm")},
				}},
			},
		},
		{
			req: model.CreateJobRequest{
				Label:      "Tax & VAT Update: VAT Collected and Tax rows 2024",
				Name:       "Tax & VAT",
				Plan:       "vat-update",
				Params:     map[string]string{"year": "2024", "rows": "VAT Collected,Tax"},
				KeyDetails: keyDetails("Tax & VAT Update", "Tax Revenue", start),
			},
			status: model.JobStatusDone,
			steps: []demoStep{
				{20 * time.Minute, model.Step{
					ID: "step-01", Status: model.StepStatusSuccess,
					Title: "Received Email from Tax team",
					Artifacts: []model.Artifact{
						{
							ID: "mail-2", Kind: model.ArtifactKindEmailMessage, Label: "Email",
							Message: &model.EmailMessage{
								From: "tax@example.com", To: []string{"treasury@example.com"},
								Subject:    "Updated Tax and VAT values",
								Body:       "New tax regulations change the VAT and Tax forecasts. Updated values attached.",
								ReceivedAt: start.Add(19 * time.Minute),
							},
						},
						{
							ID: "csv-1", Kind: model.ArtifactKindDataTable, Label: "Updated Tax Values CSV",
							Table: &model.DataTable{Columns: []string{"Month", "VAT", "Tax"}, Rows: vatRows},
						},
					},
				}},
				{21 * time.Minute, model.Step{
					ID: "step-02", Status: model.StepStatusSuccess,
					Title: "Extracted Information from Email",
					Description: []string{
						"Change in Tax and VAT values due to new Tax regulations detected. Pending update in Treasury Portal",
					},
				}},
				{21*time.Minute + 30*time.Second, model.Step{
					ID: "step-03", Status: model.StepStatusSuccess,
					Title:     "Logged into Treasury Portal with OTP Authentication",
					Artifacts: []model.Artifact{video("rec-3", "Session recording", "/artifacts/demo/vat-update.webm")},
				}},
				{22 * time.Minute, model.Step{
					ID: "step-04", Status: model.StepStatusSuccess,
					Title:     "Made necessary changes to VAT Collected and Tax rows for the year 2024 in Liquidity Plan sheet",
					Artifacts: []model.Artifact{video("rec-3", "Session recording", "/artifacts/demo/vat-update.webm")},
				}},
			},
		},
		{
			req: model.CreateJobRequest{
				Label:      "Weekly Cash Position Extraction: 1st to 30th April 2024",
				Name:       "Cash Position",
				Plan:       "cash-position",
				Params:     map[string]string{"start": "2024-04-01", "end": "2024-04-30"},
				KeyDetails: keyDetails("Weekly Cash Position Extraction", "Payouts", start),
			},
			status: model.JobStatusError,
			steps: []demoStep{
				{time.Hour, model.Step{
					ID: "step-01", Status: model.StepStatusSuccess,
					Title: "Received request for Cash Position Data from 1st to 30th April 2024 with Weekly steps",
				}},
				{time.Hour + 2*time.Minute, model.Step{
					ID: "step-02", Status: model.StepStatusError,
					Title:       "Error: Logging into Treasury Portal with OTP Authentication (no fresh code)",
					Description: []string{"The OTP provider returned codes about to expire 3 times in a row."},
				}},
			},
		},
		{
			req: model.CreateJobRequest{
				Label:      "Tax & VAT Update: VAT Collected rows 2025",
				Name:       "Tax & VAT",
				Plan:       "vat-update",
				Params:     map[string]string{"year": "2025", "rows": "VAT Collected"},
				KeyDetails: keyDetails("Tax & VAT Update", "Tax Revenue", start),
			},
			status: model.JobStatusInProgress,
			steps: []demoStep{
				{110 * time.Minute, model.Step{
					ID: "step-01", Status: model.StepStatusSuccess,
					Title: "Received request to update VAT Collected for 2025",
				}},
				{111 * time.Minute, model.Step{
					ID: "step-02", Status: model.StepStatusProcessing,
					Title: "Logging into Treasury Portal with OTP Authentication",
				}},
			},
		},
	}
}
