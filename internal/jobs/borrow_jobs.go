package jobs

import (
	"context"
	"time"

	"bookworm-backend/internal/logger"
)

// SendOverdueReminders emails each borrower with an overdue, unreturned
// loan. Every loan is reminded at most once; fines themselves accrue from
// timestamps, not from this job.
func (jr *JobRunner) SendOverdueReminders() {
	jr.runWithRecovery("SendOverdueReminders", func() {
		ctx := context.Background()

		loans, err := jr.loans.ListOverdueUnnotified(ctx, time.Now())
		if err != nil {
			logger.Error("Failed to list overdue loans", "error", err)
			return
		}

		sent := 0
		for _, loan := range loans {
			err := jr.emailSvc.SendOverdueReminder(ctx, loan.BorrowerEmail, loan.BorrowerName, loan.BookTitle, loan.DueAt.Format("Mon Jan 2 2006"))
			if err != nil {
				logger.Error("Failed to send overdue reminder", "loan_id", loan.ID, "error", err)
				continue
			}
			if err := jr.loans.MarkNotified(ctx, loan.ID); err != nil {
				logger.Error("Failed to mark loan notified", "loan_id", loan.ID, "error", err)
				continue
			}
			sent++
		}

		logger.Info("Sent overdue reminders", "count", sent, "overdue", len(loans))
	})
}

// ReconcileMirrors rebuilds every borrower's mirror from the ledger so a
// missed or failed mirror write can never persist past the nightly run.
func (jr *JobRunner) ReconcileMirrors() {
	jr.runWithRecovery("ReconcileMirrors", func() {
		ctx := context.Background()

		borrowerIDs, err := jr.loans.ListBorrowerIDs(ctx)
		if err != nil {
			logger.Error("Failed to list borrowers for reconciliation", "error", err)
			return
		}

		rebuilt := 0
		for _, id := range borrowerIDs {
			if err := jr.borrowSvc.RebuildMirror(ctx, id); err != nil {
				logger.Error("Failed to rebuild mirror", "borrower_id", id, "error", err)
				continue
			}
			rebuilt++
		}

		logger.Info("Reconciled borrower mirrors", "count", rebuilt, "total", len(borrowerIDs))
	})
}
