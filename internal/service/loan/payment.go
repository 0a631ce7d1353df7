package loan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/loanledger/internal/amount"
	"github.com/tinoosan/loanledger/internal/errs"
	"github.com/tinoosan/loanledger/internal/events"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/meta"
	"github.com/tinoosan/loanledger/internal/storage"
)

// Payment sources recorded on entries and events.
const (
	SourceManual    = "manual"
	SourceScheduler = "scheduler"
)

func (s *service) PayEMI(ctx context.Context, loanID uuid.UUID) (Payment, error) {
	return s.apply(ctx, loanID, s.today(), SourceManual)
}

func (s *service) ApplyScheduledPayment(ctx context.Context, loanID uuid.UUID, asOf time.Time) (Payment, error) {
	return s.apply(ctx, loanID, ledger.Day(asOf), SourceScheduler)
}

// apply debits one EMI. Nothing is written unless every check passes.
func (s *service) apply(ctx context.Context, loanID uuid.UUID, today time.Time, source string) (Payment, error) {
	if loanID == uuid.Nil {
		return Payment{}, errs.Invalid("loan_id", "is required")
	}
	unlock, err := s.locker.Lock(ctx, lockKey(loanID))
	if err != nil {
		return Payment{}, fmt.Errorf("lock loan %s: %w", loanID, err)
	}
	defer unlock()

	var p Payment
	err = storage.WithTx(ctx, s.writer, func(tx storage.Tx) error {
		l, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if l.Status != ledger.LoanActive {
			return fmt.Errorf("loan %s is %s: %w", loanID, l.Status, errs.ErrInvalidState)
		}
		if l.IsCompleted() {
			return fmt.Errorf("loan %s is already fully paid: %w", loanID, errs.ErrInvalidState)
		}
		if source == SourceScheduler && !l.IsDue(today) {
			return ErrNotDue
		}

		acc, err := tx.GetAccountForUpdate(ctx, l.AccountID)
		if err != nil {
			return err
		}
		if acc.Balance.LessThan(l.EMI) {
			return fmt.Errorf("balance %s below emi %s: %w", amount.String(acc.Balance), amount.String(l.EMI), errs.ErrInsufficientFunds)
		}

		installment := l.CompletedInstallments + 1
		md := meta.New(nil)
		md.Set(ledger.MetaLoanID, l.ID.String())
		md.SetInt(ledger.MetaInstallment, installment)
		md.Set(ledger.MetaSource, source)
		entryID, err := tx.AppendEntry(ctx, ledger.Entry{
			ID:          uuid.New(),
			AccountID:   acc.ID,
			Amount:      l.EMI,
			Type:        ledger.EntryDebit,
			Category:    ledger.CategoryLoanEMI,
			Description: fmt.Sprintf("EMI payment to %s (Payment %d of %d)", l.Lender, installment, l.TotalInstallments),
			Metadata:    md,
			CreatedAt:   s.now().UTC(),
		})
		if err != nil {
			return err
		}
		updated, err := tx.AdjustBalance(ctx, acc.ID, l.EMI.Neg())
		if err != nil {
			return err
		}

		prevDue := l.NextDueDate
		l.CompletedInstallments = installment
		l.LastPaymentDate = ledger.DatePtr(today)
		l.UpdatedAt = s.now().UTC()
		switch {
		case l.IsCompleted():
			l.Status = ledger.LoanClosed
			l.NextDueDate = nil
		case source == SourceScheduler && prevDue != nil:
			l.NextDueDate = ledger.DatePtr(ledger.AddDays(*prevDue, l.IntervalDays))
		default:
			l.NextDueDate = ledger.DatePtr(ledger.AddDays(today, l.IntervalDays))
		}
		if err := tx.UpdateLoan(ctx, l); err != nil {
			return err
		}
		p = Payment{Loan: l, EntryID: entryID, Amount: l.EMI, Installment: installment, Balance: updated.Balance}
		return nil
	})
	if err != nil {
		return Payment{}, err
	}

	s.logger.Info("emi paid", "loan_id", p.Loan.ID, "account_id", p.Loan.AccountID, "installment", p.Installment, "total", p.Loan.TotalInstallments, "source", source, "next_due_date", p.Loan.NextDueDate)
	s.publish(ctx, events.LoanEMIPaid, p.Loan, p.Amount, p.Installment, source)
	if p.Loan.Status == ledger.LoanClosed {
		s.logger.Info("loan closed", "loan_id", p.Loan.ID)
		s.publish(ctx, events.LoanClosed, p.Loan, p.Amount, p.Installment, source)
	}
	return p, nil
}
