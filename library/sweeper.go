package library

import (
	"context"
	"fmt"
	"log"
	"time"
)

// SweepOverdue flips active loans past their due date to overdue and leaves
// one notification per loan per calendar day. Each record gets its own
// transaction that re-checks the status, so a return racing the sweep wins
// benignly. Book counters are never touched. Running the sweep twice in a
// row is a no-op the second time.
func (d *Database) SweepOverdue(ctx context.Context) (int, error) {
	now := d.now().UTC()

	var ids []int64
	if err := d.db.SelectContext(ctx, &ids, `SELECT id FROM borrows WHERE status=? AND due_date < ? ORDER BY due_date, id`,
		StatusActive, now); err != nil {
		return 0, fmt.Errorf("scan overdue candidates: %w", err)
	}

	transitioned := 0
	for _, id := range ids {
		flipped, err := d.sweepOne(ctx, id, now)
		if err != nil {
			return transitioned, fmt.Errorf("sweep loan %d: %w", id, err)
		}
		if flipped {
			transitioned++
		}
	}
	return transitioned, nil
}

// sweepOne transitions a single loan, re-validating inside the transaction
// rather than trusting the batch snapshot.
func (d *Database) sweepOne(ctx context.Context, borrowID int64, now time.Time) (bool, error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	borrow, err := getBorrowTx(tx, borrowID)
	if err != nil {
		return false, err
	}
	if borrow.Status != StatusActive || !borrow.DueDate.Before(now) {
		// Returned or extended since the scan.
		return false, nil
	}
	if !borrow.Status.CanTransition(StatusOverdue) {
		return false, nil
	}

	res, err := tx.Exec(`UPDATE borrows SET status=? WHERE id=? AND status=?`, StatusOverdue, borrowID, StatusActive)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 0 {
		return false, nil
	}

	// One overdue notice per loan per day.
	var noticeExists bool
	if err := tx.Get(&noticeExists, `SELECT EXISTS(SELECT 1 FROM notifications WHERE borrow_id=? AND kind=? AND date(created_at)=date(?))`,
		borrowID, NotificationOverdue, now); err != nil {
		return false, err
	}
	if !noticeExists {
		var title string
		if err := tx.Get(&title, `SELECT title FROM books WHERE id=?`, borrow.BookID); err != nil {
			return false, err
		}
		msg := fmt.Sprintf("Your loan of %q was due on %s. Please return it.", title, borrow.DueDate.Format("02 Jan 2006"))
		if _, err := tx.Exec(`INSERT INTO notifications(user_id,borrow_id,kind,message,created_at) VALUES(?,?,?,?,?)`,
			borrow.UserID, borrowID, NotificationOverdue, msg, now); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Notifier runs the overdue sweep on a fixed interval for deployments
// without an external scheduler.
type Notifier struct {
	db       *Database
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewNotifier returns a stopped Notifier sweeping every interval.
func NewNotifier(db *Database, interval time.Duration) *Notifier {
	return &Notifier{
		db:       db,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. The first sweep runs immediately.
func (n *Notifier) Start() {
	go func() {
		defer close(n.done)
		ticker := time.NewTicker(n.interval)
		defer ticker.Stop()

		n.sweep()
		for {
			select {
			case <-ticker.C:
				n.sweep()
			case <-n.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (n *Notifier) Stop() {
	close(n.stop)
	<-n.done
}

func (n *Notifier) sweep() {
	count, err := n.db.SweepOverdue(context.Background())
	if err != nil {
		log.Printf("overdue sweep: %v", err)
		return
	}
	if count > 0 {
		log.Printf("overdue sweep: %d loans marked overdue", count)
	}
}
