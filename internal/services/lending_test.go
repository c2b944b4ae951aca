package services_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/localnerve/librarydb/internal/events"
	"github.com/localnerve/librarydb/internal/metrics"
	"github.com/localnerve/librarydb/internal/models"
	"github.com/localnerve/librarydb/internal/services"
	"github.com/localnerve/librarydb/internal/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type lendingFixture struct {
	env    *testutil.Env
	lib    services.Identity
	reader services.Identity
	books  []*services.BookView
}

func newLendingFixture(t *testing.T, books int) *lendingFixture {
	env := testutil.NewEnv(t)
	f := &lendingFixture{
		env:    env,
		lib:    env.Librarian(t, "lib"),
		reader: env.Reader(t, "reader"),
	}
	for i := 0; i < books; i++ {
		f.books = append(f.books, env.Book(t, f.lib, testutil.BookFixture{ISBN: string(rune('A' + i))}))
	}
	return f
}

func (f *lendingFixture) book(i int) uint {
	return f.books[i].ID
}

func TestRequestQuota(t *testing.T) {
	f := newLendingFixture(t, 7)
	ctx := context.Background()
	lending := f.env.Lending

	for i := 0; i < services.MaxHoldings; i++ {
		_, err := lending.RequestBook(ctx, f.reader, f.book(i), 7)
		require.NoError(t, err, "request %d", i)
	}

	_, err := lending.RequestBook(ctx, f.reader, f.book(5), 7)
	require.ErrorIs(t, err, services.ErrQuotaExceeded)

	// Issued books count against the quota too
	_, err = lending.IssueBook(ctx, f.lib, f.book(0), f.reader.UserID)
	require.NoError(t, err)
	_, err = lending.RequestBook(ctx, f.reader, f.book(5), 7)
	require.ErrorIs(t, err, services.ErrQuotaExceeded)

	require.NoError(t, lending.RejectRequest(ctx, f.lib, f.book(1), f.reader.UserID))
	_, err = lending.RequestBook(ctx, f.reader, f.book(5), 7)
	require.NoError(t, err)

	_, err = lending.RequestBook(ctx, f.reader, f.book(6), 7)
	require.ErrorIs(t, err, services.ErrQuotaExceeded)

	require.NoError(t, lending.ReturnBook(ctx, f.reader, f.book(0)))
	_, err = lending.RequestBook(ctx, f.reader, f.book(6), 7)
	require.NoError(t, err)
}

func TestRequestQuotaUnderConcurrency(t *testing.T) {
	f := newLendingFixture(t, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var granted, refused int
	for i := range f.books {
		wg.Add(1)
		go func(book uint) {
			defer wg.Done()
			_, err := f.env.Lending.RequestBook(ctx, f.reader, book, 3)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, services.ErrQuotaExceeded):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(f.book(i))
	}
	wg.Wait()

	assert.Equal(t, services.MaxHoldings, granted)
	assert.Equal(t, len(f.books)-services.MaxHoldings, refused)

	var held int64
	require.NoError(t, f.env.DB.Model(&models.BookRequest{}).Where("user_id = ?", f.reader.UserID).Count(&held).Error)
	assert.Equal(t, int64(services.MaxHoldings), held)
}

func TestRequestExclusivity(t *testing.T) {
	f := newLendingFixture(t, 1)
	ctx := context.Background()
	lending := f.env.Lending
	other := f.env.Reader(t, "other")
	b := f.book(0)

	_, err := lending.RequestBook(ctx, f.reader, b, 4)
	require.NoError(t, err)
	_, err = lending.RequestBook(ctx, f.reader, b, 4)
	require.ErrorIs(t, err, services.ErrConflict)

	// Issuing to a user without a request does not consume someone else's
	_, err = lending.IssueBook(ctx, f.lib, b, other.UserID)
	require.ErrorIs(t, err, services.ErrNotFound)

	pending, err := lending.ListRequests(ctx, f.lib)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, f.reader.UserID, pending[0].UserID)
	assert.Equal(t, 4, pending[0].IssueTime)

	_, err = lending.IssueBook(ctx, f.lib, b, f.reader.UserID)
	require.NoError(t, err)

	_, err = lending.RequestBook(ctx, f.reader, b, 4)
	require.ErrorIs(t, err, services.ErrConflict)

	// The same book can still be requested by another user
	_, err = lending.RequestBook(ctx, other, b, 4)
	require.NoError(t, err)
}

func TestIssueRefusesSecondLoan(t *testing.T) {
	f := newLendingFixture(t, 1)
	ctx := context.Background()
	b := f.book(0)

	require.NoError(t, f.env.DB.Create(&models.BookRequest{BookID: b, UserID: f.reader.UserID, IssueTime: 2}).Error)
	require.NoError(t, f.env.DB.Create(&models.BookIssue{BookID: b, UserID: f.reader.UserID}).Error)

	_, err := f.env.Lending.IssueBook(ctx, f.lib, b, f.reader.UserID)
	require.ErrorIs(t, err, services.ErrConflict)

	// The request survives the refused issue
	var n int64
	require.NoError(t, f.env.DB.Model(&models.BookRequest{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestLendingRoundTrip(t *testing.T) {
	f := newLendingFixture(t, 1)
	ctx := context.Background()
	lending := f.env.Lending
	b := f.book(0)

	request, err := lending.RequestBook(ctx, f.reader, b, 5)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", time.Time(request.DateOfRequest).Format(time.DateOnly))

	f.env.Clock.Advance(24 * time.Hour)
	issue, err := lending.IssueBook(ctx, f.lib, b, f.reader.UserID)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-11", time.Time(issue.DateOfIssue).Format(time.DateOnly))
	assert.Equal(t, time.Time(issue.DateOfIssue).AddDate(0, 0, 5), time.Time(issue.DateOfReturn))

	issues, err := lending.ListIssues(ctx, f.reader, f.reader.UserID)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "2026-03-16", time.Time(issues[0].DateOfReturn).Format(time.DateOnly))

	requests, err := lending.ListRequests(ctx, f.reader)
	require.NoError(t, err)
	assert.Empty(t, requests)

	require.NoError(t, lending.ReturnBook(ctx, f.reader, b))
	issues, err = lending.ListIssues(ctx, f.reader, f.reader.UserID)
	require.NoError(t, err)
	assert.Empty(t, issues)

	_, err = lending.SubmitFeedback(ctx, f.reader, b, "great", 5)
	require.NoError(t, err)

	feedback, err := lending.ListFeedback(ctx, f.lib, &b)
	require.NoError(t, err)
	require.Len(t, feedback, 1)
	assert.Equal(t, "great", feedback[0].Feedback)
	assert.Equal(t, 5, feedback[0].Rating)
	assert.Equal(t, "reader", feedback[0].Username)

	assert.Equal(t, []string{
		events.LendingRequested,
		events.LendingIssued,
		events.LendingReturned,
		events.LendingFeedback,
	}, f.env.Events.Types()[1:])
}

func TestReturnAndRevokeNeedAnIssue(t *testing.T) {
	f := newLendingFixture(t, 1)
	ctx := context.Background()
	lending := f.env.Lending
	b := f.book(0)

	require.ErrorIs(t, lending.ReturnBook(ctx, f.reader, b), services.ErrNotFound)
	require.ErrorIs(t, lending.RevokeIssue(ctx, f.lib, b, f.reader.UserID), services.ErrNotFound)
	require.ErrorIs(t, lending.RejectRequest(ctx, f.lib, b, f.reader.UserID), services.ErrNotFound)

	_, err := lending.RequestBook(ctx, f.reader, b, 1)
	require.NoError(t, err)
	_, err = lending.IssueBook(ctx, f.lib, b, f.reader.UserID)
	require.NoError(t, err)

	before := promtest.ToFloat64(metrics.LendingTransitions.WithLabelValues("revoked"))
	require.NoError(t, lending.RevokeIssue(ctx, f.lib, b, f.reader.UserID))
	assert.Equal(t, before+1, promtest.ToFloat64(metrics.LendingTransitions.WithLabelValues("revoked")))

	require.ErrorIs(t, lending.ReturnBook(ctx, f.reader, b), services.ErrNotFound)
}

func TestExpirySweep(t *testing.T) {
	f := newLendingFixture(t, 2)
	ctx := context.Background()
	lending := f.env.Lending

	for i := 0; i < 2; i++ {
		_, err := lending.RequestBook(ctx, f.reader, f.book(i), 2+i)
		require.NoError(t, err)
		_, err = lending.IssueBook(ctx, f.lib, f.book(i), f.reader.UserID)
		require.NoError(t, err)
	}

	// On the return day of the first loan nothing has expired yet
	f.env.Clock.Advance(2 * 24 * time.Hour)
	issues, err := lending.ListIssues(ctx, f.reader, f.reader.UserID)
	require.NoError(t, err)
	assert.Len(t, issues, 2)

	f.env.Clock.Advance(24 * time.Hour)
	issues, err = lending.ListIssues(ctx, f.lib, f.reader.UserID)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, f.book(1), issues[0].BookID)

	var n int64
	require.NoError(t, f.env.DB.Model(&models.BookIssue{}).Where("book_id = ?", f.book(0)).Count(&n).Error)
	assert.Zero(t, n)

	last, ok := f.env.Events.Last()
	require.True(t, ok)
	assert.Equal(t, events.LendingExpired, last.EventType)

	// The freed slot can be requested again
	_, err = lending.RequestBook(ctx, f.reader, f.book(0), 1)
	require.NoError(t, err)
}

func TestExpiryOnlyTouchesListedUser(t *testing.T) {
	f := newLendingFixture(t, 1)
	ctx := context.Background()
	other := f.env.Reader(t, "other")
	b := f.book(0)

	past := models.BookIssue{BookID: b, UserID: other.UserID}
	past.DateOfIssue = testDate(2026, time.February, 1)
	past.DateOfReturn = testDate(2026, time.February, 3)
	require.NoError(t, f.env.DB.Create(&past).Error)

	_, err := f.env.Lending.ListIssues(ctx, f.reader, f.reader.UserID)
	require.NoError(t, err)

	var n int64
	require.NoError(t, f.env.DB.Model(&models.BookIssue{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	issues, err := f.env.Lending.ListIssues(ctx, other, other.UserID)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestLendingGuards(t *testing.T) {
	f := newLendingFixture(t, 1)
	ctx := context.Background()
	lending := f.env.Lending
	other := f.env.Reader(t, "other")
	b := f.book(0)

	_, err := lending.RequestBook(ctx, f.lib, b, 3)
	assert.ErrorIs(t, err, services.ErrForbidden)
	_, err = lending.RequestBook(ctx, services.Identity{}, b, 3)
	assert.ErrorIs(t, err, services.ErrForbidden)
	_, err = lending.RequestBook(ctx, f.reader, b, 0)
	assert.ErrorIs(t, err, services.ErrValidation)
	_, err = lending.RequestBook(ctx, f.reader, b, 8)
	assert.ErrorIs(t, err, services.ErrValidation)
	_, err = lending.RequestBook(ctx, f.reader, 999, 3)
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = lending.IssueBook(ctx, f.reader, b, f.reader.UserID)
	assert.ErrorIs(t, err, services.ErrForbidden)
	assert.ErrorIs(t, lending.RejectRequest(ctx, f.reader, b, f.reader.UserID), services.ErrForbidden)
	assert.ErrorIs(t, lending.RevokeIssue(ctx, f.reader, b, f.reader.UserID), services.ErrForbidden)
	assert.ErrorIs(t, lending.ReturnBook(ctx, f.lib, b), services.ErrForbidden)

	_, err = lending.ListIssues(ctx, f.reader, other.UserID)
	assert.ErrorIs(t, err, services.ErrForbidden)
	_, err = lending.ListIssues(ctx, services.Identity{}, other.UserID)
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, err = lending.SubmitFeedback(ctx, f.lib, b, "ok", 3)
	assert.ErrorIs(t, err, services.ErrForbidden)
}

func TestFeedback(t *testing.T) {
	f := newLendingFixture(t, 1)
	ctx := context.Background()
	lending := f.env.Lending
	b := f.book(0)

	for _, rating := range []int{0, 6, -1} {
		_, err := lending.SubmitFeedback(ctx, f.reader, b, "ok", rating)
		assert.ErrorIs(t, err, services.ErrValidation, "rating %d", rating)
	}
	_, err := lending.SubmitFeedback(ctx, f.reader, b, "   ", 3)
	assert.ErrorIs(t, err, services.ErrValidation)
	_, err = lending.SubmitFeedback(ctx, f.reader, 999, "ok", 3)
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = lending.SubmitFeedback(ctx, f.reader, b, "first", 2)
	require.NoError(t, err)
	_, err = lending.SubmitFeedback(ctx, f.reader, b, "second", 4)
	require.NoError(t, err)

	all, err := lending.ListFeedback(ctx, f.reader, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "second", all[0].Feedback)
	assert.Equal(t, 4, all[0].Rating)

	missing := uint(999)
	_, err = lending.ListFeedback(ctx, f.reader, &missing)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestListRequestsScope(t *testing.T) {
	f := newLendingFixture(t, 2)
	ctx := context.Background()
	other := f.env.Reader(t, "other")

	_, err := f.env.Lending.RequestBook(ctx, f.reader, f.book(0), 3)
	require.NoError(t, err)
	_, err = f.env.Lending.RequestBook(ctx, other, f.book(1), 3)
	require.NoError(t, err)

	mine, err := f.env.Lending.ListRequests(ctx, f.reader)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.book(0), mine[0].BookID)
	assert.Equal(t, f.books[0].Name, mine[0].BookName)

	all, err := f.env.Lending.ListRequests(ctx, f.lib)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPurchaseAndContent(t *testing.T) {
	f := newLendingFixture(t, 2)
	ctx := context.Background()
	lending := f.env.Lending
	b := f.book(0)

	_, err := lending.OpenContent(ctx, f.reader, b)
	require.ErrorIs(t, err, services.ErrForbidden)

	content, err := lending.OpenContent(ctx, f.lib, b)
	require.NoError(t, err)
	body, err := io.ReadAll(content)
	require.NoError(t, err)
	require.NoError(t, content.Close())
	assert.Contains(t, string(body), "%PDF")
	assert.Equal(t, "A.pdf", content.Filename)

	first, created, err := lending.PurchaseBook(ctx, f.reader, b)
	require.NoError(t, err)
	assert.True(t, created)

	f.env.Clock.Advance(time.Hour)
	again, created, err := lending.PurchaseBook(ctx, f.reader, b)
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, first.BoughtAt.Equal(again.BoughtAt))

	content, err = lending.OpenContent(ctx, f.reader, b)
	require.NoError(t, err)
	require.NoError(t, content.Close())

	_, _, err = lending.PurchaseBook(ctx, f.lib, b)
	assert.ErrorIs(t, err, services.ErrForbidden)
	_, _, err = lending.PurchaseBook(ctx, f.reader, 999)
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = lending.OpenContent(ctx, f.lib, 999)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestContentFollowsLoan(t *testing.T) {
	f := newLendingFixture(t, 1)
	ctx := context.Background()
	lending := f.env.Lending
	b := f.book(0)

	_, err := lending.RequestBook(ctx, f.reader, b, 1)
	require.NoError(t, err)
	_, err = lending.IssueBook(ctx, f.lib, b, f.reader.UserID)
	require.NoError(t, err)

	content, err := lending.OpenContent(ctx, f.reader, b)
	require.NoError(t, err)
	require.NoError(t, content.Close())

	// Past the return date the loan no longer grants access, even before a sweep
	f.env.Clock.Advance(2 * 24 * time.Hour)
	_, err = lending.OpenContent(ctx, f.reader, b)
	assert.ErrorIs(t, err, services.ErrForbidden)
}

func testDate(y int, m time.Month, d int) datatypes.Date {
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}
