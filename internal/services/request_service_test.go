package services

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/partline/go-parts-backend/internal/domain"
	"github.com/partline/go-parts-backend/internal/moderation"
	"github.com/partline/go-parts-backend/internal/notify"
	"github.com/partline/go-parts-backend/internal/repo"
	"github.com/partline/go-parts-backend/internal/spam"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:services_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.PartRequest{},
		&domain.ModerationRecord{},
		&domain.Offer{},
		&domain.NotificationRecord{},
		&domain.Review{},
		&domain.SupplierProfile{},
		&domain.Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// stubClassifier returns a canned response or error.
type stubClassifier struct {
	raw string
	err error
}

func (s stubClassifier) Classify(_ context.Context, _ spam.Submission) (string, error) {
	return s.raw, s.err
}

func newRequestService(db *gorm.DB, cls moderation.Classifier) *RequestService {
	return &RequestService{
		DB:          db,
		Guard:       spam.NewGuard(),
		Adjudicator: &moderation.Adjudicator{Classifier: cls},
		Dispatcher:  &notify.Dispatcher{DB: db, Logger: zerolog.Nop()},
	}
}

func validInput() SubmitInput {
	return SubmitInput{
		Make:        "Toyota",
		Model:       "Corolla",
		Year:        2015,
		PartName:    "Brake Pads",
		Description: "front axle set",
		Phone:       "+233201234567",
		Location:    "Accra",
	}
}

func seedSupplier(t *testing.T, db *gorm.DB, userID, location string) {
	t.Helper()
	if _, err := repo.CreateSupplierProfile(context.Background(), db, &domain.SupplierProfile{
		UserID:   userID,
		Name:     "Supplier " + userID,
		Location: location,
		Phone:    "+233209999999",
	}); err != nil {
		t.Fatalf("seed supplier: %v", err)
	}
}

func TestSubmit_CleanRequestPublishesAndFansOut(t *testing.T) {
	db := newTestDB(t)
	svc := newRequestService(db, nil)
	seedSupplier(t, db, "seller-accra", "Accra Central")
	seedSupplier(t, db, "seller-kumasi", "Kumasi")

	res, err := svc.Submit(context.Background(), "buyer-1", validInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Published {
		t.Fatalf("clean submission not published")
	}
	if res.Request.ID == "" || res.Request.Status != domain.RequestStatusPending {
		t.Fatalf("request state wrong: %+v", res.Request)
	}
	if res.Request.PartNameCanon != "brake pads" {
		t.Fatalf("canonical part name = %q", res.Request.PartNameCanon)
	}
	if res.Moderation.Decision != domain.DecisionApproved || res.Moderation.Confidence != 1.0 {
		t.Fatalf("moderation record wrong: %+v", res.Moderation)
	}

	// Only the location-matched supplier receives a notification.
	var recs []domain.NotificationRecord
	if err := db.Find(&recs).Error; err != nil {
		t.Fatalf("load notifications: %v", err)
	}
	if len(recs) != 1 || recs[0].UserID != "seller-accra" {
		t.Fatalf("fan-out wrong: %+v", recs)
	}
}

func TestSubmit_SuspiciousHeldForReview(t *testing.T) {
	db := newTestDB(t)
	// Classifier unavailable, so a suspicious submission degrades to a hold.
	svc := newRequestService(db, stubClassifier{err: errors.New("upstream down")})
	seedSupplier(t, db, "seller-accra", "Accra")

	in := validInput()
	in.Description = "free money guaranteed"

	res, err := svc.Submit(context.Background(), "buyer-1", in)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Published {
		t.Fatalf("held submission must not publish")
	}
	if res.Moderation.Decision != domain.DecisionNeedsReview {
		t.Fatalf("decision = %q, want needs_human_review", res.Moderation.Decision)
	}
	// The request is persisted for the admin queue even though it is held.
	if _, err := repo.GetRequest(context.Background(), db, res.Request.ID); err != nil {
		t.Fatalf("held request not persisted: %v", err)
	}

	var n int64
	db.Model(&domain.NotificationRecord{}).Count(&n)
	if n != 0 {
		t.Fatalf("held submission fanned out %d notifications", n)
	}
}

func TestHeldQueue(t *testing.T) {
	db := newTestDB(t)
	svc := newRequestService(db, stubClassifier{err: errors.New("upstream down")})

	queue, err := svc.HeldQueue(context.Background(), 50)
	if err != nil {
		t.Fatalf("held queue: %v", err)
	}
	if queue == nil || len(queue) != 0 {
		t.Fatalf("empty queue = %#v, want non-nil empty slice", queue)
	}

	held := validInput()
	held.Description = "free money guaranteed"
	res, err := svc.Submit(context.Background(), "buyer-1", held)
	if err != nil {
		t.Fatalf("submit held: %v", err)
	}

	clean := validInput()
	clean.PartName = "Alternator"
	if _, err := svc.Submit(context.Background(), "buyer-2", clean); err != nil {
		t.Fatalf("submit clean: %v", err)
	}

	queue, err = svc.HeldQueue(context.Background(), 50)
	if err != nil {
		t.Fatalf("held queue: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != res.Request.ID {
		t.Fatalf("queue = %#v, want only the held request", queue)
	}
}

func TestSubmit_SuspiciousApprovedByClassifier(t *testing.T) {
	db := newTestDB(t)
	svc := newRequestService(db, stubClassifier{
		raw: `{"decision":"approved","confidence":0.95,"rationale":"legitimate"}`,
	})

	in := validInput()
	in.PartName = "Engine"
	in.Description = ""

	res, err := svc.Submit(context.Background(), "buyer-1", in)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Published {
		t.Fatalf("high-confidence approval must publish")
	}
	if res.Moderation.Confidence != 0.95 {
		t.Fatalf("confidence = %v", res.Moderation.Confidence)
	}
}

func TestSubmit_DuplicateRejectedWithoutWrites(t *testing.T) {
	db := newTestDB(t)
	svc := newRequestService(db, nil)

	if _, err := svc.Submit(context.Background(), "buyer-1", validInput()); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err := svc.Submit(context.Background(), "buyer-1", validInput())
	var spamErr *SpamRejectionError
	if !errors.As(err, &spamErr) {
		t.Fatalf("err = %v, want SpamRejectionError", err)
	}
	if spamErr.RetryAfter != 0 {
		t.Fatalf("duplicate RetryAfter = %v, want 0", spamErr.RetryAfter)
	}

	var n int64
	db.Model(&domain.PartRequest{}).Count(&n)
	if n != 1 {
		t.Fatalf("rejected submission wrote a request row (count %d)", n)
	}
}

func TestSubmit_HourlyLimit(t *testing.T) {
	db := newTestDB(t)
	svc := newRequestService(db, nil)

	parts := []string{"Brake Pads", "Alternator", "Radiator"}
	for _, p := range parts {
		in := validInput()
		in.PartName = p
		if _, err := svc.Submit(context.Background(), "buyer-1", in); err != nil {
			t.Fatalf("submit %q: %v", p, err)
		}
	}

	in := validInput()
	in.PartName = "Headlight"
	_, err := svc.Submit(context.Background(), "buyer-1", in)
	var spamErr *SpamRejectionError
	if !errors.As(err, &spamErr) {
		t.Fatalf("err = %v, want SpamRejectionError", err)
	}
	if spamErr.RetryAfter != time.Hour {
		t.Fatalf("RetryAfter = %v, want 1h", spamErr.RetryAfter)
	}
}

func TestSubmit_Validation(t *testing.T) {
	db := newTestDB(t)
	svc := newRequestService(db, nil)

	cases := []struct {
		name  string
		mut   func(*SubmitInput)
		field string
	}{
		{"missing make", func(in *SubmitInput) { in.Make = "  " }, "make"},
		{"missing model", func(in *SubmitInput) { in.Model = "" }, "model"},
		{"missing part", func(in *SubmitInput) { in.PartName = "" }, "part_name"},
		{"missing phone", func(in *SubmitInput) { in.Phone = "" }, "phone"},
		{"year too old", func(in *SubmitInput) { in.Year = 1930 }, "year"},
		{"year in future", func(in *SubmitInput) { in.Year = time.Now().Year() + 5 }, "year"},
		{"implausible phone", func(in *SubmitInput) { in.Phone = "not-a-phone" }, "phone"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			in := validInput()
			c.mut(&in)
			_, err := svc.Submit(context.Background(), "buyer-1", in)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != c.field {
				t.Fatalf("field = %q, want %q", ve.Field, c.field)
			}
		})
	}
}

func TestCancel(t *testing.T) {
	db := newTestDB(t)
	svc := newRequestService(db, nil)

	res, err := svc.Submit(context.Background(), "buyer-1", validInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := svc.Cancel(context.Background(), "buyer-1", res.Request.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, err := svc.Get(context.Background(), "buyer-1", res.Request.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.RequestStatusCancelled {
		t.Fatalf("status = %q, want cancelled", got.Status)
	}

	if err := svc.Cancel(context.Background(), "buyer-1", res.Request.ID); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("double cancel: err = %v, want ErrStateConflict", err)
	}
	if err := svc.Cancel(context.Background(), "intruder", res.Request.ID); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("unowned cancel: err = %v, want ErrRequestNotFound", err)
	}
}

func TestListPage(t *testing.T) {
	db := newTestDB(t)
	svc := newRequestService(db, nil)

	parts := []string{"Brake Pads", "Alternator", "Radiator"}
	for i, p := range parts {
		in := validInput()
		in.PartName = p
		in.Phone = "+23320123456" + string(rune('0'+i))
		if _, err := svc.Submit(context.Background(), "buyer-1", in); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	items, total, err := svc.ListPage(context.Background(), "buyer-1", 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("total=%d page=%d, want 3/2", total, len(items))
	}

	// Invalid paging falls back to defaults.
	items, total, err = svc.ListPage(context.Background(), "buyer-1", 0, -1)
	if err != nil {
		t.Fatalf("list defaults: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("default paging wrong: total=%d page=%d", total, len(items))
	}

	empty, total, err := svc.ListPage(context.Background(), "nobody", 1, 20)
	if err != nil {
		t.Fatalf("empty list: %v", err)
	}
	if total != 0 || empty == nil || len(empty) != 0 {
		t.Fatalf("empty buyer: total=%d items=%v", total, empty)
	}
}
