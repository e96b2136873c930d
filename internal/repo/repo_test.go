package repo

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/partline/go-parts-backend/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:repo_" + uuid.NewString() + "?mode=memory&cache=shared"
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

func seedRequest(t *testing.T, db *gorm.DB, buyerID, status string) *domain.PartRequest {
	t.Helper()
	r := &domain.PartRequest{
		ID:            uuid.NewString(),
		BuyerID:       buyerID,
		Make:          "Toyota",
		Model:         "Corolla",
		Year:          2015,
		PartName:      "Brake Pads",
		PartNameCanon: "brake pads",
		Phone:         "+233201234567",
		Location:      "Accra",
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("seed request: %v", err)
	}
	return r
}

func seedOffer(t *testing.T, db *gorm.DB, requestID, sellerID, status string) *domain.Offer {
	t.Helper()
	o := &domain.Offer{
		ID:        uuid.NewString(),
		RequestID: requestID,
		SellerID:  sellerID,
		Price:     250,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(o).Error; err != nil {
		t.Fatalf("seed offer: %v", err)
	}
	return o
}
