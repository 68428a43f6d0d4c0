package postgres

import (
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	ndamodel "github.com/frahmantamala/loan-intake/internal/core/datamodel/nda"
)

func TestNDARepository(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "NDA Repository Suite")
}

func openTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	gomega.Expect(err).ToNot(gomega.HaveOccurred())

	// An in-memory sqlite database lives and dies with its connection.
	sqlDB, err := db.DB()
	gomega.Expect(err).ToNot(gomega.HaveOccurred())
	sqlDB.SetMaxOpenConns(1)

	gomega.Expect(db.Exec(`
		CREATE TABLE nda_signatures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			application_id INTEGER NOT NULL,
			signature_data TEXT NOT NULL,
			signed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			ip_address TEXT,
			user_agent TEXT
		)`).Error).To(gomega.Succeed())
	gomega.Expect(db.Exec(`
		CREATE UNIQUE INDEX idx_nda_signatures_application_id
		ON nda_signatures (application_id)`).Error).To(gomega.Succeed())

	return db
}

var _ = ginkgo.Describe("NDARepository", func() {
	var repo *NDARepository

	ginkgo.BeforeEach(func() {
		repo = NewNDARepository(openTestDB())
	})

	ginkgo.It("should store and fetch a signature", func() {
		// When
		signature := &ndamodel.NDASignature{
			ApplicationID: 7,
			SignatureData: "Amina Applicant",
			IPAddress:     "203.0.113.9",
		}
		gomega.Expect(repo.Create(signature)).To(gomega.Succeed())

		// Then
		got, err := repo.GetByApplicationID(7)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(got.SignatureData).To(gomega.Equal("Amina Applicant"))
	})

	ginkgo.It("should enforce one signature per application", func() {
		// Given
		gomega.Expect(repo.Create(&ndamodel.NDASignature{ApplicationID: 7, SignatureData: "first"})).To(gomega.Succeed())

		// When a second signer races in
		err := repo.Create(&ndamodel.NDASignature{ApplicationID: 7, SignatureData: "second"})

		// Then the unique index makes the first write win
		gomega.Expect(err).To(gomega.MatchError(gorm.ErrDuplicatedKey))

		got, getErr := repo.GetByApplicationID(7)
		gomega.Expect(getErr).ToNot(gomega.HaveOccurred())
		gomega.Expect(got.SignatureData).To(gomega.Equal("first"))
	})

	ginkgo.It("should report whether a signature exists", func() {
		exists, err := repo.ExistsForApplication(7)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(exists).To(gomega.BeFalse())

		gomega.Expect(repo.Create(&ndamodel.NDASignature{ApplicationID: 7, SignatureData: "x"})).To(gomega.Succeed())

		exists, err = repo.ExistsForApplication(7)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(exists).To(gomega.BeTrue())
	})

	ginkgo.It("should return record not found for unsigned applications", func() {
		_, err := repo.GetByApplicationID(404)

		gomega.Expect(err).To(gomega.MatchError(gorm.ErrRecordNotFound))
	})
})
