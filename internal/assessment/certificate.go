package assessment

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/intranet/internal/audit"
	"github.com/nikhilbhutani/intranet/internal/metrics"
	"github.com/nikhilbhutani/intranet/internal/models"
	"github.com/nikhilbhutani/intranet/internal/queue"
)

// Crockford base32: no I, L, O or U.
const codeAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const maxCodeAttempts = 3

func GenerateCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// IssueCertificate returns the user's certificate for the course, creating it
// on first call. Concurrent callers converge on the same row: losing the
// insert race re-reads the winner's certificate.
func (s *Service) IssueCertificate(ctx context.Context, userID, courseID uuid.UUID) (*models.Certificate, error) {
	existing, err := s.store.GetCertificate(ctx, userID, courseID)
	if err == nil {
		s.metrics.ObserveCertificate(metrics.CertificateExisting)
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("lookup certificate: %w", err)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load certificate holder: %w", err)
	}
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load certificate course: %w", err)
	}

	cert := &models.Certificate{
		UserID:      userID,
		CourseID:    courseID,
		UserName:    user.Name,
		CourseTitle: course.Title,
	}

	for i := 0; i < maxCodeAttempts; i++ {
		cert.Code, err = GenerateCode(s.codeLength)
		if err != nil {
			return nil, err
		}
		err = s.store.InsertCertificate(ctx, cert)
		if !errors.Is(err, errCodeTaken) {
			break
		}
	}

	switch {
	case errors.Is(err, models.ErrConflict):
		winner, err := s.store.GetCertificate(ctx, userID, courseID)
		if err != nil {
			return nil, fmt.Errorf("reread certificate after conflict: %w", err)
		}
		s.metrics.ObserveCertificate(metrics.CertificateExisting)
		return winner, nil
	case err != nil:
		return nil, fmt.Errorf("insert certificate: %w", err)
	}

	s.metrics.ObserveCertificate(metrics.CertificateCreated)
	slog.InfoContext(ctx, "certificate issued", "certificate_id", cert.ID, "user_id", userID, "course_id", courseID)

	s.record(ctx, audit.LogEntry{
		ActorID:      &userID,
		Action:       audit.ActionCertificateIssued,
		ResourceType: "certificate",
		ResourceID:   &cert.ID,
		Details:      map[string]interface{}{"course_id": courseID, "code": cert.Code},
	})

	if s.notifier != nil {
		err := s.notifier.EnqueueCertificateIssued(ctx, queue.CertificateIssuedPayload{
			CertificateID: cert.ID.String(),
			UserID:        userID.String(),
			CourseID:      courseID.String(),
			Code:          cert.Code,
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to enqueue certificate notification", "certificate_id", cert.ID, "error", err)
		}
	}
	return cert, nil
}

func (s *Service) GetCertificateByCode(ctx context.Context, code string) (*models.Certificate, error) {
	return s.store.GetCertificateByCode(ctx, code)
}

func (s *Service) ListCertificates(ctx context.Context, userID uuid.UUID) ([]models.Certificate, error) {
	return s.store.ListCertificates(ctx, userID)
}
