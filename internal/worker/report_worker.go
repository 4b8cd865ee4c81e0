package worker

// report_worker.go
// Processes Z-report jobs from QueueSessionReport: renders the close report
// PDF for a closed drawer session and mails it to the supervisor address.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/infra"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SessionReportPayload is the job envelope sent to QueueSessionReport.
type SessionReportPayload struct {
	SessionID string `json:"session_id"`
}

type SessionReportWorker struct {
	drawerRepo  repository.DrawerRepository
	mailer      *infra.Mailer
	storagePath string
	supervisor  string
}

func NewSessionReportWorker(drawerRepo repository.DrawerRepository, mailer *infra.Mailer, storagePath, supervisor string) *SessionReportWorker {
	return &SessionReportWorker{
		drawerRepo:  drawerRepo,
		mailer:      mailer,
		storagePath: storagePath,
		supervisor:  supervisor,
	}
}

func (w *SessionReportWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload SessionReportPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("report_worker: invalid payload")
		return nil // malformed payloads are never retryable
	}

	id, err := uuid.Parse(payload.SessionID)
	if err != nil {
		log.Error().Str("session_id", payload.SessionID).Msg("report_worker: invalid session_id")
		return nil
	}

	session, err := w.drawerRepo.FindSessionByID(ctx, id)
	if err != nil {
		return fmt.Errorf("report_worker: session %s: %w", payload.SessionID, err)
	}

	pdfPath, err := infra.GenerateZReportPDF(session, w.storagePath)
	if err != nil {
		return fmt.Errorf("report_worker: generate pdf: %w", err)
	}

	if w.supervisor == "" {
		log.Debug().Str("session_id", payload.SessionID).Msg("report_worker: no supervisor mail configured, pdf stored only")
		return nil
	}

	subject := fmt.Sprintf("Z-Report — session %s", payload.SessionID)
	body := "Attached is the close report for the drawer session."
	if err := w.mailer.Send(w.supervisor, subject, body, pdfPath); err != nil {
		return fmt.Errorf("report_worker: send mail: %w", err)
	}

	log.Info().Str("session_id", payload.SessionID).Msg("report_worker: z-report delivered")
	return nil
}

// ConflictAlertPayload is the job envelope sent to QueueConflictAlert.
type ConflictAlertPayload struct {
	OfflineID string `json:"offline_id"`
	Reason    string `json:"reason"`
}

// ConflictAlertWorker mails the supervisor when a sync conflict needs manual
// review. Conflicts are never auto-resolved — this is the surfacing path.
type ConflictAlertWorker struct {
	mailer     *infra.Mailer
	supervisor string
}

func NewConflictAlertWorker(mailer *infra.Mailer, supervisor string) *ConflictAlertWorker {
	return &ConflictAlertWorker{mailer: mailer, supervisor: supervisor}
}

func (w *ConflictAlertWorker) Process(_ context.Context, raw json.RawMessage) error {
	var payload ConflictAlertPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("conflict_worker: invalid payload")
		return nil
	}
	if w.supervisor == "" {
		log.Warn().Str("offline_id", payload.OfflineID).Msg("conflict_worker: no supervisor mail configured")
		return nil
	}

	subject := "Sync conflict requires review: " + payload.OfflineID
	body := fmt.Sprintf("Offline order %s could not be applied: %s\n\nReview the terminal queue before resolving.", payload.OfflineID, payload.Reason)
	if err := w.mailer.Send(w.supervisor, subject, body, ""); err != nil {
		return fmt.Errorf("conflict_worker: send mail: %w", err)
	}
	return nil
}
