package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/modules/migration/infrastructure/locking"
	"github.com/iota-uz/legacy-migrator/modules/migration/presentation/controllers/dtos"
	"github.com/iota-uz/legacy-migrator/modules/migration/services"
	"github.com/iota-uz/legacy-migrator/pkg/application"
	"github.com/iota-uz/legacy-migrator/pkg/composables"
	"github.com/iota-uz/legacy-migrator/pkg/configuration"
	"github.com/iota-uz/legacy-migrator/pkg/constants"
	"github.com/iota-uz/legacy-migrator/pkg/middleware"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type MigrationAPIController struct {
	app       application.Application
	sessions  *services.SessionService
	gate      *services.Gate
	guard     *locking.TenantGuard
	apiPrefix string
}

func NewMigrationAPIController(app application.Application) application.Controller {
	return &MigrationAPIController{
		app:       app,
		sessions:  app.Service(services.SessionService{}).(*services.SessionService),
		gate:      app.Service(services.Gate{}).(*services.Gate),
		guard:     app.Service(locking.TenantGuard{}).(*locking.TenantGuard),
		apiPrefix: "/migration/api",
	}
}

func (c *MigrationAPIController) Key() string {
	return c.apiPrefix
}

func (c *MigrationAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()
	api.Use(middleware.ProvideIdentity())

	api.HandleFunc("/sessions", c.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", c.ListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", c.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/mapping", c.SubmitMapping).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/execute", c.Execute).Methods(http.MethodPost)

	api.HandleFunc("/reports", c.ListReports).Methods(http.MethodGet)
	api.HandleFunc("/reports/{id}.xlsx", c.ExportReport).Methods(http.MethodGet)
	api.HandleFunc("/reports/{id}", c.GetReport).Methods(http.MethodGet)
}

// CreateSession analyzes the uploaded files for the tenant named in the
// tenant_id form field.
func (c *MigrationAPIController) CreateSession(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	maxSize := configuration.Use().Migration.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, requestID, "MIGRATION_UPLOAD_TOO_LARGE", "upload exceeds the size limit")
			return
		}
		writeAPIError(w, http.StatusBadRequest, requestID, "MIGRATION_INVALID_BODY", "expected a multipart upload")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	tenantID := uuid.Nil
	if raw := strings.TrimSpace(r.FormValue("tenant_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, "MIGRATION_INVALID_TENANT", "tenant_id must be a uuid")
			return
		}
		tenantID = id
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeAPIError(w, http.StatusBadRequest, requestID, "MIGRATION_NO_FILES", "at least one file is required")
		return
	}
	files := make([]domain.SourceFile, 0, len(headers))
	for _, fh := range headers {
		content, err := readUpload(fh)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, "MIGRATION_INVALID_BODY", fmt.Sprintf("cannot read %s", fh.Filename))
			return
		}
		files = append(files, domain.SourceFile{Name: fh.Filename, Content: content})
	}

	identity := currentIdentity(r.Context())
	result, err := c.sessions.StartAnalyze(r.Context(), files, tenantID, identity)
	if err != nil {
		if errors.Is(err, domain.ErrNoParsableFiles) {
			writeJSON(w, http.StatusUnprocessableEntity, dtos.APIError{
				Code:     domain.ErrNoParsableFiles.Code,
				Message:  err.Error(),
				Meta:     requestMeta(requestID),
				Analysis: result,
			})
			return
		}
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (c *MigrationAPIController) ListSessions(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	tenantID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("tenant_id")))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "MIGRATION_INVALID_TENANT", "tenant_id must be a uuid")
		return
	}
	if !c.requireReportAccess(w, r, requestID) {
		return
	}
	writeJSON(w, http.StatusOK, c.sessions.List(tenantID))
}

func (c *MigrationAPIController) GetSession(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	id, ok := pathUUID(w, r, requestID)
	if !ok {
		return
	}
	if !c.requireReportAccess(w, r, requestID) {
		return
	}
	snap, err := c.sessions.Get(id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (c *MigrationAPIController) SubmitMapping(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	id, ok := pathUUID(w, r, requestID)
	if !ok {
		return
	}
	var req dtos.MappingRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "MIGRATION_INVALID_BODY", "invalid json body")
		return
	}
	if err := constants.Validate.Struct(&req); err != nil {
		writeValidationErrors(w, requestID, err)
		return
	}

	var opts []services.ResolveOption
	if req.DedupStrategy != "" {
		opts = append(opts, services.ResolveWithDedupStrategy(req.DedupStrategy))
	}
	plan, err := c.sessions.SubmitMapping(r.Context(), id, req.ColumnMapping(), req.ValueMapping(), opts...)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos.MappingResponse{SessionID: id, Plan: plan.Snapshot()})
}

// Execute applies the session plan while holding the tenant lock.
func (c *MigrationAPIController) Execute(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	id, ok := pathUUID(w, r, requestID)
	if !ok {
		return
	}
	snap, err := c.sessions.Get(id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}

	var report *domain.MigrationReport
	err = c.guard.Run(r.Context(), snap.TenantID, func(ctx context.Context) error {
		var runErr error
		report, runErr = c.sessions.Execute(ctx, id)
		return runErr
	})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	composables.UseLogger(r.Context()).WithFields(logrus.Fields{
		"component": "migration.api",
		"session":   id,
		"report":    report.ID,
	}).Info("migration executed")
	writeJSON(w, http.StatusOK, report)
}

func (c *MigrationAPIController) ListReports(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	q := r.URL.Query()
	tenantID, err := uuid.Parse(strings.TrimSpace(q.Get("tenant_id")))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "MIGRATION_INVALID_TENANT", "tenant_id must be a uuid")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeAPIError(w, http.StatusBadRequest, requestID, "MIGRATION_INVALID_QUERY", "limit must be a positive integer")
			return
		}
	}
	if !c.requireReportAccess(w, r, requestID) {
		return
	}
	reports, err := c.sessions.ListReports(r.Context(), tenantID, limit)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	out := dtos.ReportList{Reports: make([]dtos.ReportSummary, 0, len(reports))}
	for _, rep := range reports {
		out.Reports = append(out.Reports, dtos.NewReportSummary(rep))
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *MigrationAPIController) GetReport(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	report, ok := c.loadReport(w, r, requestID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (c *MigrationAPIController) ExportReport(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	report, ok := c.loadReport(w, r, requestID)
	if !ok {
		return
	}
	body, err := services.ExportReportXLSX(report)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "migration-report-"+report.ID.String()+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (c *MigrationAPIController) loadReport(w http.ResponseWriter, r *http.Request, requestID string) (*domain.MigrationReport, bool) {
	id, ok := pathUUID(w, r, requestID)
	if !ok {
		return nil, false
	}
	if !c.requireReportAccess(w, r, requestID) {
		return nil, false
	}
	report, err := c.sessions.Report(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return nil, false
	}
	return report, true
}

func (c *MigrationAPIController) requireReportAccess(w http.ResponseWriter, r *http.Request, requestID string) bool {
	ok, err := c.gate.CanReadReports(r.Context(), currentIdentity(r.Context()))
	if err != nil {
		composables.UseLogger(r.Context()).WithError(err).Error("report access check failed")
		writeAPIError(w, http.StatusForbidden, requestID, domain.ErrPermissionDenied.Code, "report access check failed")
		return false
	}
	if !ok {
		writeAPIError(w, http.StatusForbidden, requestID, domain.ErrPermissionDenied.Code, "not allowed to read migration reports")
		return false
	}
	return true
}

func currentIdentity(ctx context.Context) domain.Identity {
	identity, err := composables.UseIdentity(ctx)
	if err != nil {
		return domain.Identity{}
	}
	return identity
}

func pathUUID(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "MIGRATION_INVALID_ID", "id must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func decodeJSON(body io.ReadCloser, out any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeValidationErrors(w http.ResponseWriter, requestID string, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeAPIError(w, http.StatusBadRequest, requestID, "MIGRATION_INVALID_BODY", err.Error())
		return
	}
	issues := make([]domain.ValidationIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, domain.ValidationIssue{
			Code:    "INVALID_" + strings.ToUpper(fe.Tag()),
			Field:   fe.Namespace(),
			Message: fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag()),
		})
	}
	writeJSON(w, http.StatusBadRequest, dtos.APIError{
		Code:    "MIGRATION_INVALID_BODY",
		Message: "request validation failed",
		Meta:    requestMeta(requestID),
		Issues:  issues,
	})
}
