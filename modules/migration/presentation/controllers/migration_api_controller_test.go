package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/modules/migration/infrastructure/locking"
	"github.com/iota-uz/legacy-migrator/modules/migration/infrastructure/persistence"
	"github.com/iota-uz/legacy-migrator/modules/migration/presentation/controllers/dtos"
	"github.com/iota-uz/legacy-migrator/modules/migration/services"
	"github.com/iota-uz/legacy-migrator/pkg/application"
)

const clientesCSV = "Nome,Telefone,Bairro\nMaria Silva,85999990000,Centro\nJoao Souza,85988880000,Aldeota\n"

type apiFixture struct {
	router *mux.Router
	locker *locking.MemoryLocker
	store  *persistence.MemoryStore
	admin  uuid.UUID
	viewer uuid.UUID
	tenant uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		locker: locking.NewMemoryLocker(),
		store:  persistence.NewMemoryStore(),
		admin:  uuid.New(),
		viewer: uuid.New(),
		tenant: uuid.New(),
	}
	logger := logrus.New()
	app := application.New(&application.ApplicationOptions{Logger: logger})

	gate := services.NewGate(services.AuthorizerFunc(func(_ context.Context, id domain.Identity) (bool, error) {
		return id.UserID == f.admin, nil
	}))
	execOpts := services.DefaultExecutorOptions()
	execOpts.InitialBackoff = time.Millisecond
	execOpts.MaxBackoff = time.Millisecond
	sessions := services.NewSessionService(
		services.NewAnalyzerService(services.DefaultAnalyzerOptions()),
		services.NewExecutorService(f.store, execOpts),
		gate,
		persistence.NewMemoryReportRepository(),
		app.EventPublisher(),
		services.SessionServiceOptions{},
	)
	app.RegisterServices(sessions, gate, locking.NewTenantGuard(f.locker, time.Minute))

	f.router = mux.NewRouter()
	NewMigrationAPIController(app).Register(f.router)
	return f
}

func (f *apiFixture) do(t *testing.T, user uuid.UUID, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if user != uuid.Nil {
		req.Header.Set("X-User-ID", user.String())
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) upload(t *testing.T, user uuid.UUID, tenant string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if tenant != "" {
		require.NoError(t, mw.WriteField("tenant_id", tenant))
	}
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/migration/api/sessions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return f.do(t, user, req)
}

func (f *apiFixture) startSession(t *testing.T) uuid.UUID {
	t.Helper()
	rec := f.upload(t, f.admin, f.tenant.String(), map[string]string{"clientes.csv": clientesCSV})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result domain.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotEqual(t, uuid.Nil, result.SessionID)
	return result.SessionID
}

func (f *apiFixture) putMapping(t *testing.T, user, sessionID uuid.UUID, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/migration/api/sessions/"+sessionID.String()+"/mapping", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return f.do(t, user, req)
}

func scenarioMapping() dtos.MappingRequest {
	return dtos.MappingRequest{
		Columns: []domain.ColumnMappingEntry{
			{File: "clientes.csv", Header: "Nome", Field: domain.FieldCustomerName},
			{File: "clientes.csv", Header: "Telefone", Field: domain.FieldCustomerPhone},
			{File: "clientes.csv", Header: "Bairro", Field: domain.FieldAddressNeighborhood},
		},
		Values: []domain.ValueMappingEntry{
			{Field: domain.FieldAddressNeighborhood, Raw: "Centro", Canonical: "Centro - Zona Sul"},
		},
	}
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) dtos.APIError {
	t.Helper()
	var apiErr dtos.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestMigrationAPI_FullFlow(t *testing.T) {
	f := newAPIFixture(t)
	sessionID := f.startSession(t)

	rec := f.putMapping(t, f.admin, sessionID, scenarioMapping())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var mapping dtos.MappingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mapping))
	require.Equal(t, f.tenant, mapping.Plan.TenantID)
	require.Len(t, mapping.Plan.Columns, 3)

	rec = f.do(t, f.admin, httptest.NewRequest(http.MethodPost, "/migration/api/sessions/"+sessionID.String()+"/execute", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report domain.MigrationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, 2, report.Counts[domain.OutcomeCreated])
	require.False(t, report.DryRun)
	require.Equal(t, 2, f.store.Count(f.tenant, domain.EntityCustomer))

	rec = f.do(t, f.admin, httptest.NewRequest(http.MethodGet, "/migration/api/sessions/"+sessionID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var snap services.SessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, domain.StateCompleted, snap.State)
	require.Equal(t, report.ID, snap.ReportID)

	rec = f.do(t, f.admin, httptest.NewRequest(http.MethodGet, "/migration/api/reports/"+report.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, f.admin, httptest.NewRequest(http.MethodGet, "/migration/api/reports/"+report.ID.String()+".xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	require.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = f.do(t, f.admin, httptest.NewRequest(http.MethodGet, "/migration/api/reports?tenant_id="+f.tenant.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list dtos.ReportList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Reports, 1)
	require.Equal(t, report.ID, list.Reports[0].ID)

	rec = f.do(t, f.admin, httptest.NewRequest(http.MethodPost, "/migration/api/sessions/"+sessionID.String()+"/execute", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, domain.ErrInvalidTransition.Code, decodeAPIError(t, rec).Code)
}

func TestMigrationAPI_NonAdminIsForbidden(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.upload(t, f.viewer, f.tenant.String(), map[string]string{"clientes.csv": clientesCSV})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, domain.ErrPermissionDenied.Code, decodeAPIError(t, rec).Code)

	rec = f.upload(t, uuid.Nil, f.tenant.String(), map[string]string{"clientes.csv": clientesCSV})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, f.viewer, httptest.NewRequest(http.MethodGet, "/migration/api/reports?tenant_id="+f.tenant.String(), nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMigrationAPI_AnotherOperatorCannotDriveSession(t *testing.T) {
	f := newAPIFixture(t)
	sessionID := f.startSession(t)

	rec := f.putMapping(t, f.viewer, sessionID, scenarioMapping())
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.putMapping(t, f.admin, sessionID, scenarioMapping())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMigrationAPI_InvalidMappingKeepsReview(t *testing.T) {
	f := newAPIFixture(t)
	sessionID := f.startSession(t)

	bad := scenarioMapping()
	bad.Columns[0].Field = "customer_shoe_size"
	rec := f.putMapping(t, f.admin, sessionID, bad)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	apiErr := decodeAPIError(t, rec)
	require.Equal(t, domain.ErrInvalidPlan.Code, apiErr.Code)
	require.Len(t, apiErr.Issues, 1)
	require.Equal(t, services.IssueUnknownField, apiErr.Issues[0].Code)

	rec = f.putMapping(t, f.admin, sessionID, scenarioMapping())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMigrationAPI_MappingBodyValidation(t *testing.T) {
	f := newAPIFixture(t)
	sessionID := f.startSession(t)

	rec := f.putMapping(t, f.admin, sessionID, map[string]any{
		"columns": []map[string]string{{"file": "clientes.csv", "field": domain.FieldCustomerName}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	apiErr := decodeAPIError(t, rec)
	require.Equal(t, "MIGRATION_INVALID_BODY", apiErr.Code)
	require.NotEmpty(t, apiErr.Issues)

	rec = f.putMapping(t, f.admin, sessionID, map[string]any{"columns": []any{}, "unexpected": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := scenarioMapping()
	req.DedupStrategy = "phone_shoe"
	rec = f.putMapping(t, f.admin, sessionID, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMigrationAPI_ExecuteWhileTenantLocked(t *testing.T) {
	f := newAPIFixture(t)
	sessionID := f.startSession(t)
	rec := f.putMapping(t, f.admin, sessionID, scenarioMapping())
	require.Equal(t, http.StatusOK, rec.Code)

	release, err := f.locker.Acquire(context.Background(), f.tenant, time.Minute)
	require.NoError(t, err)

	rec = f.do(t, f.admin, httptest.NewRequest(http.MethodPost, "/migration/api/sessions/"+sessionID.String()+"/execute", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, locking.ErrLocked.Code, decodeAPIError(t, rec).Code)
	require.Zero(t, f.store.Count(f.tenant, domain.EntityCustomer))

	require.NoError(t, release(context.Background()))
	rec = f.do(t, f.admin, httptest.NewRequest(http.MethodPost, "/migration/api/sessions/"+sessionID.String()+"/execute", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMigrationAPI_UploadErrors(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.upload(t, f.admin, f.tenant.String(), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "MIGRATION_NO_FILES", decodeAPIError(t, rec).Code)

	rec = f.upload(t, f.admin, "not-a-tenant", map[string]string{"clientes.csv": clientesCSV})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.upload(t, f.admin, f.tenant.String(), map[string]string{"blank.csv": "\n\n"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	apiErr := decodeAPIError(t, rec)
	require.Equal(t, domain.ErrNoParsableFiles.Code, apiErr.Code)
	require.NotNil(t, apiErr.Analysis)
	require.Len(t, apiErr.Analysis.FileErrors, 1)

	req := httptest.NewRequest(http.MethodPost, "/migration/api/sessions", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec = f.do(t, f.admin, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMigrationAPI_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, f.admin, httptest.NewRequest(http.MethodGet, "/migration/api/sessions/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, domain.ErrSessionNotFound.Code, decodeAPIError(t, rec).Code)

	rec = f.do(t, f.admin, httptest.NewRequest(http.MethodGet, "/migration/api/reports/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, f.admin, httptest.NewRequest(http.MethodGet, "/migration/api/sessions/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
