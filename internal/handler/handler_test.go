package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/journiv/internal/archive"
	"github.com/xxxsen/journiv/internal/handler"
	"github.com/xxxsen/journiv/internal/mediastore"
	"github.com/xxxsen/journiv/internal/model"
	"github.com/xxxsen/journiv/internal/pkg/errcode"
	"github.com/xxxsen/journiv/internal/pkg/jwt"
	"github.com/xxxsen/journiv/internal/repo"
	"github.com/xxxsen/journiv/internal/service"
	"github.com/xxxsen/journiv/internal/source"
	"github.com/xxxsen/journiv/internal/source/dayone"
	"github.com/xxxsen/journiv/internal/testutil"
)

var jwtSecret = []byte("test-secret")

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	router  http.Handler
	jobs    *service.JobService
	stores  *service.Stores
	newUser func() (*model.User, string)
}

func setupRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := testutil.OpenTestDB(t)
	root := t.TempDir()
	stores := service.NewStores(conn)
	engine := mediastore.New(filepath.Join(root, "media"), stores.Media)
	uploads := service.NewUploadService(filepath.Join(root, "tmp"), 10<<20)
	importer := service.NewMediaImporter(engine, nil, 2, filepath.Join(root, "tmp"))
	registry := source.NewRegistry(dayone.NewAdapter(dayone.ParserLimits{}))
	imports := service.NewImportService(repo.NewTxRunner(conn), stores, importer, archive.NewExtractor(archive.Limits{}), registry, uploads, nil)
	exports := service.NewExportService(stores, engine, filepath.Join(root, "exports"), nil, "test")
	jobs := service.NewJobService(repo.NewImportJobRepo(conn), repo.NewExportJobRepo(conn), imports, exports, uploads, 1, 0)

	r := gin.New()
	handler.RegisterRoutes(r.Group("/api/v1"), handler.RouterDeps{
		Import:    handler.NewImportHandler(jobs, uploads, 10<<20),
		Export:    handler.NewExportHandler(jobs),
		Media:     handler.NewMediaHandler(service.NewMediaService(stores, engine)),
		JWTSecret: jwtSecret,
	})
	return &testServer{
		router: r,
		jobs:   jobs,
		stores: stores,
		newUser: func() (*model.User, string) {
			user := testutil.CreateUser(t, conn)
			token, err := jwt.GenerateToken(user.ID, user.Email, jwtSecret, time.Hour)
			require.NoError(t, err)
			return user, token
		},
	}
}

func (s *testServer) do(t *testing.T, req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	return resp
}

func (s *testServer) call(t *testing.T, method, path, token string, body []byte) envelope {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	var out envelope
	require.NoError(t, json.Unmarshal(s.do(t, req, token).Body.Bytes(), &out))
	return out
}

func (s *testServer) upload(t *testing.T, token, sourceType, filename string, data []byte) envelope {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if sourceType != "" {
		require.NoError(t, mw.WriteField("source", sourceType))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out envelope
	require.NoError(t, json.Unmarshal(s.do(t, req, token).Body.Bytes(), &out))
	return out
}

func (s *testServer) seedJournal(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC).Unix()
	j := &model.Journal{ID: uuid.NewString(), UserID: userID, Title: "Notes", Ctime: now, Mtime: now}
	require.NoError(t, s.stores.Journals.Create(ctx, j))
	e := &model.Entry{
		ID:            uuid.NewString(),
		JournalID:     j.ID,
		UserID:        userID,
		Content:       "Morning walk by the river.",
		EntryDatetime: now,
		EntryTimezone: "UTC",
		Ctime:         now,
		Mtime:         now,
	}
	require.NoError(t, e.Derive())
	require.NoError(t, s.stores.Entries.Create(ctx, e))
}

func jobID(t *testing.T, out envelope) string {
	t.Helper()
	require.Equal(t, 0, out.Code, out.Msg)
	var data struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &data))
	require.NotEmpty(t, data.JobID)
	return data.JobID
}

func TestRoutesRequireToken(t *testing.T) {
	s := setupRouter(t)
	for _, path := range []string{"/api/v1/import", "/api/v1/export", "/api/v1/export/x"} {
		out := s.call(t, http.MethodGet, path, "", nil)
		assert.Equal(t, errcode.ErrUnauthorized, out.Code, path)
	}
	out := s.call(t, http.MethodGet, "/api/v1/export", "not-a-token", nil)
	assert.Equal(t, errcode.ErrUnauthorized, out.Code)
}

func TestExportDownloadAndReimport(t *testing.T) {
	s := setupRouter(t)
	ctx := context.Background()
	owner, ownerToken := s.newUser()
	s.seedJournal(t, owner.ID)

	id := jobID(t, s.call(t, http.MethodPost, "/api/v1/export", ownerToken, []byte(`{"export_type":"full"}`)))

	out := s.call(t, http.MethodGet, "/api/v1/export/"+id+"/download", ownerToken, nil)
	assert.Equal(t, errcode.ErrConflict, out.Code, "pending export has no archive")

	require.NoError(t, s.jobs.Handle(ctx, service.JobKindExport, id))

	out = s.call(t, http.MethodGet, "/api/v1/export/"+id, ownerToken, nil)
	require.Equal(t, 0, out.Code)
	var view struct {
		Status      string `json:"status"`
		Progress    int    `json:"progress"`
		DownloadURL string `json:"download_url"`
		FileSize    int64  `json:"file_size"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &view))
	assert.Equal(t, "completed", view.Status)
	assert.Equal(t, 100, view.Progress)
	assert.Equal(t, "/api/v1/export/"+id+"/download", view.DownloadURL)

	resp := s.do(t, httptest.NewRequest(http.MethodGet, view.DownloadURL, nil), ownerToken)
	assert.Equal(t, "application/zip", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "journiv_export_")
	archiveData := resp.Body.Bytes()
	assert.Equal(t, view.FileSize, int64(len(archiveData)))

	other, otherToken := s.newUser()
	out = s.call(t, http.MethodGet, "/api/v1/export/"+id, otherToken, nil)
	assert.Equal(t, errcode.ErrNotFound, out.Code, "jobs are private to their owner")

	importID := jobID(t, s.upload(t, otherToken, "", "backup.zip", archiveData))
	require.NoError(t, s.jobs.Handle(ctx, service.JobKindImport, importID))

	out = s.call(t, http.MethodGet, "/api/v1/import/"+importID, otherToken, nil)
	require.Equal(t, 0, out.Code)
	var importView struct {
		Status     string `json:"status"`
		SourceType string `json:"source_type"`
		ResultData struct {
			JournalsCreated int `json:"journals_created"`
			EntriesCreated  int `json:"entries_created"`
		} `json:"result_data"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &importView))
	assert.Equal(t, "completed", importView.Status)
	assert.Equal(t, "journiv", importView.SourceType)
	assert.Equal(t, 1, importView.ResultData.JournalsCreated)
	assert.Equal(t, 1, importView.ResultData.EntriesCreated)

	journals, err := s.stores.Journals.ListByUser(ctx, other.ID)
	require.NoError(t, err)
	require.Len(t, journals, 1)
	assert.Equal(t, "Notes", journals[0].Title)

	out = s.call(t, http.MethodGet, "/api/v1/import", otherToken, nil)
	require.Equal(t, 0, out.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Data, &list))
	assert.Len(t, list, 1)
}

func TestImportUploadValidation(t *testing.T) {
	s := setupRouter(t)
	_, token := s.newUser()

	out := s.upload(t, token, "", "notes.txt", []byte("hello"))
	assert.Equal(t, errcode.ErrInvalidFile, out.Code)

	out = s.upload(t, token, "evernote", "notes.zip", []byte("PK"))
	assert.Equal(t, errcode.ErrUnsupportedSource, out.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", nil)
	var missing envelope
	require.NoError(t, json.Unmarshal(s.do(t, req, token).Body.Bytes(), &missing))
	assert.Equal(t, errcode.ErrInvalidFile, missing.Code)
}

func TestCancelExport(t *testing.T) {
	s := setupRouter(t)
	_, token := s.newUser()

	out := s.call(t, http.MethodPost, "/api/v1/export", token, []byte(`{"export_type":"journal"}`))
	assert.Equal(t, errcode.ErrValidation, out.Code)

	out = s.call(t, http.MethodPost, "/api/v1/export", token, []byte(`{"export_type":"weekly"}`))
	assert.Equal(t, errcode.ErrInvalid, out.Code)

	id := jobID(t, s.call(t, http.MethodPost, "/api/v1/export", token, []byte(`{"include_media":false}`)))
	out = s.call(t, http.MethodPost, "/api/v1/export/"+id+"/cancel", token, nil)
	require.Equal(t, 0, out.Code)
	var view struct {
		Status       string `json:"status"`
		ExportType   string `json:"export_type"`
		IncludeMedia bool   `json:"include_media"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &view))
	assert.Equal(t, "cancelled", view.Status)
	assert.Equal(t, "full", view.ExportType)
	assert.False(t, view.IncludeMedia)

	out = s.call(t, http.MethodPost, "/api/v1/export/"+id+"/cancel", token, nil)
	assert.Equal(t, errcode.ErrJobFinished, out.Code)

	out = s.call(t, http.MethodPost, "/api/v1/import/"+uuid.NewString()+"/cancel", token, nil)
	assert.Equal(t, errcode.ErrNotFound, out.Code)
}

func TestDeleteUnknownMedia(t *testing.T) {
	s := setupRouter(t)
	_, token := s.newUser()
	out := s.call(t, http.MethodDelete, "/api/v1/media/"+uuid.NewString(), token, nil)
	assert.Equal(t, errcode.ErrNotFound, out.Code)
}
