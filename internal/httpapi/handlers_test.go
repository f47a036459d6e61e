package httpapi

import (
	"bytes"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ro11032005/mediaingest/internal/config"
	"github.com/ro11032005/mediaingest/internal/upload"
	"github.com/ro11032005/mediaingest/internal/upload/store"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	root := t.TempDir()

	staging, err := upload.NewChunkStaging(filepath.Join(root, "staging"))
	require.NoError(t, err)
	objects, err := upload.NewObjectStore(filepath.Join(root, "storage"))
	require.NoError(t, err)
	dedup := upload.NewDedupIndex(objects.Root(), objects)

	cfg := config.Config{
		ChunkSize:          1 << 20,
		MaxFileSize:        10 << 20,
		MaxFiles:           10,
		AllowedTypes:       []string{"image/jpeg", "image/png", "video/mp4"},
		MaxParallelUploads: 3,
	}
	metadata := upload.NewMetadataValidator(cfg.MaxFileSize, cfg.AllowedTypes)
	manager := upload.NewManager(store.NewMemoryStore(), staging, objects, dedup, metadata, cfg.ChunkSize, zap.NewNop())

	return NewServer(manager, objects, dedup, cfg, zap.NewNop()).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func doChunk(t *testing.T, h http.Handler, uploadID string, index int, payload []byte) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("uploadId", uploadID))
	require.NoError(t, w.WriteField("chunkIndex", strconv.Itoa(index)))
	fw, err := w.CreateFormFile("chunk", "blob")
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/chunk", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)
	rec, body := doJSON(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
	require.NotEmpty(t, body["timestamp"])
}

func TestConfig_ReportsByteCapNotParallelism(t *testing.T) {
	h := newTestServer(t)
	rec, body := doJSON(t, h, http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cfg := body["config"].(map[string]interface{})
	require.Equal(t, float64(10<<20), cfg["maxFileSize"])
	require.Equal(t, float64(3), cfg["maxParallelUploads"])
	require.Equal(t, float64(1<<20), cfg["chunkSize"])
}

func TestUploadFlowOverHTTP(t *testing.T) {
	h := newTestServer(t)
	data := append([]byte{0xFF, 0xD8, 0xFF}, []byte("jpeg body bytes")...)
	sum := md5.Sum(data) //nolint:gosec
	digest := hex.EncodeToString(sum[:])

	// initiate
	rec, body := doJSON(t, h, http.MethodPost, "/initiate", map[string]interface{}{
		"filename": "hi.jpg",
		"mimeType": "image/jpeg",
		"fileSize": len(data),
		"md5Hash":  digest,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])
	uploadID := body["uploadId"].(string)
	require.Regexp(t, `^\d{14}-[0-9a-f]{16}$`, uploadID)
	require.Equal(t, float64(1), body["totalChunks"])

	// chunk
	rec, body = doChunk(t, h, uploadID, 0, data)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(100), body["progress"])

	// chunk replay
	rec, body = doChunk(t, h, uploadID, 0, data)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Chunk already uploaded", body["message"])

	// finalize
	rec, body = doJSON(t, h, http.MethodPost, "/finalize", map[string]interface{}{"uploadId": uploadID})
	require.Equal(t, http.StatusOK, rec.Code)
	storagePath := body["storagePath"].(string)
	require.Regexp(t, `^\d{4}/\d{2}/\d{2}/anonymous/hi_.+\.jpg$`, storagePath)

	// status reflects completion
	rec, body = doJSON(t, h, http.MethodGet, "/status/"+uploadID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := body["data"].(map[string]interface{})
	require.Equal(t, "completed", view["status"])
	require.Equal(t, storagePath, view["storagePath"])
	require.NotEmpty(t, view["completedAt"])

	// a second initiate with the same digest short-circuits
	rec, body = doJSON(t, h, http.MethodPost, "/initiate", map[string]interface{}{
		"filename": "copy.jpg",
		"mimeType": "image/jpeg",
		"fileSize": len(data),
		"md5Hash":  digest,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["duplicate"])
	require.Equal(t, storagePath, body["storagePath"])
}

func TestInitiate_ValidationErrorsEnvelope(t *testing.T) {
	h := newTestServer(t)
	rec, body := doJSON(t, h, http.MethodPost, "/initiate", map[string]interface{}{
		"filename": "x.bmp",
		"mimeType": "image/bmp",
		"fileSize": 0,
		"md5Hash":  "abc",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, false, body["success"])
	require.NotEmpty(t, body["error"])
	require.NotEmpty(t, body["errors"])
}

func TestStatus_UnknownSessionIs404(t *testing.T) {
	h := newTestServer(t)
	rec, body := doJSON(t, h, http.MethodGet, "/status/20240101000000-0123456789abcdef", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, false, body["success"])
}

func TestChunk_OutOfRangeIndexIs400(t *testing.T) {
	h := newTestServer(t)
	data := []byte{0xFF, 0xD8, 0xFF, 1, 2, 3}
	sum := md5.Sum(data) //nolint:gosec

	_, body := doJSON(t, h, http.MethodPost, "/initiate", map[string]interface{}{
		"filename": "x.jpg",
		"mimeType": "image/jpeg",
		"fileSize": len(data),
		"md5Hash":  hex.EncodeToString(sum[:]),
	})
	uploadID := body["uploadId"].(string)

	rec, body := doChunk(t, h, uploadID, 7, data)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, false, body["success"])
}

func TestCancel_ThenChunkIs400(t *testing.T) {
	h := newTestServer(t)
	data := []byte{0xFF, 0xD8, 0xFF, 1, 2, 3}
	sum := md5.Sum(data) //nolint:gosec

	_, body := doJSON(t, h, http.MethodPost, "/initiate", map[string]interface{}{
		"filename": "x.jpg",
		"mimeType": "image/jpeg",
		"fileSize": len(data),
		"md5Hash":  hex.EncodeToString(sum[:]),
	})
	uploadID := body["uploadId"].(string)

	rec, body := doJSON(t, h, http.MethodPost, "/cancel/"+uploadID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Upload cancelled", body["message"])

	rec, body = doChunk(t, h, uploadID, 0, data)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, false, body["success"])

	// cancelling twice is a conflict
	rec, _ = doJSON(t, h, http.MethodPost, "/cancel/"+uploadID, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOwnerHeaderPartitionsStorage(t *testing.T) {
	h := newTestServer(t)
	data := append([]byte{0xFF, 0xD8, 0xFF}, []byte("owned upload")...)
	sum := md5.Sum(data) //nolint:gosec

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]interface{}{
		"filename": "mine.jpg",
		"mimeType": "image/jpeg",
		"fileSize": len(data),
		"md5Hash":  hex.EncodeToString(sum[:]),
	}))
	req := httptest.NewRequest(http.MethodPost, "/initiate", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "user-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	body := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	uploadID := body["uploadId"].(string)

	_, _ = doChunk(t, h, uploadID, 0, data)
	_, body = doJSON(t, h, http.MethodPost, "/finalize", map[string]interface{}{"uploadId": uploadID})
	require.Regexp(t, `^\d{4}/\d{2}/\d{2}/user-42/mine_.+\.jpg$`, body["storagePath"])
}

func TestStats(t *testing.T) {
	h := newTestServer(t)
	rec, body := doJSON(t, h, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := body["stats"].(map[string]interface{})
	require.Equal(t, float64(0), stats["fileCount"])
	require.Equal(t, float64(0), stats["activeSessions"])
}
