package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadRequest(t *testing.T, path string, filename string, content string) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func listFiles(t *testing.T, dir string) []string {
	var files []string
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			rel, _ := filepath.Rel(dir, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	return files
}

func TestUploadInvoiceAttachment(t *testing.T) {
	a := newTestAPI(t)
	a.mock.ExpectBegin()
	a.mock.ExpectExec(regexp.QuoteMeta(updateInvoiceFileSQL)).WithArgs(sqlmock.AnyArg(), 1).WillReturnResult(sqlmock.NewResult(0, 1))
	a.mock.ExpectCommit()

	w, resp := a.serve(t, uploadRequest(t, "/api/invoices/1/attachment", "scan 01.pdf", "%PDF-1.4"))
	assert.Equal(t, http.StatusCreated, w.Code)
	var attachment Attachment
	require.NoError(t, json.Unmarshal(resp.Data, &attachment))
	assert.True(t, strings.HasPrefix(attachment.FilePath, "/uploads/invoices/1/"))
	assert.True(t, strings.HasSuffix(attachment.FilePath, "-scan_01.pdf"))

	files := listFiles(t, a.dir)
	require.Len(t, files, 1)
	assert.Equal(t, strings.TrimPrefix(attachment.FilePath, "/uploads/"), files[0])
	buf, err := os.ReadFile(filepath.Join(a.dir, filepath.FromSlash(files[0])))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(buf))
	assert.NoError(t, a.mock.ExpectationsWereMet())
}

func TestUploadAttachmentMissingRecord(t *testing.T) {
	a := newTestAPI(t)
	a.mock.ExpectBegin()
	a.mock.ExpectExec(regexp.QuoteMeta(updatePurchaseOrderFileSQL)).WithArgs(sqlmock.AnyArg(), 42).WillReturnResult(sqlmock.NewResult(0, 0))
	a.mock.ExpectRollback()

	w, resp := a.serve(t, uploadRequest(t, "/api/purchase-orders/42/attachment", "po.pdf", "data"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "purchase orders 42: not found", resp.Message)
	assert.Empty(t, listFiles(t, a.dir))
	assert.NoError(t, a.mock.ExpectationsWereMet())
}

func TestUploadAttachmentRequiresFile(t *testing.T) {
	a := newTestAPI(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "x"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest("POST", "/api/invoices/1/attachment", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w, resp := a.serve(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "file: file required", resp.Message)

	req = httptest.NewRequest("POST", "/api/invoices/1/attachment", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w, resp = a.serve(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "file: failed to parse form", resp.Message)
	assert.NoError(t, a.mock.ExpectationsWereMet())
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "passwd", safeFilename("../../etc/passwd"))
	assert.Equal(t, "evil.pdf", safeFilename(`C:\temp\evil.pdf`))
	assert.Equal(t, "a_b_c.txt", safeFilename("a b*c.txt"))
	assert.Equal(t, "file", safeFilename(".."))
}
