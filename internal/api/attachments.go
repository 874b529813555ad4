package api

import (
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/procure/internal/schema"
)

func safeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

func (a *API) handleInvoiceAttachment(w http.ResponseWriter, r *http.Request) {
	a.upload(w, r, schema.Invoices, updateInvoiceFileSQL)
}

func (a *API) handlePurchaseOrderAttachment(w http.ResponseWriter, r *http.Request) {
	a.upload(w, r, schema.PurchaseOrders, updatePurchaseOrderFileSQL)
}

// upload stores the multipart file and points the row's file_path at it. The object is removed again if the row does not exist.
func (a *API) upload(w http.ResponseWriter, r *http.Request, table string, update string) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		a.fail(w, r, &ValidationError{Field: "file", Message: "failed to parse form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.fail(w, r, &ValidationError{Field: "file", Message: "file required"})
		return
	}
	defer file.Close()

	key := fmt.Sprintf("%s/%d/%d-%s", table, id, time.Now().UnixMilli(), safeFilename(header.Filename))
	contentType := header.Header.Get("Content-Type")
	if err := a.storage.Put(r.Context(), key, file, header.Size, contentType); err != nil {
		a.logger.Error("error storing %s: %s", key, err)
		sendError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	location := a.storage.URL(key)
	err = a.db.WithTx(r.Context(), func(tx *sql.Tx) error {
		res, err := tx.ExecContext(r.Context(), update, location, id)
		if err != nil {
			return err
		}
		if count, err := res.RowsAffected(); err != nil {
			return err
		} else if count == 0 {
			return errors.Wrapf(ErrNotFound, "%s %d", strings.ReplaceAll(table, "_", " "), id)
		}
		return nil
	})
	if err != nil {
		if derr := a.storage.Delete(r.Context(), key); derr != nil {
			a.logger.Warn("error removing %s: %s", key, derr)
		}
		a.fail(w, r, err)
		return
	}
	sendSuccess(w, http.StatusCreated, "file uploaded", Attachment{ID: id, FilePath: location, Size: header.Size})
}
