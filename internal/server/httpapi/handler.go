// Package httpapi exposes the storage engine over HTTP. Handlers only
// translate requests and errors; all decisions live in the file service.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/auth"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/gorilla/mux"
)

const (
	HeaderFileName     = "X-File-Name"
	HeaderParentFolder = "X-Parent-Folder-Id"
)

// Files is the part of the file service the HTTP API needs.
type Files interface {
	Upload(ctx context.Context, r io.Reader, name string, declaredSize int64, ownerID string, parentFolderID *string) (string, error)
	Download(ctx context.Context, fileID, requesterID string) (io.ReadCloser, string, error)
	DownloadVersion(ctx context.Context, fileID string, version int64, requesterID string) (io.ReadCloser, string, error)
	CreateVersion(ctx context.Context, fileID string, r io.Reader, userID string) (int64, error)
	CreateFolder(ctx context.Context, name, ownerID string, parentFolderID *string) (*models.File, error)
	ListFiles(ctx context.Context, ownerID string, folderID *string) ([]*models.File, error)
	GetFile(ctx context.Context, fileID, userID string) (*models.File, error)
	ListVersions(ctx context.Context, fileID, userID string) ([]*models.FileVersion, error)
	DeleteFile(ctx context.Context, fileID, userID string) error
}

type Handler struct {
	files  Files
	secret []byte
	log    logging.Logger
}

func NewHandler(files Files, secretKey string, log logging.Logger) *Handler {
	return &Handler{files: files, secret: []byte(secretKey), log: log.With("module", "http")}
}

// Register mounts the API under /api on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/_health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.authenticate)

	api.HandleFunc("/files", h.upload).Methods(http.MethodPost)
	api.HandleFunc("/files", h.listFiles).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}", h.getFile).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}", h.deleteFile).Methods(http.MethodDelete)
	api.HandleFunc("/files/{id}/content", h.download).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}/versions", h.createVersion).Methods(http.MethodPost)
	api.HandleFunc("/files/{id}/versions", h.listVersions).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}/versions/{version:[0-9]+}/content", h.downloadVersion).Methods(http.MethodGet)
	api.HandleFunc("/folders", h.createFolder).Methods(http.MethodPost)
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromRequest(r)
		if token == "" {
			h.writeError(w, r, common.ErrUnauthorized)
			return
		}
		userID, err := auth.GetUserIDFromToken(token, h.secret)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	})
}

func userID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	name := r.Header.Get(HeaderFileName)
	id, err := h.files.Upload(r.Context(), r.Body, name, r.ContentLength, userID(r), optional(r.Header.Get(HeaderParentFolder)))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"fileId": id})
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	rc, name, err := h.files.Download(r.Context(), mux.Vars(r)["id"], userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stream(w, r, rc, name)
}

func (h *Handler) downloadVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	version, err := strconv.ParseInt(vars["version"], 10, 64)
	if err != nil {
		h.writeError(w, r, common.ErrInvalidArgument)
		return
	}
	rc, name, err := h.files.DownloadVersion(r.Context(), vars["id"], version, userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stream(w, r, rc, name)
}

// stream copies rc to w. Headers are already sent when a chunk fails, so the
// connection is aborted instead of reporting a status.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, rc io.ReadCloser, name string) {
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		if r.Context().Err() == nil {
			h.log.Error(r.Context(), "download aborted", "path", r.URL.Path, "error", err)
		}
		panic(http.ErrAbortHandler)
	}
}

func (h *Handler) createVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.files.CreateVersion(r.Context(), mux.Vars(r)["id"], r.Body, userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"version": v})
}

func (h *Handler) listVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.files.ListVersions(r.Context(), mux.Vars(r)["id"], userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *Handler) getFile(w http.ResponseWriter, r *http.Request) {
	f, err := h.files.GetFile(r.Context(), mux.Vars(r)["id"], userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request) {
	list, err := h.files.ListFiles(r.Context(), userID(r), optional(r.URL.Query().Get("folderId")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.File{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) deleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.files.DeleteFile(r.Context(), mux.Vars(r)["id"], userID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createFolderRequest struct {
	Name           string  `json:"name"`
	ParentFolderID *string `json:"parentFolderId"`
}

func (h *Handler) createFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, common.ErrInvalidArgument)
		return
	}
	f, err := h.files.CreateFolder(r.Context(), req.Name, userID(r), req.ParentFolderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrInvalidArgument), errors.Is(err, common.ErrNotAFile):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, common.ErrAccessDenied):
		return http.StatusForbidden, "access denied"
	case errors.Is(err, common.ErrFileNotFound), errors.Is(err, common.ErrVersionNotFound), errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, common.ErrVersionConflict):
		return http.StatusConflict, "version conflict"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusOf(err)
	if status == http.StatusInternalServerError {
		h.log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
