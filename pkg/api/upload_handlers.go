package api

import (
	"encoding/json"
	"net/http"

	"github.com/marmos91/transferd/pkg/upload"
)

// maxJSONBodyBytes bounds every non-streaming JSON endpoint, independent
// of the much larger upload_limit_bytes ceiling on the stream endpoint.
const maxJSONBodyBytes = 1 << 20

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(dst); err != nil {
		writeBadRequest(w, "malformed request body")
		return false
	}
	return true
}

// uploadDefaultsResponse is the wire shape of `GET /api/upload/defaults`.
type uploadDefaultsResponse struct {
	UploadLimitBytes          int64 `json:"upload_limit_bytes"`
	UploadLifespanSecsDefault int64 `json:"upload_lifespan_secs_default"`
	DownloadLimitDefault      *int  `json:"download_limit_default"`
}

// uploadInitRequest is the decoded body of `POST /api/upload/init`.
type uploadInitRequest struct {
	Nonce            hexBytes `json:"nonce"`
	FileNameHash     hexBytes `json:"file_name_hash"`
	Size             int64    `json:"size"`
	ContentHash      hexBytes `json:"content_hash"`
	AccessPassword   hexBytes `json:"access_password"`
	DeletionPassword hexBytes `json:"deletion_password,omitempty"`
	DownloadLimit    *int     `json:"download_limit,omitempty"`
	Lifespan         *int64   `json:"lifespan,omitempty"`
}

type uploadInitResponse struct {
	Key string `json:"key"`
}

type uploadStreamResponse struct {
	OK    string `json:"ok"`
	Bytes int64  `json:"bytes"`
}

type uploadDeleteRequest struct {
	Key              string   `json:"key"`
	DeletionPassword hexBytes `json:"deletion_password"`
}

type okResponse struct {
	OK string `json:"ok"`
}

// uploadHandler serves the `/api/upload*` endpoints.
type uploadHandler struct {
	service       *upload.Service
	uploadLimit   int64
	lifespanSecs  int64
	downloadLimit *int
}

func (h *uploadHandler) defaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, uploadDefaultsResponse{
		UploadLimitBytes:          h.uploadLimit,
		UploadLifespanSecsDefault: h.lifespanSecs,
		DownloadLimitDefault:      h.downloadLimit,
	})
}

func (h *uploadHandler) init(w http.ResponseWriter, r *http.Request) {
	var req uploadInitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	key, err := h.service.Announce(r.Context(), upload.AnnounceRequest{
		Nonce:            req.Nonce,
		FileNameToken:    req.FileNameHash,
		Size:             req.Size,
		ContentHash:      req.ContentHash,
		AccessPassword:   req.AccessPassword,
		DeletionPassword: req.DeletionPassword,
		DownloadLimit:    req.DownloadLimit,
		LifespanSecs:     req.Lifespan,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadInitResponse{Key: key})
}

func (h *uploadHandler) stream(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeBadRequest(w, "missing key query parameter")
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.uploadLimit)
	result, err := h.service.Stream(r.Context(), key, body)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadStreamResponse{OK: "ok", Bytes: result.BytesWritten})
}

func (h *uploadHandler) delete(w http.ResponseWriter, r *http.Request) {
	var req uploadDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.Delete(r.Context(), req.Key, req.DeletionPassword); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: "ok"})
}
